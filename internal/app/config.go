package app

import (
	"strings"

	"github.com/yungbote/lexbridge-backend/internal/modules/legal/crawler"
	"github.com/yungbote/lexbridge-backend/internal/modules/legal/embedding"
	"github.com/yungbote/lexbridge-backend/internal/modules/legal/ingestion"
	"github.com/yungbote/lexbridge-backend/internal/modules/legal/rag"
	"github.com/yungbote/lexbridge-backend/internal/modules/legal/scheduler"
	"github.com/yungbote/lexbridge-backend/internal/modules/legal/vectorindex"
	"github.com/yungbote/lexbridge-backend/internal/platform/envutil"
	"github.com/yungbote/lexbridge-backend/internal/platform/logger"
)

type Config struct {
	ServiceName string
	Environment string
	HTTPAddr    string
	// MetricsAddr serves /metrics on its own listener when set, in addition
	// to the ops router.
	MetricsAddr  string
	CORSOrigins  []string
	OpsJWTSecret string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CrawlRunLock  string

	// VectorProvider is empty when it should be inferred from the object
	// storage mode.
	VectorProvider string
	OCRBelow       int

	Embedding   embedding.Config
	VectorIndex vectorindex.Config
	Crawl       crawler.Config
	Scheduler   scheduler.Config
	RAG         rag.Config
}

func LoadConfig(log *logger.Logger) (Config, error) {
	crawlCfg, err := crawler.ConfigFromEnv()
	if err != nil {
		return Config{}, err
	}
	ragCfg := rag.ConfigFromEnv()
	if err := ragCfg.Validate(); err != nil {
		return Config{}, err
	}
	cfg := Config{
		ServiceName:    envutil.String("SERVICE_NAME", "lexbridge-backend"),
		Environment:    envutil.String("ENVIRONMENT", "development"),
		HTTPAddr:       envutil.String("HTTP_ADDR", ":8080"),
		MetricsAddr:    envutil.String("METRICS_ADDR", ""),
		CORSOrigins:    envutil.List("CORS_ALLOWED_ORIGINS", nil),
		OpsJWTSecret:   envutil.String("OPS_JWT_SECRET", ""),
		RedisAddr:      envutil.String("REDIS_ADDR", ""),
		RedisPassword:  envutil.String("REDIS_PASSWORD", ""),
		RedisDB:        envutil.Int("REDIS_DB", 0),
		CrawlRunLock:   strings.ToLower(envutil.String("CRAWL_RUN_LOCK", scheduler.LockLocal)),
		VectorProvider: strings.ToLower(envutil.String("VECTOR_PROVIDER", "")),
		OCRBelow:       envutil.Int("OCR_MIN_TEXT_LENGTH", ingestion.MinTextLength),
		Embedding:      embedding.ConfigFromEnv(),
		VectorIndex:    vectorindex.ConfigFromEnv(),
		Crawl:          crawlCfg,
		Scheduler:      scheduler.ConfigFromEnv(),
		RAG:            ragCfg,
	}
	cfg.RAG.Namespace = cfg.VectorIndex.Namespace

	if log != nil {
		log.Info("Configuration loaded",
			"environment", cfg.Environment,
			"http_addr", cfg.HTTPAddr,
			"vector_provider", cfg.VectorProvider,
			"namespace", cfg.VectorIndex.Namespace,
			"embed_dimensions", cfg.Embedding.Dimensions,
			"rag_mode", cfg.RAG.Mode,
			"scheduler_enabled", cfg.Scheduler.Enabled,
			"crawl_run_lock", cfg.CrawlRunLock,
			"ops_auth", cfg.OpsJWTSecret != "",
		)
		if cfg.OpsJWTSecret == "" {
			log.Warn("OPS_JWT_SECRET not set; /admin routes are unauthenticated")
		}
	}
	return cfg, nil
}
