package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/yungbote/lexbridge-backend/internal/domain/legal"
	"github.com/yungbote/lexbridge-backend/internal/platform/envutil"
	"github.com/yungbote/lexbridge-backend/internal/platform/gcp"
	"github.com/yungbote/lexbridge-backend/internal/platform/logger"
	"github.com/yungbote/lexbridge-backend/internal/platform/ollama"
	"github.com/yungbote/lexbridge-backend/internal/platform/openai"
)

type Clients struct {
	OpenAI  openai.Client
	Ollama  *ollama.Client
	Redis   *goredis.Client
	Bucket  gcp.BucketService
	Storage gcp.ObjectStorageConfig
	OCR     gcp.OCR
	// HTTP is shared by the crawler and the REST vector backends.
	HTTP *http.Client
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	out.HTTP = &http.Client{
		Timeout:   envutil.Duration("OUTBOUND_HTTP_TIMEOUT_SECONDS", time.Second, 60*time.Second),
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	oa, err := openai.NewClient(log)
	if err != nil {
		return Clients{}, legal.NewError(legal.KindConfiguration, "app.wireClients", err)
	}
	out.OpenAI = oa

	if ocfg, ok := ollama.ConfigFromEnv(); ok {
		out.Ollama = ollama.NewClient(log, ocfg, out.HTTP)
	}

	if cfg.RedisAddr != "" {
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = rdb.Close()
			return Clients{}, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
		}
		out.Redis = rdb
	}

	bucket, storageCfg, err := resolveBucketService(log)
	if err != nil {
		out.Close()
		return Clients{}, err
	}
	out.Bucket = bucket
	out.Storage = storageCfg

	if dcfg, ok := gcp.DocumentAIConfigFromEnv(); ok {
		ocr, err := gcp.NewDocumentOCR(log, dcfg)
		if err != nil {
			log.Warn("Document AI OCR disabled", "error", err)
		} else {
			out.OCR = ocr
		}
	}
	return out, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.Bucket != nil {
		_ = c.Bucket.Close()
	}
	if c.OCR != nil {
		_ = c.OCR.Close()
	}
}
