package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/lexbridge-backend/internal/modules/legal/crawler"
	"github.com/yungbote/lexbridge-backend/internal/modules/legal/embedding"
	"github.com/yungbote/lexbridge-backend/internal/modules/legal/ingestion"
	"github.com/yungbote/lexbridge-backend/internal/modules/legal/ingestion/extractor"
	"github.com/yungbote/lexbridge-backend/internal/modules/legal/rag"
	"github.com/yungbote/lexbridge-backend/internal/modules/legal/scheduler"
	"github.com/yungbote/lexbridge-backend/internal/modules/legal/vectorindex"
	"github.com/yungbote/lexbridge-backend/internal/observability"
	"github.com/yungbote/lexbridge-backend/internal/platform/logger"
	"github.com/yungbote/lexbridge-backend/internal/realtime/bus"
)

type Services struct {
	Embedding *embedding.Service
	Index     *vectorindex.Service
	Ingestion *ingestion.Service
	Crawler   *crawler.Crawler
	Scheduler *scheduler.Scheduler
	RAG       *rag.Service
	Bus       bus.Bus
}

func wireServices(
	db *gorm.DB,
	log *logger.Logger,
	metrics *observability.Metrics,
	cfg Config,
	reposet Repos,
	clients Clients,
) (Services, error) {
	log.Info("Wiring services...")

	emb, err := embedding.New(embedding.Deps{
		Log:        log,
		Metrics:    metrics,
		Strategies: embeddingStrategies(clients, cfg.Embedding.Dimensions),
		Tokenizer:  loadTokenizer(log),
	}, cfg.Embedding)
	if err != nil {
		return Services{}, fmt.Errorf("init embedding service: %w", err)
	}
	log.Info("Embedding chain", "providers", emb.Providers(), "dimensions", emb.Dimensions())

	pcfg, err := resolveVectorProviderConfig(cfg.VectorProvider, clients.Storage.Mode, emb.Dimensions())
	if err != nil {
		return Services{}, err
	}
	store, err := resolveVectorStore(log, pcfg, db, clients.HTTP, emb.Dimensions(), metrics)
	if err != nil {
		return Services{}, err
	}
	index, err := vectorindex.New(store, log, cfg.VectorIndex)
	if err != nil {
		return Services{}, fmt.Errorf("init vector index: %w", err)
	}

	ing, err := ingestion.New(ingestion.Deps{
		DB:        db,
		Log:       log,
		Metrics:   metrics,
		Repos:     reposet.Repos,
		Embedding: emb,
		Index:     index,
		Extractor: extractor.New(log, clients.OCR, cfg.OCRBelow),
		Bucket:    clients.Bucket,
		Namespace: cfg.VectorIndex.Namespace,
	})
	if err != nil {
		return Services{}, fmt.Errorf("init ingestion: %w", err)
	}

	cr, err := crawler.New(crawler.Deps{
		Log:       log,
		Metrics:   metrics,
		HTTP:      clients.HTTP,
		Repos:     reposet.Repos,
		Ingestion: ing,
	}, cfg.Crawl)
	if err != nil {
		return Services{}, fmt.Errorf("init crawler: %w", err)
	}

	eventBus := bus.NewMemoryBus()
	if clients.Redis != nil {
		eventBus, err = bus.NewRedisBus(log, clients.Redis)
		if err != nil {
			return Services{}, fmt.Errorf("init redis bus: %w", err)
		}
	}

	lock, err := crawlRunLock(cfg.CrawlRunLock, clients)
	if err != nil {
		return Services{}, err
	}
	sched, err := scheduler.New(scheduler.Deps{
		Log:     log,
		Metrics: metrics,
		Crawler: cr,
		Bus:     eventBus,
		Lock:    lock,
	}, cfg.Scheduler)
	if err != nil {
		return Services{}, fmt.Errorf("init scheduler: %w", err)
	}

	ragSvc, err := rag.New(rag.Deps{
		Log:      log,
		Metrics:  metrics,
		Embedder: emb,
		Index:    index,
		Chat:     clients.OpenAI,
	}, cfg.RAG)
	if err != nil {
		return Services{}, fmt.Errorf("init rag: %w", err)
	}

	return Services{
		Embedding: emb,
		Index:     index,
		Ingestion: ing,
		Crawler:   cr,
		Scheduler: sched,
		RAG:       ragSvc,
		Bus:       eventBus,
	}, nil
}

// embeddingStrategies orders the chain primary first. The primary only moves
// on for rate limits and transient failures; bad credentials surface
// immediately. Any secondary failure moves on to the synthetic tier that
// embedding.New appends.
func embeddingStrategies(clients Clients, dim int) []embedding.Strategy {
	var out []embedding.Strategy
	if clients.OpenAI != nil {
		out = append(out, embedding.Strategy{
			Provider:   embedding.NewOpenAIProvider(clients.OpenAI),
			FallbackOn: embedding.RateLimitOrTransient,
		})
	}
	if clients.Ollama != nil {
		out = append(out, embedding.Strategy{
			Provider:   embedding.NewOllamaProvider(clients.Ollama),
			FallbackOn: embedding.Always,
		})
	}
	if len(out) == 0 {
		out = append(out, embedding.Strategy{Provider: embedding.SyntheticProvider{Dim: dim}})
	}
	return out
}

func loadTokenizer(log *logger.Logger) embedding.Tokenizer {
	tok, err := embedding.LoadCL100K()
	if err != nil {
		log.Warn("cl100k tokenizer unavailable; estimating 4 chars per token", "error", err)
		return nil
	}
	return tok
}

func crawlRunLock(mode string, clients Clients) (scheduler.RunLock, error) {
	switch mode {
	case "", scheduler.LockLocal:
		return scheduler.NewLocalLock(), nil
	case scheduler.LockNone:
		return scheduler.NewNoLock(), nil
	case scheduler.LockRedis:
		if clients.Redis == nil {
			return nil, fmt.Errorf("CRAWL_RUN_LOCK=redis requires REDIS_ADDR")
		}
		return scheduler.NewRedisLock(clients.Redis, ""), nil
	default:
		return nil, fmt.Errorf("unsupported CRAWL_RUN_LOCK %q (allowed: none, local, redis)", mode)
	}
}
