package app

import (
	"context"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	apphttp "github.com/yungbote/lexbridge-backend/internal/http"
	httpH "github.com/yungbote/lexbridge-backend/internal/http/handlers"
	httpMW "github.com/yungbote/lexbridge-backend/internal/http/middleware"
	"github.com/yungbote/lexbridge-backend/internal/observability"
	"github.com/yungbote/lexbridge-backend/internal/platform/logger"
)

type Handlers struct {
	Health   *httpH.HealthHandler
	Crawl    *httpH.CrawlHandler
	Index    *httpH.IndexHandler
	Document *httpH.DocumentHandler
	Realtime *httpH.RealtimeHandler
}

func wireHandlers(log *logger.Logger, db *gorm.DB, clients Clients, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:   httpH.NewHealthHandler(healthChecks(db, clients)),
		Crawl:    httpH.NewCrawlHandler(log, services.Scheduler),
		Index:    httpH.NewIndexHandler(services.Ingestion),
		Document: httpH.NewDocumentHandler(log, services.Ingestion),
		Realtime: httpH.NewRealtimeHandler(log, services.Bus),
	}
}

func healthChecks(db *gorm.DB, clients Clients) map[string]httpH.Pinger {
	checks := map[string]httpH.Pinger{}
	if db != nil {
		checks["database"] = func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}
	if clients.Redis != nil {
		checks["redis"] = func(ctx context.Context) error {
			return clients.Redis.Ping(ctx).Err()
		}
	}
	return checks
}

func wireRouter(log *logger.Logger, cfg Config, metrics *observability.Metrics, handlers Handlers) *gin.Engine {
	return apphttp.NewRouter(apphttp.RouterConfig{
		Log:             log,
		Metrics:         metrics,
		ServiceName:     cfg.ServiceName,
		CORSOrigins:     cfg.CORSOrigins,
		OpsAuth:         httpMW.NewOpsAuth(log, cfg.OpsJWTSecret),
		HealthHandler:   handlers.Health,
		CrawlHandler:    handlers.Crawl,
		IndexHandler:    handlers.Index,
		DocumentHandler: handlers.Document,
		RealtimeHandler: handlers.Realtime,
	})
}
