package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/lexbridge-backend/internal/http/handlers"
	httpMW "github.com/yungbote/lexbridge-backend/internal/http/middleware"
	"github.com/yungbote/lexbridge-backend/internal/observability"
	"github.com/yungbote/lexbridge-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	ServiceName string
	CORSOrigins []string
	OpsAuth     *httpMW.OpsAuth

	HealthHandler   *httpH.HealthHandler
	CrawlHandler    *httpH.CrawlHandler
	IndexHandler    *httpH.IndexHandler
	DocumentHandler *httpH.DocumentHandler
	RealtimeHandler *httpH.RealtimeHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", func(c *gin.Context) { cfg.Metrics.WriteHTTP(c.Writer, c.Request) })
	}

	admin := r.Group("/admin")
	{
		if cfg.OpsAuth != nil {
			admin.Use(cfg.OpsAuth.RequireOperator())
		}

		// Crawl control
		if cfg.CrawlHandler != nil {
			admin.POST("/crawl", cfg.CrawlHandler.Trigger)
			admin.GET("/crawl/status", cfg.CrawlHandler.Status)
		}
		if cfg.RealtimeHandler != nil {
			admin.GET("/crawl/events", cfg.RealtimeHandler.CrawlEvents)
		}

		// Index
		if cfg.IndexHandler != nil {
			admin.GET("/index/stats", cfg.IndexHandler.Stats)
		}

		// Documents
		if cfg.DocumentHandler != nil {
			admin.DELETE("/documents/:id", cfg.DocumentHandler.Delete)
		}
	}

	return r
}
