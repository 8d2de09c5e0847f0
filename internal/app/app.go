package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/lexbridge-backend/internal/data/db"
	apphttp "github.com/yungbote/lexbridge-backend/internal/http"
	"github.com/yungbote/lexbridge-backend/internal/observability"
	"github.com/yungbote/lexbridge-backend/internal/platform/envutil"
	"github.com/yungbote/lexbridge-backend/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Metrics  *observability.Metrics
	Repos    Repos
	Clients  Clients
	Services Services

	pg           *db.PostgresService
	otelShutdown func(context.Context) error
}

// New wires every dependency and ensures the vector index exists. Nothing
// runs in the background until Start.
func New(ctx context.Context) (*App, error) {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load config: %w", err)
	}

	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Version:     envutil.String("SERVICE_VERSION", "dev"),
	})
	metrics := observability.Init(log)

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := db.AutoMigrateAll(pg.DB()); err != nil {
		_ = pg.Close()
		log.Sync()
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	theDB := pg.DB()

	a := &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Metrics:      metrics,
		pg:           pg,
		otelShutdown: otelShutdown,
	}

	a.Repos = wireRepos(theDB, log)

	a.Clients, err = wireClients(ctx, log, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Services, err = wireServices(theDB, log, metrics, cfg, a.Repos, a.Clients)
	if err != nil {
		a.Close()
		return nil, err
	}

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	err = a.Services.Index.Initialize(initCtx)
	cancel()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("initialize vector index: %w", err)
	}

	handlers := wireHandlers(log, theDB, a.Clients, a.Services)
	a.Router = wireRouter(log, cfg, metrics, handlers)
	return a, nil
}

// Start runs the scheduler and the ops HTTP server until ctx is cancelled.
func (a *App) Start(ctx context.Context) error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}

	a.Metrics.StartServer(ctx, a.Log, a.Cfg.MetricsAddr)
	a.Metrics.StartDBCollector(ctx, a.Log, a.DB)
	a.Metrics.StartRedisCollector(ctx, a.Log, a.Clients.Redis)

	if a.Cfg.Scheduler.Enabled {
		if err := a.Services.Scheduler.Start(); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		a.Log.Info("Crawl scheduler started",
			"cron", a.Cfg.Scheduler.Spec,
			"timezone", a.Cfg.Scheduler.Timezone,
			"next_run", a.Services.Scheduler.GetNextRunTime(),
		)
	} else {
		a.Log.Info("Crawl scheduler disabled; manual triggers only")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return apphttp.NewServer(a.Log, a.Cfg.HTTPAddr, a.Router).Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		a.Services.Scheduler.Stop()
		return nil
	})
	return g.Wait()
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Services.Scheduler != nil {
		a.Services.Scheduler.Stop()
	}
	if a.Services.Bus != nil {
		_ = a.Services.Bus.Close()
	}
	a.Clients.Close()
	if a.pg != nil {
		if err := a.pg.Close(); err != nil {
			a.Log.Warn("database close failed", "error", err)
		}
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.otelShutdown(ctx)
		cancel()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
