package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/noticeserve-backend/internal/batch"
	"github.com/yungbote/noticeserve-backend/internal/data/aggregates"
	"github.com/yungbote/noticeserve-backend/internal/data/db"
	noticerepos "github.com/yungbote/noticeserve-backend/internal/data/repos/notices"
	httpserver "github.com/yungbote/noticeserve-backend/internal/http"
	httpH "github.com/yungbote/noticeserve-backend/internal/http/handlers"
	httpMW "github.com/yungbote/noticeserve-backend/internal/http/middleware"
	"github.com/yungbote/noticeserve-backend/internal/ids"
	"github.com/yungbote/noticeserve-backend/internal/observability"
	"github.com/yungbote/noticeserve-backend/internal/platform/keyseal"
	"github.com/yungbote/noticeserve-backend/internal/platform/logger"
	"github.com/yungbote/noticeserve-backend/internal/platform/thumbnail"
	"github.com/yungbote/noticeserve-backend/internal/services"
)

type Services struct {
	IDs         *ids.Generator
	Validator   *batch.Validator
	Batches     services.BatchService
	Diagnostics services.DiagnosticsService
}

type Handlers struct {
	Health      *httpH.HealthHandler
	Batch       *httpH.BatchHandler
	Diagnostics *httpH.DiagnosticsHandler
}

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Repos    noticerepos.Set
	Services Services
	Metrics  *observability.Metrics
	Server   *httpserver.Server

	closers []func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load config: %w", err)
	}

	pg, err := db.NewPostgresService(log, cfg.DB)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		_ = pg.Close()
		log.Sync()
		return nil, fmt.Errorf("database migrate: %w", err)
	}

	a, err := Build(ctx, log, cfg, pg.DB())
	if err != nil {
		_ = pg.Close()
		log.Sync()
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return pg.Close() })
	return a, nil
}

// Build wires everything above an already migrated database.
func Build(ctx context.Context, log *logger.Logger, cfg Config, theDB *gorm.DB) (*App, error) {
	a := &App{Log: log, DB: theDB, Cfg: cfg}

	a.closers = append(a.closers, observability.InitOTel(ctx, log, cfg.Otel))
	if cfg.MetricsEnabled {
		a.Metrics = observability.New(log)
	}

	log.Info("Wiring repos...")
	a.Repos = noticerepos.NewSet(theDB, log)

	serviceset, err := a.wireServices(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Services = serviceset

	handlers := wireHandlers(log, cfg, serviceset)
	a.Server = httpserver.NewServer(httpserver.RouterConfig{
		Log:                log,
		Metrics:            a.Metrics,
		ServiceName:        otelServiceName(cfg),
		CORSOrigins:        cfg.CORSOrigins,
		AuthMiddleware:     httpMW.NewAuthMiddleware(log, cfg.AdminJWTSecret),
		BatchHandler:       handlers.Batch,
		DiagnosticsHandler: handlers.Diagnostics,
		HealthHandler:      handlers.Health,
	})
	return a, nil
}

func (a *App) wireServices(ctx context.Context) (Services, error) {
	log, cfg := a.Log, a.Cfg
	log.Info("Wiring services...")

	var fallback ids.FallbackObserver
	if a.Metrics != nil {
		fallback = a.Metrics
	}
	gen, closeIDs, err := wireIDGenerator(ctx, log, cfg, a.DB, a.Repos, fallback)
	if err != nil {
		return Services{}, err
	}
	a.closers = append(a.closers, func(context.Context) error { return closeIDs() })

	blobs, err := resolveBlobStore(ctx, log, cfg)
	if err != nil {
		return Services{}, err
	}
	if c, ok := blobs.(io.Closer); ok {
		a.closers = append(a.closers, func(context.Context) error { return c.Close() })
	}

	thumbs, err := thumbnail.NewRenderer()
	if err != nil {
		return Services{}, fmt.Errorf("init thumbnail renderer: %w", err)
	}

	sealer, err := keyseal.New(cfg.KeySealSecret)
	if errors.Is(err, keyseal.ErrNoSecret) {
		log.Warn("KEY_SEAL_SECRET not set; encryption keys will be dropped")
		sealer = nil
	} else if err != nil {
		return Services{}, fmt.Errorf("init key sealer: %w", err)
	}

	tx := aggregates.NewGormTxRunner(a.DB)
	return Services{
		IDs:       gen,
		Validator: batch.NewValidator(gen),
		Batches: services.NewBatchService(services.BatchServiceDeps{
			DB:      a.DB,
			Log:     log,
			Tx:      tx,
			Hooks:   aggregates.NewObservabilityHooks(a.Metrics),
			Repos:   a.Repos,
			IDs:     gen,
			Blobs:   blobs,
			Thumbs:  thumbs,
			Sealer:  sealer,
			Metrics: a.Metrics,
			Timeouts: services.IngestTimeouts{
				Attachments: cfg.AttachmentTimeout,
				Transaction: cfg.TransactionTimeout,
			},
		}),
		Diagnostics: services.NewDiagnosticsService(a.DB, log, tx, a.Repos, gen),
	}, nil
}

func wireHandlers(log *logger.Logger, cfg Config, s Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:      httpH.NewHealthHandler(),
		Batch:       httpH.NewBatchHandler(log, s.Validator, s.Batches, cfg.MaxUploadBytes),
		Diagnostics: httpH.NewDiagnosticsHandler(log, s.Diagnostics),
	}
}

func otelServiceName(cfg Config) string {
	if !cfg.Otel.Enabled {
		return ""
	}
	return cfg.ServiceName
}

func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	addr := ":" + a.Cfg.Port
	a.Log.Info("Starting server", "addr", addr, "db_driver", a.Cfg.DB.Driver, "blob_backend", a.Cfg.BlobBackend)
	return a.Server.Run(ctx, addr, a.Cfg.ShutdownTimeout)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	timeout := a.Cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil && a.Log != nil {
			a.Log.Warn("shutdown step failed", "error", err)
		}
	}
	a.closers = nil
	if a.Log != nil {
		a.Log.Sync()
	}
}
