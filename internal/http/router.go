package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/noticeserve-backend/internal/http/handlers"
	httpMW "github.com/yungbote/noticeserve-backend/internal/http/middleware"
	"github.com/yungbote/noticeserve-backend/internal/observability"
	"github.com/yungbote/noticeserve-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	ServiceName    string
	CORSOrigins    []string
	AuthMiddleware *httpMW.AuthMiddleware

	BatchHandler       *httpH.BatchHandler
	DiagnosticsHandler *httpH.DiagnosticsHandler
	HealthHandler      *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS(cfg.CORSOrigins))
	r.Use(httpMW.Metrics(cfg.Metrics))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api/batch")
	{
		if cfg.BatchHandler != nil {
			api.POST("/documents", cfg.BatchHandler.UploadDocuments)
			api.GET("/:batchId/status", cfg.BatchHandler.Status)
			api.POST("/validate", cfg.BatchHandler.Validate)
		}
	}

	// Diagnostics
	diag := api.Group("/")
	{
		diag.Use(cfg.AuthMiddleware.RequireDiagnostics())
		if cfg.DiagnosticsHandler != nil {
			diag.POST("/debug", cfg.DiagnosticsHandler.Debug)
			diag.GET("/health", cfg.DiagnosticsHandler.Health)
		}
	}

	return r
}
