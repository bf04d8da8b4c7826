package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/eoty/eoty-backend/internal/http/handlers"
	httpMW "github.com/eoty/eoty-backend/internal/http/middleware"
	"github.com/eoty/eoty-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	AuthMiddleware *httpMW.AuthMiddleware

	ResourceHandler  *httpH.ResourceHandler
	NoteHandler      *httpH.NoteHandler
	SummaryHandler   *httpH.SummaryHandler
	TelemetryHandler *httpH.TelemetryHandler
	HealthHandler    *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("eoty-backend"))
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS())

	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	if cfg.AuthMiddleware != nil {
		api.Use(cfg.AuthMiddleware.RequireAuth())
	}

	if cfg.ResourceHandler != nil {
		api.POST("/resources/upload", cfg.ResourceHandler.Upload)
		api.GET("/resources/search", cfg.ResourceHandler.Search)
		api.GET("/resources/filters", cfg.ResourceHandler.FilterOptions)
		api.GET("/resources/scope/:scope", cfg.ResourceHandler.ListByScope)
		api.GET("/resources/scope/:scope/:companion", cfg.ResourceHandler.ListByScope)
		api.GET("/resources/:id", cfg.ResourceHandler.Get)
		api.PUT("/resources/:id", cfg.ResourceHandler.UpdateMetadata)
		api.DELETE("/resources/:id", cfg.ResourceHandler.Delete)
		api.GET("/resources/:id/download", cfg.ResourceHandler.Download)
	}

	if cfg.NoteHandler != nil {
		api.POST("/resources/:id/notes", cfg.NoteHandler.Create)
		api.GET("/resources/:id/notes", cfg.NoteHandler.ListForResource)
		api.PUT("/notes/:noteId", cfg.NoteHandler.Update)
		api.DELETE("/notes/:noteId", cfg.NoteHandler.Delete)
		api.POST("/notes/:noteId/share", cfg.NoteHandler.Share)
	}

	if cfg.SummaryHandler != nil {
		api.GET("/resources/:id/summary", cfg.SummaryHandler.GetOrGenerate)
		api.POST("/summaries/:summaryId/validate", cfg.SummaryHandler.Validate)
		api.GET("/summaries/unvalidated", cfg.SummaryHandler.ListUnvalidated)
	}

	if cfg.TelemetryHandler != nil {
		api.GET("/resources/coverage", cfg.TelemetryHandler.Coverage)
		api.GET("/resources/usage", cfg.TelemetryHandler.Usage)
	}

	return r
}
