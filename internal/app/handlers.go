package app

import (
	"fmt"

	httpx "github.com/eoty/eoty-backend/internal/http"
	httpH "github.com/eoty/eoty-backend/internal/http/handlers"
	httpMW "github.com/eoty/eoty-backend/internal/http/middleware"
	"github.com/eoty/eoty-backend/internal/platform/logger"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health    *httpH.HealthHandler
	Resource  *httpH.ResourceHandler
	Note      *httpH.NoteHandler
	Summary   *httpH.SummaryHandler
	Telemetry *httpH.TelemetryHandler
}

func wireMiddleware(log *logger.Logger) (Middleware, error) {
	log.Info("Wiring middleware...")
	auth, err := httpMW.NewAuthMiddleware(log)
	if err != nil {
		return Middleware{}, fmt.Errorf("init auth middleware: %w", err)
	}
	return Middleware{Auth: auth}, nil
}

func wireHandlers(log *logger.Logger, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:    httpH.NewHealthHandler(),
		Resource:  httpH.NewResourceHandler(log, services.Ingestion, services.Catalog),
		Note:      httpH.NewNoteHandler(log, services.Notes),
		Summary:   httpH.NewSummaryHandler(log, services.Summaries),
		Telemetry: httpH.NewTelemetryHandler(log, services.Telemetry),
	}
}

func wireServer(log *logger.Logger, handlers Handlers, middleware Middleware) *httpx.Server {
	return httpx.NewServer(httpx.RouterConfig{
		Log:              log,
		AuthMiddleware:   middleware.Auth,
		ResourceHandler:  handlers.Resource,
		NoteHandler:      handlers.Note,
		SummaryHandler:   handlers.Summary,
		TelemetryHandler: handlers.Telemetry,
		HealthHandler:    handlers.Health,
	})
}
