package handlers

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/eoty/eoty-backend/internal/http/response"
	"github.com/eoty/eoty-backend/internal/platform/apierr"
	"github.com/eoty/eoty-backend/internal/platform/logger"
	"github.com/eoty/eoty-backend/internal/services"
)

type TelemetryHandler struct {
	log       *logger.Logger
	telemetry services.TelemetryService
}

func NewTelemetryHandler(baseLog *logger.Logger, telemetry services.TelemetryService) *TelemetryHandler {
	return &TelemetryHandler{
		log:       baseLog.With("handler", "TelemetryHandler"),
		telemetry: telemetry,
	}
}

// GET /api/resources/coverage
func (h *TelemetryHandler) Coverage(c *gin.Context) {
	stats, err := h.telemetry.CoverageStatistics(c.Request.Context(), caller(c))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, stats)
}

// GET /api/resources/usage?from=&to=&action=
func (h *TelemetryHandler) Usage(c *gin.Context) {
	var from, to time.Time
	for _, p := range []struct {
		q    string
		dest *time.Time
	}{
		{"from", &from},
		{"to", &to},
	} {
		raw := strings.TrimSpace(c.Query(p.q))
		if raw == "" {
			continue
		}
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			t, err = time.Parse(time.RFC3339, raw)
		}
		if err != nil {
			response.RespondError(c, apierr.Newf(apierr.CodeInvalidInput, "invalid %s", p.q))
			return
		}
		*p.dest = t
	}

	rows, err := h.telemetry.UsageBreakdown(c.Request.Context(), caller(c), from, to, strings.TrimSpace(c.Query("action")))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"rows": rows, "count": len(rows)})
}
