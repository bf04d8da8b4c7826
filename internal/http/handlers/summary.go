package handlers

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/eoty/eoty-backend/internal/domain/library"
	"github.com/eoty/eoty-backend/internal/http/response"
	"github.com/eoty/eoty-backend/internal/platform/apierr"
	"github.com/eoty/eoty-backend/internal/platform/logger"
	"github.com/eoty/eoty-backend/internal/services"
)

type SummaryHandler struct {
	log       *logger.Logger
	summaries services.SummaryService
}

func NewSummaryHandler(baseLog *logger.Logger, summaries services.SummaryService) *SummaryHandler {
	return &SummaryHandler{
		log:       baseLog.With("handler", "SummaryHandler"),
		summaries: summaries,
	}
}

// GET /api/resources/:id/summary?type=brief
func (h *SummaryHandler) GetOrGenerate(c *gin.Context) {
	resourceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, apierr.Newf(apierr.CodeInvalidInput, "invalid resource id"))
		return
	}
	summaryType := strings.TrimSpace(c.DefaultQuery("type", library.SummaryTypeBrief))
	envelope, err := h.summaries.GetOrGenerate(c.Request.Context(), caller(c), resourceID, summaryType)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, envelope)
}

type validateSummaryRequest struct {
	Score float64 `json:"score"`
	Notes string  `json:"notes"`
}

// POST /api/summaries/:summaryId/validate
func (h *SummaryHandler) Validate(c *gin.Context) {
	summaryID, err := uuid.Parse(c.Param("summaryId"))
	if err != nil {
		response.RespondError(c, apierr.Newf(apierr.CodeInvalidInput, "invalid summary id"))
		return
	}
	var req validateSummaryRequest
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		response.RespondError(c, apierr.New(apierr.CodeInvalidInput, err))
		return
	}
	summary, err := h.summaries.Validate(c.Request.Context(), caller(c), summaryID, req.Score, req.Notes)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"summary": summary})
}

// GET /api/summaries/unvalidated?limit=
func (h *SummaryHandler) ListUnvalidated(c *gin.Context) {
	limit := 0
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	rows, err := h.summaries.ListUnvalidated(c.Request.Context(), caller(c), limit)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"summaries": rows})
}
