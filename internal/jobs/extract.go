package jobs

import (
	"context"
	"fmt"
	"strings"

	librepo "github.com/eoty/eoty-backend/internal/data/repos/library"
	types "github.com/eoty/eoty-backend/internal/domain"
	"github.com/eoty/eoty-backend/internal/domain/library"
	"github.com/eoty/eoty-backend/internal/platform/dbctx"
	"github.com/eoty/eoty-backend/internal/platform/gcp"
	"github.com/eoty/eoty-backend/internal/platform/logger"
	"github.com/eoty/eoty-backend/internal/services"
)

// ExtractHandler is the C1 processing task: it walks a resource from
// pending through extracting to ready (or failed), writing the extracted
// text blob along the way. Status moves by compare-and-set so duplicate
// deliveries are harmless.
type ExtractHandler struct {
	log          *logger.Logger
	resourceRepo librepo.ResourceRepo
	extraction   services.ExtractionService
	bucket       gcp.BucketService
}

func NewExtractHandler(
	baseLog *logger.Logger,
	resourceRepo librepo.ResourceRepo,
	extraction services.ExtractionService,
	bucket gcp.BucketService,
) *ExtractHandler {
	return &ExtractHandler{
		log:          baseLog.With("handler", "ExtractHandler"),
		resourceRepo: resourceRepo,
		extraction:   extraction,
		bucket:       bucket,
	}
}

func (h *ExtractHandler) Handle(ctx context.Context, job *types.JobRun) error {
	dbc := dbctx.Context{Ctx: ctx}
	res, err := h.resourceRepo.GetByID(dbc, job.EntityID)
	if err != nil {
		return fmt.Errorf("load resource: %w", err)
	}
	if res == nil {
		// Deleted before processing; nothing to do.
		return nil
	}

	switch res.Status {
	case library.StatusReady:
		return nil
	case library.StatusPending, library.StatusFailed:
		ok, err := h.resourceRepo.UpdateStatusCAS(dbc, res.ID, res.Status, map[string]interface{}{
			"status":         library.StatusExtracting,
			"failure_reason": "",
		})
		if err != nil {
			return fmt.Errorf("mark extracting: %w", err)
		}
		if !ok {
			// Another delivery got here first; let it finish.
			return nil
		}
	case library.StatusExtracting:
		// A previous attempt died mid-extraction; resume.
	}

	text, textless, err := h.extraction.Extract(ctx, res)
	if err != nil {
		return fmt.Errorf("extract %s: %w", res.FileType, err)
	}

	updates := map[string]interface{}{"status": library.StatusReady}
	if !textless {
		textKey := gcp.ExtractedPrefix + res.ID.String() + ".txt"
		if err := h.bucket.UploadFile(ctx, textKey, "text/plain; charset=utf-8", strings.NewReader(text)); err != nil {
			return fmt.Errorf("write text blob: %w", err)
		}
		updates["text_key"] = textKey
	}
	ok, err := h.resourceRepo.UpdateStatusCAS(dbc, res.ID, library.StatusExtracting, updates)
	if err != nil {
		return fmt.Errorf("mark ready: %w", err)
	}
	if !ok {
		h.log.Warn("ready transition lost, resource moved concurrently", "resource_id", res.ID)
		return nil
	}

	h.log.Info("resource extracted",
		"resource_id", res.ID, "file_type", res.FileType, "textless", textless)
	return nil
}

// FailPermanently marks the resource failed once retries are exhausted;
// the catalog row stays visible to admins only.
func (h *ExtractHandler) FailPermanently(ctx context.Context, job *types.JobRun, reason string) {
	dbc := dbctx.Context{Ctx: ctx}
	for _, from := range []string{library.StatusExtracting, library.StatusPending} {
		ok, err := h.resourceRepo.UpdateStatusCAS(dbc, job.EntityID, from, map[string]interface{}{
			"status":         library.StatusFailed,
			"failure_reason": reason,
		})
		if err != nil {
			h.log.Error("mark failed failed", "error", err, "resource_id", job.EntityID)
			return
		}
		if ok {
			h.log.Error("resource extraction failed permanently",
				"resource_id", job.EntityID, "reason", reason)
			return
		}
	}
}
