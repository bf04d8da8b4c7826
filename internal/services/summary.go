package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	redisclient "github.com/eoty/eoty-backend/internal/clients/redis"
	librepo "github.com/eoty/eoty-backend/internal/data/repos/library"
	types "github.com/eoty/eoty-backend/internal/domain"
	"github.com/eoty/eoty-backend/internal/domain/library"
	"github.com/eoty/eoty-backend/internal/platform/apierr"
	"github.com/eoty/eoty-backend/internal/platform/dbctx"
	"github.com/eoty/eoty-backend/internal/platform/gcp"
	"github.com/eoty/eoty-backend/internal/platform/logger"
	"github.com/eoty/eoty-backend/internal/platform/openai"
	"github.com/eoty/eoty-backend/internal/requestdata"
)

// SummaryEnvelope is the getOrGenerate response: the summary row plus
// the derived gate flags.
type SummaryEnvelope struct {
	Summary                   *types.AISummary `json:"summary"`
	Publishable               bool             `json:"publishable"`
	MeetsWordLimit            bool             `json:"meets_word_limit"`
	MeetsRelevanceRequirement bool             `json:"meets_relevance_requirement"`
}

func newSummaryEnvelope(s *types.AISummary) *SummaryEnvelope {
	meetsWordLimit := true
	if s.SummaryType == library.SummaryTypeBrief {
		meetsWordLimit = s.WordCount <= library.BriefWordLimit
	}
	return &SummaryEnvelope{
		Summary:                   s,
		Publishable:               s.Publishable(),
		MeetsWordLimit:            meetsWordLimit,
		MeetsRelevanceRequirement: s.RelevanceScore >= library.RelevanceFloor,
	}
}

// SummaryService orchestrates bounded summary generation and the admin
// validation workflow.
type SummaryService interface {
	GetOrGenerate(ctx context.Context, caller *requestdata.CallerContext, resourceID uuid.UUID, summaryType string) (*SummaryEnvelope, error)
	Validate(ctx context.Context, caller *requestdata.CallerContext, summaryID uuid.UUID, score float64, notes string) (*types.AISummary, error)
	ListUnvalidated(ctx context.Context, caller *requestdata.CallerContext, limit int) ([]*types.AISummary, error)
}

type summaryService struct {
	log          *logger.Logger
	db           *gorm.DB
	access       AccessService
	resourceRepo librepo.ResourceRepo
	summaryRepo  librepo.AISummaryRepo
	usageRepo    librepo.UsageEventRepo
	bucket       gcp.BucketService
	generator    openai.Client
	cache        redisclient.SummaryCache
}

func NewSummaryService(
	baseLog *logger.Logger,
	db *gorm.DB,
	access AccessService,
	resourceRepo librepo.ResourceRepo,
	summaryRepo librepo.AISummaryRepo,
	usageRepo librepo.UsageEventRepo,
	bucket gcp.BucketService,
	generator openai.Client,
	cache redisclient.SummaryCache,
) SummaryService {
	return &summaryService{
		log:          baseLog.With("service", "SummaryService"),
		db:           db,
		access:       access,
		resourceRepo: resourceRepo,
		summaryRepo:  summaryRepo,
		usageRepo:    usageRepo,
		bucket:       bucket,
		generator:    generator,
		cache:        cache,
	}
}

func validateSummaryType(t string) error {
	switch t {
	case library.SummaryTypeBrief, library.SummaryTypeDetailed:
		return nil
	}
	return apierr.Newf(apierr.CodeInvalidInput, "unknown summary type %q", t)
}

func (s *summaryService) GetOrGenerate(ctx context.Context, caller *requestdata.CallerContext, resourceID uuid.UUID, summaryType string) (*SummaryEnvelope, error) {
	if err := validateSummaryType(summaryType); err != nil {
		return nil, err
	}

	dbc := dbctx.Context{Ctx: ctx}
	res, err := s.resourceRepo.GetByID(dbc, resourceID)
	if err != nil {
		return nil, apierr.New(apierr.CodeStorageFailure, err)
	}
	if res == nil {
		return nil, apierr.Newf(apierr.CodeNotFound, "resource not found")
	}
	if err := s.access.Check(dbc, caller, res, ActionView); err != nil {
		return nil, err
	}

	// Publishable summaries are served from cache, then DB.
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, resourceID, summaryType); err != nil {
			s.log.Warn("summary cache read failed", "error", err, "resource_id", resourceID)
		} else if cached.Publishable() {
			return newSummaryEnvelope(cached), nil
		}
	}
	published, err := s.summaryRepo.GetPublishable(dbc, resourceID, summaryType)
	if err != nil {
		return nil, apierr.New(apierr.CodeStorageFailure, err)
	}
	if published != nil {
		s.cacheSet(ctx, published)
		return newSummaryEnvelope(published), nil
	}

	// A pending summary is returned as-is until an admin rules on it.
	pending, err := s.summaryRepo.GetUnvalidated(dbc, resourceID, summaryType)
	if err != nil {
		return nil, apierr.New(apierr.CodeStorageFailure, err)
	}
	if pending != nil {
		return newSummaryEnvelope(pending), nil
	}

	return s.generate(ctx, caller, res, summaryType)
}

func (s *summaryService) generate(ctx context.Context, caller *requestdata.CallerContext, res *types.Resource, summaryType string) (*SummaryEnvelope, error) {
	if res.Status != library.StatusReady || res.TextKey == nil {
		return nil, apierr.Newf(apierr.CodeResourceNotReady, "resource has no extracted text")
	}

	rc, err := s.bucket.DownloadFile(ctx, *res.TextKey)
	if err != nil {
		return nil, apierr.New(apierr.CodeStorageFailure, fmt.Errorf("read extracted text: %w", err))
	}
	text, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, apierr.New(apierr.CodeStorageFailure, fmt.Errorf("read extracted text: %w", err))
	}

	result, err := s.generator.GenerateSummary(ctx, string(text), summaryType)
	if err != nil {
		// Nothing is persisted on generator failure; the client already
		// classified the error as upstream_timeout or upstream_failure.
		return nil, err
	}

	summaryText := result.Text
	truncated := false
	if summaryType == library.SummaryTypeBrief {
		summaryText, truncated = TruncateToWordLimit(summaryText, library.BriefWordLimit)
	}
	keyPoints, _ := json.Marshal(result.KeyPoints)
	insights, _ := json.Marshal(result.SpiritualInsights)

	now := time.Now()
	summary := &types.AISummary{
		ID:                uuid.New(),
		ResourceID:        res.ID,
		SummaryType:       summaryType,
		Text:              summaryText,
		KeyPoints:         datatypes.JSON(keyPoints),
		SpiritualInsights: datatypes.JSON(insights),
		WordCount:         CountWords(summaryText),
		Truncated:         truncated,
		RelevanceScore:    result.RelevanceScore,
		Version:           1,
		CreatedAt:         now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: ctx, Tx: tx}
		if _, err := s.summaryRepo.ReplaceUnvalidated(txc, summary); err != nil {
			return fmt.Errorf("persist summary: %w", err)
		}
		if _, err := s.usageRepo.Create(txc, []*types.UsageEvent{{
			ID:         uuid.New(),
			UserID:     caller.UserID,
			ResourceID: res.ID,
			Action:     library.ActionAISummaryGenerated,
			CreatedAt:  now,
		}}); err != nil {
			return fmt.Errorf("record summary event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, apierr.New(apierr.CodeStorageFailure, err)
	}

	s.log.Info("summary generated",
		"resource_id", res.ID, "summary_type", summaryType,
		"word_count", summary.WordCount, "truncated", truncated,
		"relevance_score", summary.RelevanceScore)
	return newSummaryEnvelope(summary), nil
}

func (s *summaryService) Validate(ctx context.Context, caller *requestdata.CallerContext, summaryID uuid.UUID, score float64, notes string) (*types.AISummary, error) {
	if caller == nil || !caller.IsAdmin() {
		return nil, apierr.Newf(apierr.CodeForbidden, "admin required")
	}
	if score < 0 || score > 1 {
		return nil, apierr.Newf(apierr.CodeInvalidInput, "relevance score must be in [0,1]")
	}
	if score < library.RelevanceFloor {
		return nil, apierr.Newf(apierr.CodeBelowRelevanceFloor,
			"score %.4f is below the %.2f floor", score, library.RelevanceFloor)
	}

	dbc := dbctx.Context{Ctx: ctx}
	summary, err := s.summaryRepo.GetByID(dbc, summaryID)
	if err != nil {
		return nil, apierr.New(apierr.CodeStorageFailure, err)
	}
	if summary == nil {
		return nil, apierr.Newf(apierr.CodeNotFound, "summary not found")
	}

	now := time.Now()
	ok, err := s.summaryRepo.ValidateVersioned(dbc, summaryID, summary.Version, map[string]interface{}{
		"validated_by":     caller.UserID,
		"validated_at":     now,
		"validation_notes": notes,
		"relevance_score":  score,
	})
	if err != nil {
		return nil, apierr.New(apierr.CodeStorageFailure, err)
	}
	if !ok {
		return nil, apierr.Newf(apierr.CodeConflict, "summary version %d is stale", summary.Version)
	}

	validated, err := s.summaryRepo.GetByID(dbc, summaryID)
	if err != nil {
		return nil, apierr.New(apierr.CodeStorageFailure, err)
	}
	s.cacheSet(ctx, validated)
	s.log.Info("summary validated",
		"summary_id", summaryID, "resource_id", summary.ResourceID,
		"score", score, "by", caller.UserID)
	return validated, nil
}

func (s *summaryService) ListUnvalidated(ctx context.Context, caller *requestdata.CallerContext, limit int) ([]*types.AISummary, error) {
	if caller == nil || !caller.IsAdmin() {
		return nil, apierr.Newf(apierr.CodeForbidden, "admin required")
	}
	dbc := dbctx.Context{Ctx: ctx}
	rows, err := s.summaryRepo.ListUnvalidated(dbc, limit)
	if err != nil {
		return nil, apierr.New(apierr.CodeStorageFailure, err)
	}
	return rows, nil
}

func (s *summaryService) cacheSet(ctx context.Context, summary *types.AISummary) {
	if s.cache == nil || !summary.Publishable() {
		return
	}
	if err := s.cache.Set(ctx, summary); err != nil {
		s.log.Warn("summary cache write failed", "error", err, "resource_id", summary.ResourceID)
	}
}
