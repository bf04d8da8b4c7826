package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	librepo "github.com/eoty/eoty-backend/internal/data/repos/library"
	types "github.com/eoty/eoty-backend/internal/domain"
	"github.com/eoty/eoty-backend/internal/domain/library"
	"github.com/eoty/eoty-backend/internal/platform/apierr"
	"github.com/eoty/eoty-backend/internal/platform/dbctx"
	"github.com/eoty/eoty-backend/internal/platform/logger"
	"github.com/eoty/eoty-backend/internal/requestdata"
)

// CoveragePolicy parameterizes the coverage computation. AudienceSize is
// the platform's active-user count, supplied by the surrounding system.
type CoveragePolicy struct {
	AudienceSize int64
	WindowDays   int
	TargetRatio  float64
}

func DefaultCoveragePolicy() CoveragePolicy {
	return CoveragePolicy{WindowDays: 90, TargetRatio: 0.80}
}

type CoverageStats struct {
	AudienceSize       int64   `json:"audience_size"`
	ResourcesWithUsage int64   `json:"resources_with_usage"`
	CoverageRatio      float64 `json:"coverage_ratio"`
	MeetsTarget        bool    `json:"meets_target"`
	WindowDays         int     `json:"window_days"`
}

// UsageBreakdownCap bounds the admin usage query.
const UsageBreakdownCap = 10000

type TelemetryService interface {
	Record(ctx context.Context, caller *requestdata.CallerContext, resourceID uuid.UUID, action string, metadata map[string]any) error
	CoverageStatistics(ctx context.Context, caller *requestdata.CallerContext) (*CoverageStats, error)
	UsageBreakdown(ctx context.Context, caller *requestdata.CallerContext, from, to time.Time, action string) ([]*librepo.UsageBreakdownRow, error)
}

type telemetryService struct {
	log       *logger.Logger
	policy    CoveragePolicy
	usageRepo librepo.UsageEventRepo
}

func NewTelemetryService(baseLog *logger.Logger, policy CoveragePolicy, usageRepo librepo.UsageEventRepo) TelemetryService {
	if policy.WindowDays <= 0 {
		policy.WindowDays = 90
	}
	if policy.TargetRatio <= 0 {
		policy.TargetRatio = 0.80
	}
	return &telemetryService{
		log:       baseLog.With("service", "TelemetryService"),
		policy:    policy,
		usageRepo: usageRepo,
	}
}

func validAction(action string) bool {
	switch action {
	case library.ActionUpload, library.ActionView, library.ActionDownload,
		library.ActionAISummaryGenerated, library.ActionNoteCreated,
		library.ActionShareCreated, library.ActionAccessDenied:
		return true
	}
	return false
}

func (s *telemetryService) Record(ctx context.Context, caller *requestdata.CallerContext, resourceID uuid.UUID, action string, metadata map[string]any) error {
	if caller == nil || caller.UserID == uuid.Nil {
		return apierr.Newf(apierr.CodeForbidden, "missing caller")
	}
	if !validAction(action) {
		return apierr.Newf(apierr.CodeInvalidInput, "unknown action %q", action)
	}
	var raw datatypes.JSON
	if metadata != nil {
		b, err := json.Marshal(metadata)
		if err != nil {
			return apierr.Newf(apierr.CodeInvalidInput, "metadata is not serializable")
		}
		raw = datatypes.JSON(b)
	}
	_, err := s.usageRepo.Create(dbctx.Context{Ctx: ctx}, []*types.UsageEvent{{
		ID:         uuid.New(),
		UserID:     caller.UserID,
		ResourceID: resourceID,
		Action:     action,
		Metadata:   raw,
		CreatedAt:  time.Now(),
	}})
	if err != nil {
		return apierr.New(apierr.CodeStorageFailure, err)
	}
	return nil
}

func (s *telemetryService) CoverageStatistics(ctx context.Context, caller *requestdata.CallerContext) (*CoverageStats, error) {
	if caller == nil || !caller.IsAdmin() {
		return nil, apierr.Newf(apierr.CodeForbidden, "admin required")
	}

	dbc := dbctx.Context{Ctx: ctx}
	since := time.Now().AddDate(0, 0, -s.policy.WindowDays)

	viewers, err := s.usageRepo.DistinctViewerCountSince(dbc, since)
	if err != nil {
		return nil, apierr.New(apierr.CodeStorageFailure, err)
	}
	resources, err := s.usageRepo.ResourcesWithUsageSince(dbc, since)
	if err != nil {
		return nil, apierr.New(apierr.CodeStorageFailure, err)
	}

	ratio := 0.0
	if s.policy.AudienceSize > 0 {
		ratio = float64(viewers) / float64(s.policy.AudienceSize)
	}
	return &CoverageStats{
		AudienceSize:       s.policy.AudienceSize,
		ResourcesWithUsage: resources,
		CoverageRatio:      ratio,
		MeetsTarget:        ratio >= s.policy.TargetRatio,
		WindowDays:         s.policy.WindowDays,
	}, nil
}

func (s *telemetryService) UsageBreakdown(ctx context.Context, caller *requestdata.CallerContext, from, to time.Time, action string) ([]*librepo.UsageBreakdownRow, error) {
	if caller == nil || !caller.IsAdmin() {
		return nil, apierr.Newf(apierr.CodeForbidden, "admin required")
	}
	if action != "" && !validAction(action) {
		return nil, apierr.Newf(apierr.CodeInvalidInput, "unknown action %q", action)
	}
	if to.IsZero() {
		to = time.Now()
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -s.policy.WindowDays)
	}
	if !from.Before(to) {
		return nil, apierr.Newf(apierr.CodeInvalidInput, "from must precede to")
	}

	rows, err := s.usageRepo.Breakdown(dbctx.Context{Ctx: ctx}, from, to, action, UsageBreakdownCap)
	if err != nil {
		return nil, apierr.New(apierr.CodeStorageFailure, err)
	}
	return rows, nil
}
