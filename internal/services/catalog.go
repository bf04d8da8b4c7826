package services

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	librepo "github.com/eoty/eoty-backend/internal/data/repos/library"
	types "github.com/eoty/eoty-backend/internal/domain"
	"github.com/eoty/eoty-backend/internal/domain/library"
	"github.com/eoty/eoty-backend/internal/platform/apierr"
	"github.com/eoty/eoty-backend/internal/platform/dbctx"
	"github.com/eoty/eoty-backend/internal/platform/gcp"
	"github.com/eoty/eoty-backend/internal/platform/logger"
	"github.com/eoty/eoty-backend/internal/requestdata"
)

// ResourceView is the catalog projection: the resource plus the derived
// rendering flags.
type ResourceView struct {
	*types.Resource
	CanViewInline bool `json:"can_view_inline"`
	IsUnsupported bool `json:"is_unsupported"`
}

func NewResourceView(res *types.Resource) *ResourceView {
	return &ResourceView{
		Resource:      res,
		CanViewInline: library.CanViewInline(res.FileType),
		IsUnsupported: library.Unsupported(res.FileType),
	}
}

type SearchResult struct {
	Items  []*ResourceView `json:"items"`
	Total  int64           `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

// Download is a gated blob read; Length < 0 means "to end of object".
type Download struct {
	Body        io.ReadCloser
	Filename    string
	ContentType string
	Size        int64
	Offset      int64
	Length      int64
}

// CatalogService answers scoped search and fetch queries. Every query is
// narrowed by the caller's Visibility predicate before execution.
type CatalogService interface {
	Search(ctx context.Context, caller *requestdata.CallerContext, filters librepo.SearchFilters, paging librepo.Paging) (*SearchResult, error)
	GetResource(ctx context.Context, caller *requestdata.CallerContext, id uuid.UUID) (*ResourceView, error)
	GetFilterOptions(ctx context.Context, caller *requestdata.CallerContext) (*librepo.FilterOptions, error)
	ListByScope(ctx context.Context, caller *requestdata.CallerContext, scope string, companionID *uuid.UUID, paging librepo.Paging) (*SearchResult, error)
	// OpenDownload streams the content blob for a ready resource. offset
	// and length implement single byte ranges; pass 0, -1 for the whole
	// object.
	OpenDownload(ctx context.Context, caller *requestdata.CallerContext, id uuid.UUID, offset, length int64) (*Download, error)
}

type catalogService struct {
	log          *logger.Logger
	access       AccessService
	resourceRepo librepo.ResourceRepo
	usageRepo    librepo.UsageEventRepo
	bucket       gcp.BucketService
}

func NewCatalogService(
	baseLog *logger.Logger,
	access AccessService,
	resourceRepo librepo.ResourceRepo,
	usageRepo librepo.UsageEventRepo,
	bucket gcp.BucketService,
) CatalogService {
	return &catalogService{
		log:          baseLog.With("service", "CatalogService"),
		access:       access,
		resourceRepo: resourceRepo,
		usageRepo:    usageRepo,
		bucket:       bucket,
	}
}

func (s *catalogService) Search(ctx context.Context, caller *requestdata.CallerContext, filters librepo.SearchFilters, paging librepo.Paging) (*SearchResult, error) {
	dbc := dbctx.Context{Ctx: ctx}
	vis := s.access.Visibility(caller)
	rows, total, err := s.resourceRepo.Search(dbc, vis, filters, paging)
	if err != nil {
		return nil, apierr.New(apierr.CodeStorageFailure, err)
	}
	return s.toResult(rows, total, paging), nil
}

func (s *catalogService) ListByScope(ctx context.Context, caller *requestdata.CallerContext, scope string, companionID *uuid.UUID, paging librepo.Paging) (*SearchResult, error) {
	switch scope {
	case library.ScopeOwnerPrivate, library.ScopeCourseSpecific, library.ScopeChapterWide, library.ScopePlatformWide:
	default:
		return nil, apierr.Newf(apierr.CodeInvalidScope, "unknown scope %q", scope)
	}
	dbc := dbctx.Context{Ctx: ctx}
	vis := s.access.Visibility(caller)
	rows, total, err := s.resourceRepo.ListByScope(dbc, vis, scope, companionID, paging)
	if err != nil {
		return nil, apierr.New(apierr.CodeStorageFailure, err)
	}
	return s.toResult(rows, total, paging), nil
}

func (s *catalogService) toResult(rows []*types.Resource, total int64, paging librepo.Paging) *SearchResult {
	items := make([]*ResourceView, 0, len(rows))
	for _, r := range rows {
		items = append(items, NewResourceView(r))
	}
	if paging.Limit <= 0 {
		paging.Limit = librepo.DefaultPageLimit
	}
	if paging.Limit > librepo.MaxPageLimit {
		paging.Limit = librepo.MaxPageLimit
	}
	if paging.Offset < 0 {
		paging.Offset = 0
	}
	return &SearchResult{Items: items, Total: total, Limit: paging.Limit, Offset: paging.Offset}
}

func (s *catalogService) GetResource(ctx context.Context, caller *requestdata.CallerContext, id uuid.UUID) (*ResourceView, error) {
	dbc := dbctx.Context{Ctx: ctx}
	res, err := s.resourceRepo.GetByID(dbc, id)
	if err != nil {
		return nil, apierr.New(apierr.CodeStorageFailure, err)
	}
	if res == nil {
		return nil, apierr.Newf(apierr.CodeNotFound, "resource not found")
	}
	if err := s.access.Check(dbc, caller, res, ActionView); err != nil {
		return nil, err
	}
	s.recordEvent(dbc, caller, res.ID, library.ActionView, nil)
	return NewResourceView(res), nil
}

func (s *catalogService) GetFilterOptions(ctx context.Context, caller *requestdata.CallerContext) (*librepo.FilterOptions, error) {
	dbc := dbctx.Context{Ctx: ctx}
	vis := s.access.Visibility(caller)
	opts, err := s.resourceRepo.FilterOptions(dbc, vis)
	if err != nil {
		return nil, apierr.New(apierr.CodeStorageFailure, err)
	}
	return opts, nil
}

func (s *catalogService) OpenDownload(ctx context.Context, caller *requestdata.CallerContext, id uuid.UUID, offset, length int64) (*Download, error) {
	dbc := dbctx.Context{Ctx: ctx}
	res, err := s.resourceRepo.GetByID(dbc, id)
	if err != nil {
		return nil, apierr.New(apierr.CodeStorageFailure, err)
	}
	if res == nil {
		return nil, apierr.Newf(apierr.CodeNotFound, "resource not found")
	}
	if err := s.access.Check(dbc, caller, res, ActionDownload); err != nil {
		return nil, err
	}

	if offset < 0 {
		offset = 0
	}
	body, err := s.bucket.OpenRangeReader(ctx, res.BlobKey, offset, length)
	if err != nil {
		return nil, apierr.New(apierr.CodeStorageFailure, err)
	}
	s.recordEvent(dbc, caller, res.ID, library.ActionDownload, map[string]any{"offset": offset})
	return &Download{
		Body:        body,
		Filename:    res.Title,
		ContentType: res.MimeType,
		Size:        res.SizeBytes,
		Offset:      offset,
		Length:      length,
	}, nil
}

func (s *catalogService) recordEvent(dbc dbctx.Context, caller *requestdata.CallerContext, resourceID uuid.UUID, action string, meta map[string]any) {
	var raw datatypes.JSON
	if meta != nil {
		if b, err := json.Marshal(meta); err == nil {
			raw = datatypes.JSON(b)
		}
	}
	if _, err := s.usageRepo.Create(dbc, []*types.UsageEvent{{
		ID:         uuid.New(),
		UserID:     caller.UserID,
		ResourceID: resourceID,
		Action:     action,
		Metadata:   raw,
		CreatedAt:  time.Now(),
	}}); err != nil {
		s.log.Warn("record usage event failed", "error", err, "action", action, "resource_id", resourceID)
	}
}
