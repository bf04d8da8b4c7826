package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	librepo "github.com/eoty/eoty-backend/internal/data/repos/library"
	types "github.com/eoty/eoty-backend/internal/domain"
	"github.com/eoty/eoty-backend/internal/domain/library"
	"github.com/eoty/eoty-backend/internal/platform/apierr"
	"github.com/eoty/eoty-backend/internal/platform/dbctx"
	"github.com/eoty/eoty-backend/internal/platform/openai"
)

type fakeResourceRepo struct {
	byID     map[uuid.UUID]*types.Resource
	rows     []*types.Resource
	total    int64
	blobKeys map[string]bool
	textKeys map[string]bool

	lastVisibility librepo.Visibility
	lastScope      string
}

func (f *fakeResourceRepo) Create(dbc dbctx.Context, resources []*types.Resource) ([]*types.Resource, error) {
	return resources, nil
}

func (f *fakeResourceRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Resource, error) {
	return f.byID[id], nil
}

func (f *fakeResourceRepo) GetVisibleByID(dbc dbctx.Context, id uuid.UUID, vis librepo.Visibility) (*types.Resource, error) {
	return f.byID[id], nil
}

func (f *fakeResourceRepo) Search(dbc dbctx.Context, vis librepo.Visibility, filters librepo.SearchFilters, paging librepo.Paging) ([]*types.Resource, int64, error) {
	f.lastVisibility = vis
	return f.rows, f.total, nil
}

func (f *fakeResourceRepo) ListByScope(dbc dbctx.Context, vis librepo.Visibility, scope string, companionID *uuid.UUID, paging librepo.Paging) ([]*types.Resource, int64, error) {
	f.lastVisibility = vis
	f.lastScope = scope
	return f.rows, f.total, nil
}

func (f *fakeResourceRepo) FilterOptions(dbc dbctx.Context, vis librepo.Visibility) (*librepo.FilterOptions, error) {
	return &librepo.FilterOptions{}, nil
}

func (f *fakeResourceRepo) UpdateMetadataVersioned(dbc dbctx.Context, id uuid.UUID, version int, updates map[string]interface{}) (bool, error) {
	return false, nil
}

func (f *fakeResourceRepo) UpdateStatusCAS(dbc dbctx.Context, id uuid.UUID, fromStatus string, updates map[string]interface{}) (bool, error) {
	return false, nil
}

func (f *fakeResourceRepo) FullDeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error { return nil }

func (f *fakeResourceRepo) CountByBlobKey(dbc dbctx.Context, blobKey string, excludeID uuid.UUID) (int64, error) {
	return 0, nil
}

func (f *fakeResourceRepo) ExistsByBlobKey(dbc dbctx.Context, blobKey string) (bool, error) {
	return f.blobKeys[blobKey], nil
}

func (f *fakeResourceRepo) ExistsByTextKey(dbc dbctx.Context, textKey string) (bool, error) {
	return f.textKeys[textKey], nil
}

type fakeSummaryRepo struct {
	publishable *types.AISummary
	pending     *types.AISummary
	byID        map[uuid.UUID]*types.AISummary

	validateOK      bool
	validateUpdates map[string]interface{}
	replaced        *types.AISummary
}

func (f *fakeSummaryRepo) Create(dbc dbctx.Context, summaries []*types.AISummary) ([]*types.AISummary, error) {
	return summaries, nil
}

func (f *fakeSummaryRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.AISummary, error) {
	return f.byID[id], nil
}

func (f *fakeSummaryRepo) GetPublishable(dbc dbctx.Context, resourceID uuid.UUID, summaryType string) (*types.AISummary, error) {
	return f.publishable, nil
}

func (f *fakeSummaryRepo) GetUnvalidated(dbc dbctx.Context, resourceID uuid.UUID, summaryType string) (*types.AISummary, error) {
	return f.pending, nil
}

func (f *fakeSummaryRepo) ListUnvalidated(dbc dbctx.Context, limit int) ([]*types.AISummary, error) {
	return nil, nil
}

func (f *fakeSummaryRepo) ReplaceUnvalidated(dbc dbctx.Context, summary *types.AISummary) (*types.AISummary, error) {
	f.replaced = summary
	return summary, nil
}

func (f *fakeSummaryRepo) ValidateVersioned(dbc dbctx.Context, id uuid.UUID, version int, updates map[string]interface{}) (bool, error) {
	f.validateUpdates = updates
	return f.validateOK, nil
}

func (f *fakeSummaryRepo) FullDeleteByResourceIDs(dbc dbctx.Context, resourceIDs []uuid.UUID) error {
	return nil
}

type fakeGenerator struct {
	result *openai.SummaryResult
	err    error
	called bool
}

func (f *fakeGenerator) GenerateSummary(ctx context.Context, text, summaryType string) (*openai.SummaryResult, error) {
	f.called = true
	return f.result, f.err
}

func summaryServiceWith(t *testing.T, resources *fakeResourceRepo, summaries *fakeSummaryRepo, gen *fakeGenerator, bucket *fakeBucket) SummaryService {
	t.Helper()
	access := NewAccessService(testLogger(t), &fakeUsageRepo{})
	return NewSummaryService(testLogger(t), nil, access, resources, summaries, &fakeUsageRepo{}, bucket, gen, nil)
}

func TestGetOrGenerateRejectsUnknownType(t *testing.T) {
	svc := summaryServiceWith(t, &fakeResourceRepo{}, &fakeSummaryRepo{}, &fakeGenerator{}, newFakeBucket())
	_, err := svc.GetOrGenerate(context.Background(), adminCaller(), uuid.New(), "haiku")
	if !apierr.Is(err, apierr.CodeInvalidInput) {
		t.Fatalf("want invalid_input, got %v", err)
	}
}

func TestGetOrGenerateMissingResource(t *testing.T) {
	svc := summaryServiceWith(t, &fakeResourceRepo{byID: map[uuid.UUID]*types.Resource{}}, &fakeSummaryRepo{}, &fakeGenerator{}, newFakeBucket())
	_, err := svc.GetOrGenerate(context.Background(), adminCaller(), uuid.New(), library.SummaryTypeBrief)
	if !apierr.Is(err, apierr.CodeNotFound) {
		t.Fatalf("want not_found, got %v", err)
	}
}

func TestGetOrGenerateServesPublishable(t *testing.T) {
	caller := member(nil)
	res := readyResource(caller.UserID, library.ScopeOwnerPrivate)
	now := time.Now()
	admin := uuid.New()
	published := &types.AISummary{
		ID:             uuid.New(),
		ResourceID:     res.ID,
		SummaryType:    library.SummaryTypeBrief,
		WordCount:      120,
		RelevanceScore: 0.99,
		ValidatedBy:    &admin,
		ValidatedAt:    &now,
	}
	gen := &fakeGenerator{}
	svc := summaryServiceWith(t,
		&fakeResourceRepo{byID: map[uuid.UUID]*types.Resource{res.ID: res}},
		&fakeSummaryRepo{publishable: published},
		gen, newFakeBucket())

	env, err := svc.GetOrGenerate(context.Background(), caller, res.ID, library.SummaryTypeBrief)
	if err != nil {
		t.Fatalf("GetOrGenerate: %v", err)
	}
	if !env.Publishable || !env.MeetsWordLimit || !env.MeetsRelevanceRequirement {
		t.Fatalf("envelope gates: %+v", env)
	}
	if gen.called {
		t.Fatalf("generator must not run when a publishable summary exists")
	}
}

func TestGetOrGenerateServesPendingWithoutRegenerating(t *testing.T) {
	caller := member(nil)
	res := readyResource(caller.UserID, library.ScopeOwnerPrivate)
	pending := &types.AISummary{
		ID:             uuid.New(),
		ResourceID:     res.ID,
		SummaryType:    library.SummaryTypeBrief,
		WordCount:      300,
		RelevanceScore: 0.5,
	}
	gen := &fakeGenerator{}
	svc := summaryServiceWith(t,
		&fakeResourceRepo{byID: map[uuid.UUID]*types.Resource{res.ID: res}},
		&fakeSummaryRepo{pending: pending},
		gen, newFakeBucket())

	env, err := svc.GetOrGenerate(context.Background(), caller, res.ID, library.SummaryTypeBrief)
	if err != nil {
		t.Fatalf("GetOrGenerate: %v", err)
	}
	if env.Publishable {
		t.Fatalf("pending summary must not be publishable")
	}
	if env.MeetsWordLimit {
		t.Fatalf("300-word brief exceeds the limit")
	}
	if gen.called {
		t.Fatalf("generator must not run while a draft is pending")
	}
}

func TestGetOrGenerateNotReadyResource(t *testing.T) {
	caller := member(nil)
	res := readyResource(caller.UserID, library.ScopeOwnerPrivate)
	res.Status = library.StatusExtracting
	svc := summaryServiceWith(t,
		&fakeResourceRepo{byID: map[uuid.UUID]*types.Resource{res.ID: res}},
		&fakeSummaryRepo{}, &fakeGenerator{}, newFakeBucket())

	_, err := svc.GetOrGenerate(context.Background(), caller, res.ID, library.SummaryTypeBrief)
	if !apierr.Is(err, apierr.CodeResourceNotReady) {
		t.Fatalf("want resource_not_ready, got %v", err)
	}
}

func TestGetOrGenerateTextlessReadyResource(t *testing.T) {
	caller := member(nil)
	res := readyResource(caller.UserID, library.ScopeOwnerPrivate)
	res.FileType = library.FileTypeAudio // ready but no extracted text
	svc := summaryServiceWith(t,
		&fakeResourceRepo{byID: map[uuid.UUID]*types.Resource{res.ID: res}},
		&fakeSummaryRepo{}, &fakeGenerator{}, newFakeBucket())

	_, err := svc.GetOrGenerate(context.Background(), caller, res.ID, library.SummaryTypeBrief)
	if !apierr.Is(err, apierr.CodeResourceNotReady) {
		t.Fatalf("want resource_not_ready, got %v", err)
	}
}

func TestGetOrGenerateGeneratorFailureNotPersisted(t *testing.T) {
	caller := member(nil)
	res := readyResource(caller.UserID, library.ScopeOwnerPrivate)
	textKey := "extracted/" + res.ID.String() + ".txt"
	res.TextKey = &textKey

	bucket := newFakeBucket()
	bucket.objects[textKey] = []byte("extracted body text")
	summaries := &fakeSummaryRepo{}
	gen := &fakeGenerator{err: apierr.Newf(apierr.CodeUpstreamTimeout, "model timed out")}
	svc := summaryServiceWith(t,
		&fakeResourceRepo{byID: map[uuid.UUID]*types.Resource{res.ID: res}},
		summaries, gen, bucket)

	_, err := svc.GetOrGenerate(context.Background(), caller, res.ID, library.SummaryTypeBrief)
	if !apierr.Is(err, apierr.CodeUpstreamTimeout) {
		t.Fatalf("want upstream_timeout passthrough, got %v", err)
	}
	if summaries.replaced != nil {
		t.Fatalf("nothing may be persisted on generator failure")
	}
}

func TestValidateAdminOnly(t *testing.T) {
	svc := summaryServiceWith(t, &fakeResourceRepo{}, &fakeSummaryRepo{}, &fakeGenerator{}, newFakeBucket())
	_, err := svc.Validate(context.Background(), member(nil), uuid.New(), 0.99, "")
	if !apierr.Is(err, apierr.CodeForbidden) {
		t.Fatalf("want forbidden, got %v", err)
	}
}

func TestValidateScoreBounds(t *testing.T) {
	svc := summaryServiceWith(t, &fakeResourceRepo{}, &fakeSummaryRepo{}, &fakeGenerator{}, newFakeBucket())
	if _, err := svc.Validate(context.Background(), adminCaller(), uuid.New(), 1.2, ""); !apierr.Is(err, apierr.CodeInvalidInput) {
		t.Fatalf("score above 1: want invalid_input, got %v", err)
	}
	if _, err := svc.Validate(context.Background(), adminCaller(), uuid.New(), -0.1, ""); !apierr.Is(err, apierr.CodeInvalidInput) {
		t.Fatalf("negative score: want invalid_input, got %v", err)
	}
}

func TestValidateRelevanceFloor(t *testing.T) {
	svc := summaryServiceWith(t, &fakeResourceRepo{}, &fakeSummaryRepo{}, &fakeGenerator{}, newFakeBucket())
	_, err := svc.Validate(context.Background(), adminCaller(), uuid.New(), 0.9799, "close but no")
	if !apierr.Is(err, apierr.CodeBelowRelevanceFloor) {
		t.Fatalf("want below_relevance_floor, got %v", err)
	}
}

func TestValidateAtFloorSucceeds(t *testing.T) {
	summary := &types.AISummary{ID: uuid.New(), ResourceID: uuid.New(), SummaryType: library.SummaryTypeBrief, Version: 1}
	summaries := &fakeSummaryRepo{
		byID:       map[uuid.UUID]*types.AISummary{summary.ID: summary},
		validateOK: true,
	}
	svc := summaryServiceWith(t, &fakeResourceRepo{}, summaries, &fakeGenerator{}, newFakeBucket())

	if _, err := svc.Validate(context.Background(), adminCaller(), summary.ID, library.RelevanceFloor, "good"); err != nil {
		t.Fatalf("Validate at the floor: %v", err)
	}
	if summaries.validateUpdates["relevance_score"] != library.RelevanceFloor {
		t.Fatalf("score not written: %v", summaries.validateUpdates)
	}
}

func TestValidateStaleVersionConflicts(t *testing.T) {
	summary := &types.AISummary{ID: uuid.New(), Version: 1}
	summaries := &fakeSummaryRepo{
		byID:       map[uuid.UUID]*types.AISummary{summary.ID: summary},
		validateOK: false,
	}
	svc := summaryServiceWith(t, &fakeResourceRepo{}, summaries, &fakeGenerator{}, newFakeBucket())

	_, err := svc.Validate(context.Background(), adminCaller(), summary.ID, 0.99, "")
	if !apierr.Is(err, apierr.CodeConflict) {
		t.Fatalf("want conflict, got %v", err)
	}
}

func TestListUnvalidatedAdminOnly(t *testing.T) {
	svc := summaryServiceWith(t, &fakeResourceRepo{}, &fakeSummaryRepo{}, &fakeGenerator{}, newFakeBucket())
	_, err := svc.ListUnvalidated(context.Background(), member(nil), 20)
	if !apierr.Is(err, apierr.CodeForbidden) {
		t.Fatalf("want forbidden, got %v", err)
	}
}
