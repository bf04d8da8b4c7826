package library

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/eoty/eoty-backend/internal/data/repos/testutil"
	types "github.com/eoty/eoty-backend/internal/domain"
	libdomain "github.com/eoty/eoty-backend/internal/domain/library"
)

func seedEvent(t *testing.T, repo UsageEventRepo, resourceID, userID uuid.UUID, action string, at time.Time) {
	t.Helper()
	_, err := repo.Create(dbctxBackground(), []*types.UsageEvent{{
		ID:         uuid.New(),
		UserID:     userID,
		ResourceID: resourceID,
		Action:     action,
		CreatedAt:  at,
	}})
	if err != nil {
		t.Fatalf("seed event: %v", err)
	}
}

func TestUsageDistinctViewerCountSince(t *testing.T) {
	tx := testutil.Tx(t)
	log := testutil.Logger(t)
	resources := NewResourceRepo(tx, log)
	events := NewUsageEventRepo(tx, log)

	res := seedResource(t, resources, nil)
	alice := uuid.New()
	bob := uuid.New()
	now := time.Now()

	seedEvent(t, events, res.ID, alice, libdomain.ActionView, now)
	seedEvent(t, events, res.ID, alice, libdomain.ActionView, now) // repeat view
	seedEvent(t, events, res.ID, bob, libdomain.ActionView, now)
	seedEvent(t, events, res.ID, bob, libdomain.ActionDownload, now)        // not a view
	seedEvent(t, events, res.ID, uuid.New(), libdomain.ActionView, now.AddDate(0, 0, -100)) // outside window

	got, err := events.DistinctViewerCountSince(dbctxBackground(), now.AddDate(0, 0, -90))
	if err != nil {
		t.Fatalf("DistinctViewerCountSince: %v", err)
	}
	if got != 2 {
		t.Fatalf("distinct viewers: want=2 got=%d", got)
	}
}

func TestUsageResourcesWithUsageSince(t *testing.T) {
	tx := testutil.Tx(t)
	log := testutil.Logger(t)
	resources := NewResourceRepo(tx, log)
	events := NewUsageEventRepo(tx, log)

	used := seedResource(t, resources, nil)
	alsoUsed := seedResource(t, resources, nil)
	seedResource(t, resources, nil) // untouched
	now := time.Now()

	seedEvent(t, events, used.ID, uuid.New(), libdomain.ActionView, now)
	seedEvent(t, events, used.ID, uuid.New(), libdomain.ActionDownload, now)
	seedEvent(t, events, alsoUsed.ID, uuid.New(), libdomain.ActionUpload, now)

	got, err := events.ResourcesWithUsageSince(dbctxBackground(), now.AddDate(0, 0, -90))
	if err != nil {
		t.Fatalf("ResourcesWithUsageSince: %v", err)
	}
	if got != 2 {
		t.Fatalf("resources with usage: want=2 got=%d", got)
	}
}

func TestUsageBreakdownGroupsAndFilters(t *testing.T) {
	tx := testutil.Tx(t)
	log := testutil.Logger(t)
	resources := NewResourceRepo(tx, log)
	events := NewUsageEventRepo(tx, log)

	res := seedResource(t, resources, nil)
	viewer := uuid.New()
	now := time.Now()

	seedEvent(t, events, res.ID, viewer, libdomain.ActionView, now)
	seedEvent(t, events, res.ID, viewer, libdomain.ActionView, now)
	seedEvent(t, events, res.ID, viewer, libdomain.ActionDownload, now)

	rows, err := events.Breakdown(dbctxBackground(), now.Add(-time.Hour), now.Add(time.Hour), libdomain.ActionView, 100)
	if err != nil {
		t.Fatalf("Breakdown: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("filtered breakdown rows: want=1 got=%d", len(rows))
	}
	if rows[0].Count != 2 || rows[0].Action != libdomain.ActionView || rows[0].UserID != viewer {
		t.Fatalf("unexpected row %+v", rows[0])
	}
}
