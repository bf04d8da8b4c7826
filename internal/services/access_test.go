package services

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"

	types "github.com/eoty/eoty-backend/internal/domain"
	"github.com/eoty/eoty-backend/internal/domain/library"
	"github.com/eoty/eoty-backend/internal/platform/apierr"
	"github.com/eoty/eoty-backend/internal/platform/dbctx"
	"github.com/eoty/eoty-backend/internal/requestdata"
)

func member(chapter *uuid.UUID, enrolled ...uuid.UUID) *requestdata.CallerContext {
	return &requestdata.CallerContext{
		UserID:          uuid.New(),
		Role:            "member",
		ChapterID:       chapter,
		EnrolledCourses: enrolled,
	}
}

func readyResource(ownerID uuid.UUID, scope string) *types.Resource {
	return &types.Resource{
		ID:      uuid.New(),
		OwnerID: ownerID,
		Scope:   scope,
		Status:  library.StatusReady,
	}
}

func TestVisibilityAnonymousMatchesNothing(t *testing.T) {
	svc := NewAccessService(testLogger(t), &fakeUsageRepo{})
	vis := svc.Visibility(nil)
	if vis.All || vis.SQL != "" {
		t.Fatalf("anonymous visibility should be empty, got %+v", vis)
	}
}

func TestVisibilityAdminSeesAll(t *testing.T) {
	svc := NewAccessService(testLogger(t), &fakeUsageRepo{})
	vis := svc.Visibility(&requestdata.CallerContext{UserID: uuid.New(), Role: requestdata.RoleAdmin})
	if !vis.All {
		t.Fatalf("admin visibility should be unrestricted")
	}
}

func TestVisibilityMemberPredicate(t *testing.T) {
	svc := NewAccessService(testLogger(t), &fakeUsageRepo{})
	chapter := uuid.New()
	course := uuid.New()
	caller := member(&chapter, course)

	vis := svc.Visibility(caller)
	if vis.All {
		t.Fatalf("member visibility should be scoped")
	}
	for _, clause := range []string{"owner_private", "platform_wide", "chapter_wide", "course_specific", "status <> 'failed'"} {
		if !strings.Contains(vis.SQL, clause) {
			t.Fatalf("predicate missing %q: %s", clause, vis.SQL)
		}
	}
	// owner id, chapter id, course list
	if len(vis.Args) != 3 {
		t.Fatalf("args: want=3 got=%d", len(vis.Args))
	}
}

func TestVisibilityMemberWithoutChapterOrCourses(t *testing.T) {
	svc := NewAccessService(testLogger(t), &fakeUsageRepo{})
	vis := svc.Visibility(member(nil))
	if strings.Contains(vis.SQL, "chapter_wide") || strings.Contains(vis.SQL, "course_specific") {
		t.Fatalf("predicate should omit unheld scopes: %s", vis.SQL)
	}
	if len(vis.Args) != 1 {
		t.Fatalf("args: want=1 got=%d", len(vis.Args))
	}
}

func TestCanViewMatrix(t *testing.T) {
	svc := NewAccessService(testLogger(t), &fakeUsageRepo{})
	chapter := uuid.New()
	otherChapter := uuid.New()
	course := uuid.New()
	caller := member(&chapter, course)

	ownPrivate := readyResource(caller.UserID, library.ScopeOwnerPrivate)
	othersPrivate := readyResource(uuid.New(), library.ScopeOwnerPrivate)
	platform := readyResource(uuid.New(), library.ScopePlatformWide)

	sameChapter := readyResource(uuid.New(), library.ScopeChapterWide)
	sameChapter.ChapterID = &chapter
	foreignChapter := readyResource(uuid.New(), library.ScopeChapterWide)
	foreignChapter.ChapterID = &otherChapter

	enrolledCourse := readyResource(uuid.New(), library.ScopeCourseSpecific)
	enrolledCourse.CourseID = &course
	otherCourse := uuid.New()
	foreignCourse := readyResource(uuid.New(), library.ScopeCourseSpecific)
	foreignCourse.CourseID = &otherCourse

	cases := []struct {
		name string
		res  *types.Resource
		want bool
	}{
		{"own private", ownPrivate, true},
		{"others private", othersPrivate, false},
		{"platform wide", platform, true},
		{"same chapter", sameChapter, true},
		{"foreign chapter", foreignChapter, false},
		{"enrolled course", enrolledCourse, true},
		{"foreign course", foreignCourse, false},
	}
	for _, tc := range cases {
		if got := svc.CanView(caller, tc.res); got != tc.want {
			t.Fatalf("%s: want=%v got=%v", tc.name, tc.want, got)
		}
	}
}

func TestCanViewInstructorSeesCourseResource(t *testing.T) {
	svc := NewAccessService(testLogger(t), &fakeUsageRepo{})
	course := uuid.New()
	caller := &requestdata.CallerContext{
		UserID:            uuid.New(),
		Role:              "member",
		InstructorCourses: []uuid.UUID{course},
	}
	res := readyResource(uuid.New(), library.ScopeCourseSpecific)
	res.CourseID = &course
	if !svc.CanView(caller, res) {
		t.Fatalf("instructor should see course resource")
	}
}

func TestCanViewFailedResourceHiddenFromOwner(t *testing.T) {
	svc := NewAccessService(testLogger(t), &fakeUsageRepo{})
	caller := member(nil)
	res := readyResource(caller.UserID, library.ScopeOwnerPrivate)
	res.Status = library.StatusFailed
	if svc.CanView(caller, res) {
		t.Fatalf("failed resources should be admin-only")
	}
	admin := &requestdata.CallerContext{UserID: uuid.New(), Role: requestdata.RoleAdmin}
	if !svc.CanView(admin, res) {
		t.Fatalf("admin should still see failed resources")
	}
}

func TestCheckInvisibleComesBackNotFound(t *testing.T) {
	usage := &fakeUsageRepo{}
	svc := NewAccessService(testLogger(t), usage)
	caller := member(nil)
	res := readyResource(uuid.New(), library.ScopeOwnerPrivate)

	err := svc.Check(dbctx.Context{Ctx: context.Background()}, caller, res, ActionView)
	if !apierr.Is(err, apierr.CodeNotFound) {
		t.Fatalf("want not_found, got %v", err)
	}
	if len(usage.events) != 1 {
		t.Fatalf("want 1 denial event, got %d", len(usage.events))
	}
	ev := usage.events[0]
	if ev.Action != library.ActionAccessDenied {
		t.Fatalf("event action: want=%q got=%q", library.ActionAccessDenied, ev.Action)
	}
	var meta map[string]string
	if err := json.Unmarshal(ev.Metadata, &meta); err != nil {
		t.Fatalf("unmarshal event metadata: %v", err)
	}
	if meta["action"] != "view" || meta["reason"] != "not_visible" {
		t.Fatalf("unexpected metadata %v", meta)
	}
}

func TestCheckDownloadRequiresReady(t *testing.T) {
	usage := &fakeUsageRepo{}
	svc := NewAccessService(testLogger(t), usage)
	caller := member(nil)
	res := readyResource(caller.UserID, library.ScopeOwnerPrivate)
	res.Status = library.StatusExtracting

	err := svc.Check(dbctx.Context{Ctx: context.Background()}, caller, res, ActionDownload)
	if !apierr.Is(err, apierr.CodeResourceNotReady) {
		t.Fatalf("want resource_not_ready, got %v", err)
	}
	if len(usage.events) != 1 {
		t.Fatalf("want 1 denial event, got %d", len(usage.events))
	}
}

func TestCheckShareRequiresChapter(t *testing.T) {
	svc := NewAccessService(testLogger(t), &fakeUsageRepo{})
	caller := member(nil)
	res := readyResource(caller.UserID, library.ScopeOwnerPrivate)

	err := svc.Check(dbctx.Context{Ctx: context.Background()}, caller, res, ActionShareWithChapter)
	if !apierr.Is(err, apierr.CodeNoChapter) {
		t.Fatalf("want no_chapter, got %v", err)
	}
}

func TestCheckEditRequiresOwnerOrAdmin(t *testing.T) {
	usage := &fakeUsageRepo{}
	svc := NewAccessService(testLogger(t), usage)
	caller := member(nil)
	res := readyResource(uuid.New(), library.ScopePlatformWide)

	err := svc.Check(dbctx.Context{Ctx: context.Background()}, caller, res, ActionEditMetadata)
	if !apierr.Is(err, apierr.CodeForbidden) {
		t.Fatalf("want forbidden, got %v", err)
	}

	admin := &requestdata.CallerContext{UserID: uuid.New(), Role: requestdata.RoleAdmin}
	if err := svc.Check(dbctx.Context{Ctx: context.Background()}, admin, res, ActionDelete); err != nil {
		t.Fatalf("admin delete should pass, got %v", err)
	}
}

func TestCheckValidateSummaryAdminOnly(t *testing.T) {
	svc := NewAccessService(testLogger(t), &fakeUsageRepo{})
	caller := member(nil)
	res := readyResource(caller.UserID, library.ScopeOwnerPrivate)

	err := svc.Check(dbctx.Context{Ctx: context.Background()}, caller, res, ActionValidateSummary)
	if !apierr.Is(err, apierr.CodeForbidden) {
		t.Fatalf("want forbidden for non-admin, got %v", err)
	}
}

func TestCheckAllowedActionRecordsNothing(t *testing.T) {
	usage := &fakeUsageRepo{}
	svc := NewAccessService(testLogger(t), usage)
	caller := member(nil)
	res := readyResource(caller.UserID, library.ScopeOwnerPrivate)

	if err := svc.Check(dbctx.Context{Ctx: context.Background()}, caller, res, ActionAnnotate); err != nil {
		t.Fatalf("annotate on own resource should pass, got %v", err)
	}
	if len(usage.events) != 0 {
		t.Fatalf("no events expected on allow, got %d", len(usage.events))
	}
}
