package services

import (
	"context"
	"testing"

	"github.com/google/uuid"

	types "github.com/eoty/eoty-backend/internal/domain"
	"github.com/eoty/eoty-backend/internal/domain/library"
	"github.com/eoty/eoty-backend/internal/platform/apierr"
	"github.com/eoty/eoty-backend/internal/platform/dbctx"
)

type fakeNoteRepo struct {
	byID    map[uuid.UUID]*types.UserNote
	own     []*types.UserNote
	public  []*types.UserNote
	shared  []*types.UserNote
	updates map[string]interface{}
}

func (f *fakeNoteRepo) Create(dbc dbctx.Context, notes []*types.UserNote) ([]*types.UserNote, error) {
	return notes, nil
}

func (f *fakeNoteRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.UserNote, error) {
	return f.byID[id], nil
}

func (f *fakeNoteRepo) ListByResourceAndAuthor(dbc dbctx.Context, resourceID, authorID uuid.UUID) ([]*types.UserNote, error) {
	return f.own, nil
}

func (f *fakeNoteRepo) ListPublicByResourceExcluding(dbc dbctx.Context, resourceID, excludeAuthorID uuid.UUID) ([]*types.UserNote, error) {
	return f.public, nil
}

func (f *fakeNoteRepo) ListChapterShared(dbc dbctx.Context, resourceID, chapterID uuid.UUID) ([]*types.UserNote, error) {
	return f.shared, nil
}

func (f *fakeNoteRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	f.updates = updates
	return nil
}

func (f *fakeNoteRepo) FullDeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error { return nil }

func (f *fakeNoteRepo) FullDeleteByResourceIDs(dbc dbctx.Context, resourceIDs []uuid.UUID) error {
	return nil
}

type fakeShareRepo struct{}

func (f *fakeShareRepo) CreateIdempotent(dbc dbctx.Context, share *types.NoteShare) (*types.NoteShare, error) {
	return share, nil
}

func (f *fakeShareRepo) GetByNoteAndChapter(dbc dbctx.Context, noteID, chapterID uuid.UUID) (*types.NoteShare, error) {
	return nil, nil
}

func (f *fakeShareRepo) FullDeleteByNoteIDs(dbc dbctx.Context, noteIDs []uuid.UUID) error {
	return nil
}

func (f *fakeShareRepo) FullDeleteByResourceIDs(dbc dbctx.Context, resourceIDs []uuid.UUID) error {
	return nil
}

func noteServiceWith(t *testing.T, resources *fakeResourceRepo, notes *fakeNoteRepo) NoteService {
	t.Helper()
	access := NewAccessService(testLogger(t), &fakeUsageRepo{})
	return NewNoteService(testLogger(t), nil, access, resources, notes, &fakeShareRepo{}, &fakeUsageRepo{})
}

func strPtr(s string) *string { return &s }

func TestCreateNoteRejectsEmptyContent(t *testing.T) {
	svc := noteServiceWith(t, &fakeResourceRepo{}, &fakeNoteRepo{})
	_, err := svc.CreateNote(context.Background(), member(nil), uuid.New(), NoteInput{Content: "  "})
	if !apierr.Is(err, apierr.CodeInvalidInput) {
		t.Fatalf("want invalid_input, got %v", err)
	}
}

func TestCreateNoteRejectsUnknownVisibility(t *testing.T) {
	svc := noteServiceWith(t, &fakeResourceRepo{}, &fakeNoteRepo{})
	_, err := svc.CreateNote(context.Background(), member(nil), uuid.New(), NoteInput{
		Content:    "thoughts",
		Visibility: "chapter",
	})
	if !apierr.Is(err, apierr.CodeInvalidInput) {
		t.Fatalf("want invalid_input, got %v", err)
	}
}

func TestCreateNoteRejectsPartialSectionTriple(t *testing.T) {
	svc := noteServiceWith(t, &fakeResourceRepo{}, &fakeNoteRepo{})
	pos := 1.5
	cases := []NoteInput{
		{Content: "x", SectionAnchor: strPtr("p:3")},
		{Content: "x", SectionAnchor: strPtr("p:3"), SectionText: strPtr("quoted")},
		{Content: "x", SectionPosition: &pos},
	}
	for i, input := range cases {
		if _, err := svc.CreateNote(context.Background(), member(nil), uuid.New(), input); !apierr.Is(err, apierr.CodeInvalidInput) {
			t.Fatalf("case %d: want invalid_input, got %v", i, err)
		}
	}
}

func TestCreateNoteUnknownResource(t *testing.T) {
	svc := noteServiceWith(t, &fakeResourceRepo{byID: map[uuid.UUID]*types.Resource{}}, &fakeNoteRepo{})
	_, err := svc.CreateNote(context.Background(), member(nil), uuid.New(), NoteInput{Content: "x"})
	if !apierr.Is(err, apierr.CodeNotFound) {
		t.Fatalf("want not_found, got %v", err)
	}
}

func TestCreateNoteInvisibleResourceIsNotFound(t *testing.T) {
	res := readyResource(uuid.New(), library.ScopeOwnerPrivate)
	svc := noteServiceWith(t, &fakeResourceRepo{byID: map[uuid.UUID]*types.Resource{res.ID: res}}, &fakeNoteRepo{})
	_, err := svc.CreateNote(context.Background(), member(nil), res.ID, NoteInput{Content: "x"})
	if !apierr.Is(err, apierr.CodeNotFound) {
		t.Fatalf("scope must not be disclosed: want not_found, got %v", err)
	}
}

func TestListNotesGroupsAndDedupe(t *testing.T) {
	chapter := uuid.New()
	caller := member(&chapter)
	res := readyResource(caller.UserID, library.ScopeOwnerPrivate)

	mine := &types.UserNote{ID: uuid.New(), ResourceID: res.ID, AuthorID: caller.UserID}
	theirs := &types.UserNote{ID: uuid.New(), ResourceID: res.ID, Visibility: library.NoteVisibilityPublic}
	sharedOnly := &types.UserNote{ID: uuid.New(), ResourceID: res.ID}

	notes := &fakeNoteRepo{
		own:    []*types.UserNote{mine},
		public: []*types.UserNote{theirs},
		// The chapter feed overlaps both lists; only the third is new.
		shared: []*types.UserNote{mine, theirs, sharedOnly},
	}
	svc := noteServiceWith(t, &fakeResourceRepo{byID: map[uuid.UUID]*types.Resource{res.ID: res}}, notes)

	groups, err := svc.ListNotesForResource(context.Background(), caller, res.ID)
	if err != nil {
		t.Fatalf("ListNotesForResource: %v", err)
	}
	if len(groups.Own) != 1 || len(groups.Public) != 1 {
		t.Fatalf("own/public groups: got %d/%d", len(groups.Own), len(groups.Public))
	}
	if len(groups.ChapterShared) != 1 || groups.ChapterShared[0].ID != sharedOnly.ID {
		t.Fatalf("chapter group must drop notes already listed, got %d", len(groups.ChapterShared))
	}
}

func TestListNotesNoChapterSkipsSharedGroup(t *testing.T) {
	caller := member(nil)
	res := readyResource(caller.UserID, library.ScopeOwnerPrivate)
	notes := &fakeNoteRepo{shared: []*types.UserNote{{ID: uuid.New()}}}
	svc := noteServiceWith(t, &fakeResourceRepo{byID: map[uuid.UUID]*types.Resource{res.ID: res}}, notes)

	groups, err := svc.ListNotesForResource(context.Background(), caller, res.ID)
	if err != nil {
		t.Fatalf("ListNotesForResource: %v", err)
	}
	if len(groups.ChapterShared) != 0 {
		t.Fatalf("caller without a chapter gets no shared group")
	}
}

func TestUpdateNoteAuthorOnly(t *testing.T) {
	author := member(nil)
	res := readyResource(author.UserID, library.ScopePlatformWide)
	note := &types.UserNote{ID: uuid.New(), ResourceID: res.ID, AuthorID: author.UserID, Visibility: library.NoteVisibilityPublic}

	notes := &fakeNoteRepo{byID: map[uuid.UUID]*types.UserNote{note.ID: note}}
	svc := noteServiceWith(t, &fakeResourceRepo{byID: map[uuid.UUID]*types.Resource{res.ID: res}}, notes)

	stranger := member(nil)
	_, err := svc.UpdateNote(context.Background(), stranger, note.ID, NoteUpdate{Content: strPtr("rewrite")})
	if !apierr.Is(err, apierr.CodeForbidden) {
		t.Fatalf("non-author edit of a visible note: want forbidden, got %v", err)
	}

	if _, err := svc.UpdateNote(context.Background(), author, note.ID, NoteUpdate{Content: strPtr("rewrite")}); err != nil {
		t.Fatalf("author edit: %v", err)
	}
	if notes.updates["content"] != "rewrite" {
		t.Fatalf("content not written: %v", notes.updates)
	}
}

func TestUpdateNotePrivateNoteHiddenFromOthers(t *testing.T) {
	author := member(nil)
	res := readyResource(author.UserID, library.ScopePlatformWide)
	note := &types.UserNote{ID: uuid.New(), ResourceID: res.ID, AuthorID: author.UserID, Visibility: library.NoteVisibilityPrivate}

	notes := &fakeNoteRepo{byID: map[uuid.UUID]*types.UserNote{note.ID: note}}
	svc := noteServiceWith(t, &fakeResourceRepo{byID: map[uuid.UUID]*types.Resource{res.ID: res}}, notes)

	_, err := svc.UpdateNote(context.Background(), member(nil), note.ID, NoteUpdate{Content: strPtr("x")})
	if !apierr.Is(err, apierr.CodeNotFound) {
		t.Fatalf("private note existence must not be disclosed: want not_found, got %v", err)
	}
}

func TestShareNoteRequiresChapter(t *testing.T) {
	author := member(nil)
	res := readyResource(author.UserID, library.ScopePlatformWide)
	note := &types.UserNote{ID: uuid.New(), ResourceID: res.ID, AuthorID: author.UserID, Visibility: library.NoteVisibilityPublic}

	notes := &fakeNoteRepo{byID: map[uuid.UUID]*types.UserNote{note.ID: note}}
	svc := noteServiceWith(t, &fakeResourceRepo{byID: map[uuid.UUID]*types.Resource{res.ID: res}}, notes)

	_, err := svc.ShareNoteWithChapter(context.Background(), author, note.ID)
	if !apierr.Is(err, apierr.CodeNoChapter) {
		t.Fatalf("want no_chapter, got %v", err)
	}
}
