package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	librepo "github.com/eoty/eoty-backend/internal/data/repos/library"
	types "github.com/eoty/eoty-backend/internal/domain"
	"github.com/eoty/eoty-backend/internal/domain/library"
	"github.com/eoty/eoty-backend/internal/platform/apierr"
	"github.com/eoty/eoty-backend/internal/platform/dbctx"
	"github.com/eoty/eoty-backend/internal/platform/logger"
	"github.com/eoty/eoty-backend/internal/requestdata"
)

// NoteInput is the fixed set of recognized note fields. The section
// triple is all-or-nothing: the anchor is an opaque caller-produced
// locator, the text is the excerpt quoted at creation, and the position
// is the caller-assigned reading-order key.
type NoteInput struct {
	Content         string   `json:"content"`
	Visibility      string   `json:"visibility"`
	SectionAnchor   *string  `json:"section_anchor"`
	SectionText     *string  `json:"section_text"`
	SectionPosition *float64 `json:"section_position"`
}

// NoteUpdate allows content and visibility only; section fields are
// pinned at creation.
type NoteUpdate struct {
	Content    *string `json:"content"`
	Visibility *string `json:"visibility"`
}

// NoteGroups is the listNotesForResource shape: the caller's own notes,
// other users' public notes, and notes shared into the caller's chapter.
type NoteGroups struct {
	Own           []*types.UserNote `json:"own"`
	Public        []*types.UserNote `json:"public"`
	ChapterShared []*types.UserNote `json:"chapter_shared"`
}

type NoteService interface {
	CreateNote(ctx context.Context, caller *requestdata.CallerContext, resourceID uuid.UUID, input NoteInput) (*types.UserNote, error)
	ListNotesForResource(ctx context.Context, caller *requestdata.CallerContext, resourceID uuid.UUID) (*NoteGroups, error)
	UpdateNote(ctx context.Context, caller *requestdata.CallerContext, noteID uuid.UUID, update NoteUpdate) (*types.UserNote, error)
	DeleteNote(ctx context.Context, caller *requestdata.CallerContext, noteID uuid.UUID) error
	ShareNoteWithChapter(ctx context.Context, caller *requestdata.CallerContext, noteID uuid.UUID) (*types.NoteShare, error)
}

type noteService struct {
	log          *logger.Logger
	db           *gorm.DB
	access       AccessService
	resourceRepo librepo.ResourceRepo
	noteRepo     librepo.UserNoteRepo
	shareRepo    librepo.NoteShareRepo
	usageRepo    librepo.UsageEventRepo
}

func NewNoteService(
	baseLog *logger.Logger,
	db *gorm.DB,
	access AccessService,
	resourceRepo librepo.ResourceRepo,
	noteRepo librepo.UserNoteRepo,
	shareRepo librepo.NoteShareRepo,
	usageRepo librepo.UsageEventRepo,
) NoteService {
	return &noteService{
		log:          baseLog.With("service", "NoteService"),
		db:           db,
		access:       access,
		resourceRepo: resourceRepo,
		noteRepo:     noteRepo,
		shareRepo:    shareRepo,
		usageRepo:    usageRepo,
	}
}

func validateNoteVisibility(v string) error {
	switch v {
	case library.NoteVisibilityPrivate, library.NoteVisibilityPublic:
		return nil
	}
	return apierr.Newf(apierr.CodeInvalidInput, "unknown visibility %q", v)
}

func (s *noteService) CreateNote(ctx context.Context, caller *requestdata.CallerContext, resourceID uuid.UUID, input NoteInput) (*types.UserNote, error) {
	if strings.TrimSpace(input.Content) == "" {
		return nil, apierr.Newf(apierr.CodeInvalidInput, "content is required")
	}
	if input.Visibility == "" {
		input.Visibility = library.NoteVisibilityPrivate
	}
	if err := validateNoteVisibility(input.Visibility); err != nil {
		return nil, err
	}
	anchorSet := input.SectionAnchor != nil
	if anchorSet != (input.SectionText != nil) || anchorSet != (input.SectionPosition != nil) {
		return nil, apierr.Newf(apierr.CodeInvalidInput,
			"section_anchor, section_text and section_position must be provided together")
	}

	dbc := dbctx.Context{Ctx: ctx}
	res, err := s.resourceRepo.GetByID(dbc, resourceID)
	if err != nil {
		return nil, apierr.New(apierr.CodeStorageFailure, err)
	}
	if res == nil {
		return nil, apierr.Newf(apierr.CodeNotFound, "resource not found")
	}
	if err := s.access.Check(dbc, caller, res, ActionAnnotate); err != nil {
		return nil, err
	}

	now := time.Now()
	note := &types.UserNote{
		ID:              uuid.New(),
		ResourceID:      resourceID,
		AuthorID:        caller.UserID,
		Content:         input.Content,
		Visibility:      input.Visibility,
		SectionAnchor:   input.SectionAnchor,
		SectionText:     input.SectionText,
		SectionPosition: input.SectionPosition,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: ctx, Tx: tx}
		if _, err := s.noteRepo.Create(txc, []*types.UserNote{note}); err != nil {
			return fmt.Errorf("create note: %w", err)
		}
		if _, err := s.usageRepo.Create(txc, []*types.UsageEvent{{
			ID:         uuid.New(),
			UserID:     caller.UserID,
			ResourceID: resourceID,
			Action:     library.ActionNoteCreated,
			CreatedAt:  now,
		}}); err != nil {
			return fmt.Errorf("record note event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, apierr.New(apierr.CodeStorageFailure, err)
	}
	return note, nil
}

func (s *noteService) ListNotesForResource(ctx context.Context, caller *requestdata.CallerContext, resourceID uuid.UUID) (*NoteGroups, error) {
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

	groups := &NoteGroups{
		Own:           []*types.UserNote{},
		Public:        []*types.UserNote{},
		ChapterShared: []*types.UserNote{},
	}
	if groups.Own, err = s.noteRepo.ListByResourceAndAuthor(dbc, resourceID, caller.UserID); err != nil {
		return nil, apierr.New(apierr.CodeStorageFailure, err)
	}
	if groups.Public, err = s.noteRepo.ListPublicByResourceExcluding(dbc, resourceID, caller.UserID); err != nil {
		return nil, apierr.New(apierr.CodeStorageFailure, err)
	}
	if caller.HasChapter() {
		shared, err := s.noteRepo.ListChapterShared(dbc, resourceID, *caller.ChapterID)
		if err != nil {
			return nil, apierr.New(apierr.CodeStorageFailure, err)
		}
		// Notes already visible in the first two groups are not repeated.
		seen := make(map[uuid.UUID]struct{}, len(groups.Own)+len(groups.Public))
		for _, n := range groups.Own {
			seen[n.ID] = struct{}{}
		}
		for _, n := range groups.Public {
			seen[n.ID] = struct{}{}
		}
		for _, n := range shared {
			if _, ok := seen[n.ID]; !ok {
				groups.ChapterShared = append(groups.ChapterShared, n)
			}
		}
	}
	return groups, nil
}

// loadNoteForWrite resolves a note and its parent and enforces the
// author-or-admin rule. Non-authors who cannot even see the note get
// not_found rather than forbidden.
func (s *noteService) loadNoteForWrite(dbc dbctx.Context, caller *requestdata.CallerContext, noteID uuid.UUID) (*types.UserNote, error) {
	if caller == nil || caller.UserID == uuid.Nil {
		return nil, apierr.Newf(apierr.CodeForbidden, "missing caller")
	}
	note, err := s.noteRepo.GetByID(dbc, noteID)
	if err != nil {
		return nil, apierr.New(apierr.CodeStorageFailure, err)
	}
	if note == nil {
		return nil, apierr.Newf(apierr.CodeNotFound, "note not found")
	}
	res, err := s.resourceRepo.GetByID(dbc, note.ResourceID)
	if err != nil {
		return nil, apierr.New(apierr.CodeStorageFailure, err)
	}
	if res == nil {
		return nil, apierr.Newf(apierr.CodeNotFound, "resource not found")
	}
	if note.AuthorID == caller.UserID || caller.IsAdmin() {
		return note, nil
	}
	if note.Visibility == library.NoteVisibilityPrivate || !s.access.CanView(caller, res) {
		return nil, apierr.Newf(apierr.CodeNotFound, "note not found")
	}
	return nil, apierr.Newf(apierr.CodeForbidden, "author or admin required")
}

func (s *noteService) UpdateNote(ctx context.Context, caller *requestdata.CallerContext, noteID uuid.UUID, update NoteUpdate) (*types.UserNote, error) {
	dbc := dbctx.Context{Ctx: ctx}
	note, err := s.loadNoteForWrite(dbc, caller, noteID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if update.Content != nil {
		if strings.TrimSpace(*update.Content) == "" {
			return nil, apierr.Newf(apierr.CodeInvalidInput, "content cannot be empty")
		}
		updates["content"] = *update.Content
	}
	if update.Visibility != nil {
		if err := validateNoteVisibility(*update.Visibility); err != nil {
			return nil, err
		}
		updates["visibility"] = *update.Visibility
	}
	if len(updates) == 0 {
		return note, nil
	}
	if err := s.noteRepo.UpdateFields(dbc, noteID, updates); err != nil {
		return nil, apierr.New(apierr.CodeStorageFailure, err)
	}
	return s.noteRepo.GetByID(dbc, noteID)
}

func (s *noteService) DeleteNote(ctx context.Context, caller *requestdata.CallerContext, noteID uuid.UUID) error {
	dbc := dbctx.Context{Ctx: ctx}
	note, err := s.loadNoteForWrite(dbc, caller, noteID)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := s.shareRepo.FullDeleteByNoteIDs(txc, []uuid.UUID{note.ID}); err != nil {
			return fmt.Errorf("delete note shares: %w", err)
		}
		if err := s.noteRepo.FullDeleteByIDs(txc, []uuid.UUID{note.ID}); err != nil {
			return fmt.Errorf("delete note: %w", err)
		}
		return nil
	})
	if err != nil {
		return apierr.New(apierr.CodeStorageFailure, err)
	}
	return nil
}

func (s *noteService) ShareNoteWithChapter(ctx context.Context, caller *requestdata.CallerContext, noteID uuid.UUID) (*types.NoteShare, error) {
	if caller == nil || caller.UserID == uuid.Nil {
		return nil, apierr.Newf(apierr.CodeForbidden, "missing caller")
	}
	if !caller.HasChapter() {
		return nil, apierr.Newf(apierr.CodeNoChapter, "caller has no chapter")
	}

	dbc := dbctx.Context{Ctx: ctx}
	note, err := s.noteRepo.GetByID(dbc, noteID)
	if err != nil {
		return nil, apierr.New(apierr.CodeStorageFailure, err)
	}
	if note == nil {
		return nil, apierr.Newf(apierr.CodeNotFound, "note not found")
	}
	res, err := s.resourceRepo.GetByID(dbc, note.ResourceID)
	if err != nil {
		return nil, apierr.New(apierr.CodeStorageFailure, err)
	}
	if res == nil {
		return nil, apierr.Newf(apierr.CodeNotFound, "resource not found")
	}
	if err := s.access.Check(dbc, caller, res, ActionShareWithChapter); err != nil {
		return nil, err
	}
	// Non-authors can only republish notes their author made public.
	if note.AuthorID != caller.UserID && note.Visibility != library.NoteVisibilityPublic {
		return nil, apierr.Newf(apierr.CodeForbidden, "only public notes can be shared by non-authors")
	}

	share := &types.NoteShare{
		ID:        uuid.New(),
		NoteID:    note.ID,
		SharerID:  caller.UserID,
		ChapterID: *caller.ChapterID,
		Approved:  true,
		CreatedAt: time.Now(),
	}
	var live *types.NoteShare
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: ctx, Tx: tx}
		created, err := s.shareRepo.CreateIdempotent(txc, share)
		if err != nil {
			return fmt.Errorf("create share: %w", err)
		}
		live = created
		// The usage event fires only for a fresh share, not the
		// idempotent replay.
		if created != nil && created.ID == share.ID {
			if _, err := s.usageRepo.Create(txc, []*types.UsageEvent{{
				ID:         uuid.New(),
				UserID:     caller.UserID,
				ResourceID: note.ResourceID,
				Action:     library.ActionShareCreated,
				CreatedAt:  share.CreatedAt,
			}}); err != nil {
				return fmt.Errorf("record share event: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, apierr.New(apierr.CodeStorageFailure, err)
	}
	if live == nil {
		return nil, apierr.Newf(apierr.CodeInternal, "share row missing after insert")
	}
	return live, nil
}
