package library

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/eoty/eoty-backend/internal/domain"
	"github.com/eoty/eoty-backend/internal/platform/dbctx"
	"github.com/eoty/eoty-backend/internal/platform/logger"
)

type NoteShareRepo interface {
	// CreateIdempotent inserts a share, treating the unique
	// (note_id, chapter_id) conflict as success. Returns the live row.
	CreateIdempotent(dbc dbctx.Context, share *types.NoteShare) (*types.NoteShare, error)
	GetByNoteAndChapter(dbc dbctx.Context, noteID, chapterID uuid.UUID) (*types.NoteShare, error)
	FullDeleteByNoteIDs(dbc dbctx.Context, noteIDs []uuid.UUID) error
	FullDeleteByResourceIDs(dbc dbctx.Context, resourceIDs []uuid.UUID) error
}

type noteShareRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewNoteShareRepo(db *gorm.DB, baseLog *logger.Logger) NoteShareRepo {
	return &noteShareRepo{db: db, log: baseLog.With("repo", "NoteShareRepo")}
}

func (r *noteShareRepo) CreateIdempotent(dbc dbctx.Context, share *types.NoteShare) (*types.NoteShare, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	err := transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "note_id"}, {Name: "chapter_id"}},
			DoNothing: true,
		}).
		Create(share).Error
	if err != nil {
		return nil, err
	}
	// On conflict the insert is skipped; fetch whichever row is live.
	return r.GetByNoteAndChapter(dbc, share.NoteID, share.ChapterID)
}

func (r *noteShareRepo) GetByNoteAndChapter(dbc dbctx.Context, noteID, chapterID uuid.UUID) (*types.NoteShare, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var share types.NoteShare
	err := transaction.WithContext(dbc.Ctx).
		Where("note_id = ? AND chapter_id = ?", noteID, chapterID).
		Limit(1).
		Find(&share).Error
	if err != nil {
		return nil, err
	}
	if share.ID == uuid.Nil {
		return nil, nil
	}
	return &share, nil
}

func (r *noteShareRepo) FullDeleteByNoteIDs(dbc dbctx.Context, noteIDs []uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(noteIDs) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("note_id IN ?", noteIDs).
		Delete(&types.NoteShare{}).Error
}

func (r *noteShareRepo) FullDeleteByResourceIDs(dbc dbctx.Context, resourceIDs []uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(resourceIDs) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("note_id IN (?)",
			transaction.Model(&types.UserNote{}).Select("id").Where("resource_id IN ?", resourceIDs)).
		Delete(&types.NoteShare{}).Error
}
