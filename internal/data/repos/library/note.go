package library

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/eoty/eoty-backend/internal/domain"
	"github.com/eoty/eoty-backend/internal/platform/dbctx"
	"github.com/eoty/eoty-backend/internal/platform/logger"
)

// noteOrder keeps notes in reading order; the position is assigned by the
// caller so it is stable under concurrent inserts. Ties break by
// created_at then id.
const noteOrder = "section_position ASC NULLS LAST, created_at ASC, id ASC"

type UserNoteRepo interface {
	Create(dbc dbctx.Context, notes []*types.UserNote) ([]*types.UserNote, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.UserNote, error)
	ListByResourceAndAuthor(dbc dbctx.Context, resourceID, authorID uuid.UUID) ([]*types.UserNote, error)
	ListPublicByResourceExcluding(dbc dbctx.Context, resourceID, excludeAuthorID uuid.UUID) ([]*types.UserNote, error)
	ListChapterShared(dbc dbctx.Context, resourceID, chapterID uuid.UUID) ([]*types.UserNote, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	FullDeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error
	FullDeleteByResourceIDs(dbc dbctx.Context, resourceIDs []uuid.UUID) error
}

type userNoteRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserNoteRepo(db *gorm.DB, baseLog *logger.Logger) UserNoteRepo {
	return &userNoteRepo{db: db, log: baseLog.With("repo", "UserNoteRepo")}
}

func (r *userNoteRepo) Create(dbc dbctx.Context, notes []*types.UserNote) ([]*types.UserNote, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(notes) == 0 {
		return []*types.UserNote{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&notes).Error; err != nil {
		return nil, err
	}
	return notes, nil
}

func (r *userNoteRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.UserNote, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var note types.UserNote
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&note).Error
	if err != nil {
		return nil, err
	}
	if note.ID == uuid.Nil {
		return nil, nil
	}
	return &note, nil
}

func (r *userNoteRepo) ListByResourceAndAuthor(dbc dbctx.Context, resourceID, authorID uuid.UUID) ([]*types.UserNote, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.UserNote
	err := transaction.WithContext(dbc.Ctx).
		Where("resource_id = ? AND author_id = ?", resourceID, authorID).
		Order(noteOrder).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *userNoteRepo) ListPublicByResourceExcluding(dbc dbctx.Context, resourceID, excludeAuthorID uuid.UUID) ([]*types.UserNote, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.UserNote
	err := transaction.WithContext(dbc.Ctx).
		Where("resource_id = ? AND visibility = ? AND author_id <> ?",
			resourceID, "public", excludeAuthorID).
		Order(noteOrder).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *userNoteRepo) ListChapterShared(dbc dbctx.Context, resourceID, chapterID uuid.UUID) ([]*types.UserNote, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.UserNote
	err := transaction.WithContext(dbc.Ctx).
		Joins("JOIN note_share ON note_share.note_id = user_note.id").
		Where("user_note.resource_id = ? AND note_share.chapter_id = ? AND note_share.approved = true",
			resourceID, chapterID).
		Order("user_note.section_position ASC NULLS LAST, user_note.created_at ASC, user_note.id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *userNoteRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	updates["updated_at"] = time.Now()
	return transaction.WithContext(dbc.Ctx).
		Model(&types.UserNote{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *userNoteRepo) FullDeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(ids) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Delete(&types.UserNote{}).Error
}

func (r *userNoteRepo) FullDeleteByResourceIDs(dbc dbctx.Context, resourceIDs []uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(resourceIDs) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("resource_id IN ?", resourceIDs).
		Delete(&types.UserNote{}).Error
}
