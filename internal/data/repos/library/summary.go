package library

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/eoty/eoty-backend/internal/domain"
	libdomain "github.com/eoty/eoty-backend/internal/domain/library"
	"github.com/eoty/eoty-backend/internal/platform/dbctx"
	"github.com/eoty/eoty-backend/internal/platform/logger"
)

type AISummaryRepo interface {
	Create(dbc dbctx.Context, summaries []*types.AISummary) ([]*types.AISummary, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.AISummary, error)
	GetPublishable(dbc dbctx.Context, resourceID uuid.UUID, summaryType string) (*types.AISummary, error)
	GetUnvalidated(dbc dbctx.Context, resourceID uuid.UUID, summaryType string) (*types.AISummary, error)
	ListUnvalidated(dbc dbctx.Context, limit int) ([]*types.AISummary, error)
	// ReplaceUnvalidated deletes any unvalidated summary for the same
	// (resource, type) and inserts the new one, keeping at most one
	// pending row per pair.
	ReplaceUnvalidated(dbc dbctx.Context, summary *types.AISummary) (*types.AISummary, error)
	ValidateVersioned(dbc dbctx.Context, id uuid.UUID, version int, updates map[string]interface{}) (bool, error)
	FullDeleteByResourceIDs(dbc dbctx.Context, resourceIDs []uuid.UUID) error
}

type aiSummaryRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAISummaryRepo(db *gorm.DB, baseLog *logger.Logger) AISummaryRepo {
	return &aiSummaryRepo{db: db, log: baseLog.With("repo", "AISummaryRepo")}
}

func (r *aiSummaryRepo) Create(dbc dbctx.Context, summaries []*types.AISummary) ([]*types.AISummary, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(summaries) == 0 {
		return []*types.AISummary{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&summaries).Error; err != nil {
		return nil, err
	}
	return summaries, nil
}

func (r *aiSummaryRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.AISummary, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var s types.AISummary
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&s).Error
	if err != nil {
		return nil, err
	}
	if s.ID == uuid.Nil {
		return nil, nil
	}
	return &s, nil
}

func (r *aiSummaryRepo) GetPublishable(dbc dbctx.Context, resourceID uuid.UUID, summaryType string) (*types.AISummary, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var s types.AISummary
	err := transaction.WithContext(dbc.Ctx).
		Where("resource_id = ? AND summary_type = ? AND validated_at IS NOT NULL AND relevance_score >= ?",
			resourceID, summaryType, libdomain.RelevanceFloor).
		Order("validated_at DESC").
		Limit(1).
		Find(&s).Error
	if err != nil {
		return nil, err
	}
	if s.ID == uuid.Nil {
		return nil, nil
	}
	return &s, nil
}

func (r *aiSummaryRepo) GetUnvalidated(dbc dbctx.Context, resourceID uuid.UUID, summaryType string) (*types.AISummary, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var s types.AISummary
	err := transaction.WithContext(dbc.Ctx).
		Where("resource_id = ? AND summary_type = ? AND validated_at IS NULL",
			resourceID, summaryType).
		Order("created_at DESC").
		Limit(1).
		Find(&s).Error
	if err != nil {
		return nil, err
	}
	if s.ID == uuid.Nil {
		return nil, nil
	}
	return &s, nil
}

func (r *aiSummaryRepo) ListUnvalidated(dbc dbctx.Context, limit int) ([]*types.AISummary, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 100
	}
	var rows []*types.AISummary
	err := transaction.WithContext(dbc.Ctx).
		Where("validated_at IS NULL").
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *aiSummaryRepo) ReplaceUnvalidated(dbc dbctx.Context, summary *types.AISummary) (*types.AISummary, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	err := transaction.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("resource_id = ? AND summary_type = ? AND validated_at IS NULL",
				summary.ResourceID, summary.SummaryType).
			Delete(&types.AISummary{}).Error; err != nil {
			return err
		}
		return tx.Create(summary).Error
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// ValidateVersioned is the linearization point for summary validation:
// a conditional update on the version column, so concurrent validators
// lose with zero rows affected.
func (r *aiSummaryRepo) ValidateVersioned(dbc dbctx.Context, id uuid.UUID, version int, updates map[string]interface{}) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	updates["version"] = version + 1
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.AISummary{}).
		Where("id = ? AND version = ?", id, version).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *aiSummaryRepo) FullDeleteByResourceIDs(dbc dbctx.Context, resourceIDs []uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(resourceIDs) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("resource_id IN ?", resourceIDs).
		Delete(&types.AISummary{}).Error
}
