package library

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/eoty/eoty-backend/internal/domain"
	libdomain "github.com/eoty/eoty-backend/internal/domain/library"
	"github.com/eoty/eoty-backend/internal/platform/dbctx"
	"github.com/eoty/eoty-backend/internal/platform/logger"
)

// UsageBreakdownRow is one (resource, user, action) bucket in the admin
// usage query.
type UsageBreakdownRow struct {
	ResourceID uuid.UUID `json:"resource_id"`
	UserID     uuid.UUID `json:"user_id"`
	Action     string    `json:"action"`
	Count      int64     `json:"count"`
}

type UsageEventRepo interface {
	Create(dbc dbctx.Context, events []*types.UsageEvent) ([]*types.UsageEvent, error)
	DistinctViewerCountSince(dbc dbctx.Context, since time.Time) (int64, error)
	ResourcesWithUsageSince(dbc dbctx.Context, since time.Time) (int64, error)
	Breakdown(dbc dbctx.Context, from, to time.Time, action string, limit int) ([]*UsageBreakdownRow, error)
	FullDeleteByResourceIDs(dbc dbctx.Context, resourceIDs []uuid.UUID) error
}

type usageEventRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUsageEventRepo(db *gorm.DB, baseLog *logger.Logger) UsageEventRepo {
	return &usageEventRepo{db: db, log: baseLog.With("repo", "UsageEventRepo")}
}

func (r *usageEventRepo) Create(dbc dbctx.Context, events []*types.UsageEvent) ([]*types.UsageEvent, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(events) == 0 {
		return []*types.UsageEvent{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *usageEventRepo) DistinctViewerCountSince(dbc dbctx.Context, since time.Time) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.UsageEvent{}).
		Where("action = ? AND created_at >= ?", libdomain.ActionView, since).
		Distinct("user_id").
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *usageEventRepo) ResourcesWithUsageSince(dbc dbctx.Context, since time.Time) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(dbc.Ctx).
		Model(&types.UsageEvent{}).
		Where("created_at >= ?", since).
		Distinct("resource_id").
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *usageEventRepo) Breakdown(dbc dbctx.Context, from, to time.Time, action string, limit int) ([]*UsageBreakdownRow, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(dbc.Ctx).
		Model(&types.UsageEvent{}).
		Select("resource_id, user_id, action, COUNT(*) AS count").
		Where("created_at >= ? AND created_at < ?", from, to).
		Group("resource_id, user_id, action").
		Order("count DESC").
		Limit(limit)
	if action != "" {
		q = q.Where("action = ?", action)
	}
	var rows []*UsageBreakdownRow
	if err := q.Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *usageEventRepo) FullDeleteByResourceIDs(dbc dbctx.Context, resourceIDs []uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(resourceIDs) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("resource_id IN ?", resourceIDs).
		Delete(&types.UsageEvent{}).Error
}
