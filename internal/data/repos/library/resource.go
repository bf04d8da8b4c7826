package library

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/eoty/eoty-backend/internal/domain"
	libdomain "github.com/eoty/eoty-backend/internal/domain/library"
	"github.com/eoty/eoty-backend/internal/platform/dbctx"
	"github.com/eoty/eoty-backend/internal/platform/logger"
)

type ResourceRepo interface {
	Create(dbc dbctx.Context, resources []*types.Resource) ([]*types.Resource, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Resource, error)
	GetVisibleByID(dbc dbctx.Context, id uuid.UUID, vis Visibility) (*types.Resource, error)
	Search(dbc dbctx.Context, vis Visibility, filters SearchFilters, paging Paging) ([]*types.Resource, int64, error)
	ListByScope(dbc dbctx.Context, vis Visibility, scope string, companionID *uuid.UUID, paging Paging) ([]*types.Resource, int64, error)
	FilterOptions(dbc dbctx.Context, vis Visibility) (*FilterOptions, error)
	UpdateMetadataVersioned(dbc dbctx.Context, id uuid.UUID, version int, updates map[string]interface{}) (bool, error)
	UpdateStatusCAS(dbc dbctx.Context, id uuid.UUID, fromStatus string, updates map[string]interface{}) (bool, error)
	FullDeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error
	CountByBlobKey(dbc dbctx.Context, blobKey string, excludeID uuid.UUID) (int64, error)
	ExistsByBlobKey(dbc dbctx.Context, blobKey string) (bool, error)
	ExistsByTextKey(dbc dbctx.Context, textKey string) (bool, error)
}

type resourceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewResourceRepo(db *gorm.DB, baseLog *logger.Logger) ResourceRepo {
	return &resourceRepo{db: db, log: baseLog.With("repo", "ResourceRepo")}
}

func (r *resourceRepo) Create(dbc dbctx.Context, resources []*types.Resource) ([]*types.Resource, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(resources) == 0 {
		return []*types.Resource{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&resources).Error; err != nil {
		return nil, err
	}
	return resources, nil
}

func (r *resourceRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Resource, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var res types.Resource
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&res).Error
	if err != nil {
		return nil, err
	}
	if res.ID == uuid.Nil {
		return nil, nil
	}
	return &res, nil
}

func (r *resourceRepo) GetVisibleByID(dbc dbctx.Context, id uuid.UUID, vis Visibility) (*types.Resource, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var res types.Resource
	q := vis.apply(transaction.WithContext(dbc.Ctx).Where("id = ?", id))
	if err := q.Limit(1).Find(&res).Error; err != nil {
		return nil, err
	}
	if res.ID == uuid.Nil {
		return nil, nil
	}
	return &res, nil
}

func applySearchFilters(q *gorm.DB, filters SearchFilters) (*gorm.DB, error) {
	if s := strings.TrimSpace(filters.Search); s != "" {
		pattern := "%" + strings.ToLower(s) + "%"
		q = q.Where(
			"(LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR LOWER(topic) LIKE ? OR LOWER(tags::text) LIKE ?)",
			pattern, pattern, pattern, pattern,
		)
	}
	if len(filters.Tags) > 0 {
		normalized := make([]string, 0, len(filters.Tags))
		for _, t := range filters.Tags {
			t = strings.ToLower(strings.TrimSpace(t))
			if t != "" {
				normalized = append(normalized, t)
			}
		}
		if len(normalized) > 0 {
			// Set-subset match via jsonb containment.
			b, err := json.Marshal(normalized)
			if err != nil {
				return nil, fmt.Errorf("marshal tag filter: %w", err)
			}
			q = q.Where("tags @> ?", datatypes.JSON(b))
		}
	}
	if filters.Type != "" {
		q = q.Where("file_type = ?", filters.Type)
	}
	if filters.Topic != "" {
		q = q.Where("topic = ?", filters.Topic)
	}
	if filters.Author != nil && *filters.Author != uuid.Nil {
		q = q.Where("author_id = ?", *filters.Author)
	}
	if filters.Category != "" {
		q = q.Where("category = ?", filters.Category)
	}
	if filters.Language != "" {
		q = q.Where("language = ?", filters.Language)
	}
	if filters.DateFrom != nil {
		q = q.Where("created_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		// DateTo is a day, inclusive.
		q = q.Where("created_at < ?", filters.DateTo.Add(24*time.Hour))
	}
	return q, nil
}

func (r *resourceRepo) Search(dbc dbctx.Context, vis Visibility, filters SearchFilters, paging Paging) ([]*types.Resource, int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	paging = paging.normalized()

	base := vis.apply(transaction.WithContext(dbc.Ctx).Model(&types.Resource{}))
	base, err := applySearchFilters(base, filters)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []*types.Resource
	err = base.Session(&gorm.Session{}).
		Order("created_at DESC, id DESC").
		Limit(paging.Limit).
		Offset(paging.Offset).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *resourceRepo) ListByScope(dbc dbctx.Context, vis Visibility, scope string, companionID *uuid.UUID, paging Paging) ([]*types.Resource, int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	paging = paging.normalized()

	base := vis.apply(transaction.WithContext(dbc.Ctx).Model(&types.Resource{}).Where("scope = ?", scope))
	if companionID != nil && *companionID != uuid.Nil {
		switch scope {
		case libdomain.ScopeCourseSpecific:
			base = base.Where("course_id = ?", *companionID)
		case libdomain.ScopeChapterWide:
			base = base.Where("chapter_id = ?", *companionID)
		}
	}

	var total int64
	if err := base.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []*types.Resource
	err := base.Session(&gorm.Session{}).
		Order("created_at DESC, id DESC").
		Limit(paging.Limit).
		Offset(paging.Offset).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *resourceRepo) FilterOptions(dbc dbctx.Context, vis Visibility) (*FilterOptions, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	out := &FilterOptions{
		Tags:      []string{},
		Types:     []string{},
		Topics:    []string{},
		Authors:   []uuid.UUID{},
		Languages: []string{},
	}

	visible := func() *gorm.DB {
		return vis.apply(transaction.WithContext(dbc.Ctx).Model(&types.Resource{}))
	}

	if err := visible().
		Select("DISTINCT jsonb_array_elements_text(tags) AS tag").
		Order("tag").
		Pluck("tag", &out.Tags).Error; err != nil {
		return nil, err
	}
	if err := visible().
		Distinct("file_type").
		Order("file_type").
		Pluck("file_type", &out.Types).Error; err != nil {
		return nil, err
	}
	if err := visible().
		Where("topic <> ''").
		Distinct("topic").
		Order("topic").
		Pluck("topic", &out.Topics).Error; err != nil {
		return nil, err
	}
	if err := visible().
		Where("author_id IS NOT NULL").
		Distinct("author_id").
		Pluck("author_id", &out.Authors).Error; err != nil {
		return nil, err
	}
	if err := visible().
		Where("language <> ''").
		Distinct("language").
		Order("language").
		Pluck("language", &out.Languages).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *resourceRepo) UpdateMetadataVersioned(dbc dbctx.Context, id uuid.UUID, version int, updates map[string]interface{}) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	updates["version"] = version + 1
	updates["updated_at"] = time.Now()
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.Resource{}).
		Where("id = ? AND version = ?", id, version).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateStatusCAS performs a compare-and-set on the processing status so
// duplicate queue deliveries are harmless.
func (r *resourceRepo) UpdateStatusCAS(dbc dbctx.Context, id uuid.UUID, fromStatus string, updates map[string]interface{}) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	updates["updated_at"] = time.Now()
	res := transaction.WithContext(dbc.Ctx).
		Model(&types.Resource{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *resourceRepo) FullDeleteByIDs(dbc dbctx.Context, ids []uuid.UUID) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(ids) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Delete(&types.Resource{}).Error
}

func (r *resourceRepo) CountByBlobKey(dbc dbctx.Context, blobKey string, excludeID uuid.UUID) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	q := transaction.WithContext(dbc.Ctx).
		Model(&types.Resource{}).
		Where("blob_key = ?", blobKey)
	if excludeID != uuid.Nil {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *resourceRepo) ExistsByBlobKey(dbc dbctx.Context, blobKey string) (bool, error) {
	n, err := r.CountByBlobKey(dbc, blobKey, uuid.Nil)
	return n > 0, err
}

func (r *resourceRepo) ExistsByTextKey(dbc dbctx.Context, textKey string) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	if err := transaction.WithContext(dbc.Ctx).
		Model(&types.Resource{}).
		Where("text_key = ?", textKey).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
