package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/eoty/eoty-backend/internal/domain"
	"github.com/eoty/eoty-backend/internal/platform/dbctx"
	"github.com/eoty/eoty-backend/internal/platform/logger"
)

type JobRunRepo interface {
	Create(dbc dbctx.Context, jobs []*types.JobRun) ([]*types.JobRun, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.JobRun, error)
	// ClaimNextRunnable picks one runnable row with FOR UPDATE SKIP LOCKED
	// and marks it running. Runnable: queued past its run_after, failed
	// under the attempt cap past its backoff, or running with a stale
	// heartbeat (dead worker).
	ClaimNextRunnable(dbc dbctx.Context, maxAttempts int, staleRunning time.Duration) (*types.JobRun, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
	Heartbeat(dbc dbctx.Context, id uuid.UUID) error
}

type jobRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return &jobRunRepo{db: db, log: baseLog.With("repo", "JobRunRepo")}
}

func (r *jobRunRepo) Create(dbc dbctx.Context, jobs []*types.JobRun) ([]*types.JobRun, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(jobs) == 0 {
		return []*types.JobRun{}, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Create(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *jobRunRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.JobRun, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var job types.JobRun
	err := transaction.WithContext(dbc.Ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

func (r *jobRunRepo) ClaimNextRunnable(dbc dbctx.Context, maxAttempts int, staleRunning time.Duration) (*types.JobRun, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	staleCutoff := now.Add(-staleRunning)

	var claimed *types.JobRun
	err := transaction.WithContext(dbc.Ctx).Transaction(func(tx *gorm.DB) error {
		var job types.JobRun
		q := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where(`
        (
          (status = ? AND (run_after IS NULL OR run_after <= ?))
          OR (
            status = ?
            AND attempts < ?
            AND (run_after IS NULL OR run_after <= ?)
          )
          OR (
            status = ?
            AND heartbeat_at IS NOT NULL
            AND heartbeat_at < ?
          )
        )
      `, "queued", now,
				"failed", maxAttempts, now,
				"running", staleCutoff).
			Order("created_at ASC").
			Limit(1).
			Find(&job)
		if q.Error != nil {
			return q.Error
		}
		if job.ID == uuid.Nil {
			return nil
		}
		updates := map[string]interface{}{
			"status":       "running",
			"attempts":     gorm.Expr("attempts + 1"),
			"heartbeat_at": now,
			"updated_at":   now,
		}
		if err := tx.Model(&types.JobRun{}).Where("id = ?", job.ID).Updates(updates).Error; err != nil {
			return err
		}
		job.Status = "running"
		job.Attempts++
		job.HeartbeatAt = &now
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *jobRunRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	updates["updated_at"] = time.Now()
	return transaction.WithContext(dbc.Ctx).
		Model(&types.JobRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *jobRunRepo) Heartbeat(dbc dbctx.Context, id uuid.UUID) error {
	return r.UpdateFields(dbc, id, map[string]interface{}{"heartbeat_at": time.Now()})
}
