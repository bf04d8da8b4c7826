package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	JobTypeResourceExtract = "resource_extract"
)

const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// JobRun is a row in the processing queue. Delivery is at-least-once:
// workers claim with SKIP LOCKED, failed rows become runnable again once
// RunAfter passes, and stale running rows (dead worker) are reclaimed via
// HeartbeatAt.
type JobRun struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	JobType    string    `gorm:"column:job_type;not null;index" json:"job_type"`
	EntityType string    `gorm:"column:entity_type;not null" json:"entity_type"`
	EntityID   uuid.UUID `gorm:"type:uuid;column:entity_id;not null;index" json:"entity_id"`

	Status   string `gorm:"column:status;not null;default:'queued';index" json:"status"`
	Attempts int    `gorm:"column:attempts;not null;default:0" json:"attempts"`

	Payload datatypes.JSON `gorm:"column:payload;type:jsonb" json:"payload,omitempty"`

	LastError   string     `gorm:"column:last_error" json:"last_error,omitempty"`
	LastErrorAt *time.Time `gorm:"column:last_error_at" json:"last_error_at,omitempty"`
	RunAfter    *time.Time `gorm:"column:run_after;index" json:"run_after,omitempty"`
	HeartbeatAt *time.Time `gorm:"column:heartbeat_at" json:"heartbeat_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (JobRun) TableName() string { return "job_run" }
