package library

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	ActionUpload             = "upload"
	ActionView               = "view"
	ActionDownload           = "download"
	ActionAISummaryGenerated = "ai_summary_generated"
	ActionNoteCreated        = "note_created"
	ActionShareCreated       = "share_created"
	ActionAccessDenied       = "access_denied"
)

// UsageEvent is append-only; rows feed coverage and usage statistics and
// the access-denial audit trail.
type UsageEvent struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	ResourceID uuid.UUID `gorm:"type:uuid;not null;index:idx_usage_resource_created" json:"resource_id"`
	Resource   *Resource `gorm:"constraint:OnDelete:CASCADE;foreignKey:ResourceID;references:ID" json:"-"`

	Action   string         `gorm:"column:action;not null;index" json:"action"`
	Metadata datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now();index:idx_usage_resource_created" json:"created_at"`
}

func (UsageEvent) TableName() string { return "usage_event" }
