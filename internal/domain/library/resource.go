package library

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Scope values control the audience a Resource is visible to. The
// companion id requirement is enforced in the ingestion service
// (course_specific needs CourseID, chapter_wide needs ChapterID).
const (
	ScopeOwnerPrivate   = "owner_private"
	ScopeCourseSpecific = "course_specific"
	ScopeChapterWide    = "chapter_wide"
	ScopePlatformWide   = "platform_wide"
)

const (
	StatusPending    = "pending"
	StatusExtracting = "extracting"
	StatusReady      = "ready"
	StatusFailed     = "failed"
)

type Resource struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title       string    `gorm:"column:title;not null" json:"title"`
	Description string    `gorm:"column:description" json:"description"`

	MimeType string `gorm:"column:mime_type;not null" json:"mime_type"`
	FileType string `gorm:"column:file_type;not null;index" json:"file_type"`

	// BlobKey is content-addressed (sha256 of the upload), so identical
	// uploads share one object. TextKey is set once extraction succeeds.
	BlobKey   string  `gorm:"column:blob_key;not null" json:"-"`
	TextKey   *string `gorm:"column:text_key" json:"-"`
	SizeBytes int64   `gorm:"column:size_bytes;not null" json:"size_bytes"`

	Language string         `gorm:"column:language;index" json:"language"`
	Topic    string         `gorm:"column:topic;index" json:"topic"`
	Category string         `gorm:"column:category;index" json:"category"`
	Tags     datatypes.JSON `gorm:"column:tags;type:jsonb" json:"tags"`

	AuthorID *uuid.UUID `gorm:"type:uuid;column:author_id" json:"author_id,omitempty"`
	OwnerID  uuid.UUID  `gorm:"type:uuid;column:owner_id;not null;index:idx_resource_owner_created" json:"owner_id"`

	Scope     string     `gorm:"column:scope;not null;index:idx_resource_scope_companion" json:"scope"`
	CourseID  *uuid.UUID `gorm:"type:uuid;column:course_id;index:idx_resource_scope_companion" json:"course_id,omitempty"`
	ChapterID *uuid.UUID `gorm:"type:uuid;column:chapter_id;index:idx_resource_scope_companion" json:"chapter_id,omitempty"`

	Status        string `gorm:"column:status;not null;default:'pending';index" json:"status"`
	FailureReason string `gorm:"column:failure_reason" json:"failure_reason,omitempty"`

	// Bumped on every metadata write; conditional updates reject stale
	// versions with a conflict.
	Version int `gorm:"column:version;not null;default:1" json:"version"`

	CreatedAt time.Time `gorm:"not null;default:now();index:idx_resource_owner_created" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Resource) TableName() string { return "resource" }

// Textless reports file types that never produce extracted text;
// status=ready with a nil TextKey is valid only for these. Epub is
// download-only with no extractor wired.
func Textless(fileType string) bool {
	switch fileType {
	case FileTypeImage, FileTypeAudio, FileTypeVideo, FileTypeEpub, FileTypeUnknown:
		return true
	}
	return false
}
