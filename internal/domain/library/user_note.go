package library

import (
	"time"

	"github.com/google/uuid"
)

const (
	NoteVisibilityPrivate = "private"
	NoteVisibilityPublic  = "public"
)

// UserNote is an annotation on a Resource. The section fields are either
// all null or all set: the anchor is an opaque caller-produced locator,
// the text is the excerpt quoted at creation time (never updated), and
// the position is a caller-assigned total-order key for reading order.
type UserNote struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ResourceID uuid.UUID `gorm:"type:uuid;not null;index:idx_note_resource_created" json:"resource_id"`
	Resource   *Resource `gorm:"constraint:OnDelete:CASCADE;foreignKey:ResourceID;references:ID" json:"-"`

	AuthorID   uuid.UUID `gorm:"type:uuid;not null;index" json:"author_id"`
	Content    string    `gorm:"column:content;not null" json:"content"`
	Visibility string    `gorm:"column:visibility;not null;default:'private'" json:"visibility"`

	SectionAnchor   *string  `gorm:"column:section_anchor" json:"section_anchor,omitempty"`
	SectionText     *string  `gorm:"column:section_text" json:"section_text,omitempty"`
	SectionPosition *float64 `gorm:"column:section_position" json:"section_position,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:now();index:idx_note_resource_created" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (UserNote) TableName() string { return "user_note" }

type NoteShare struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	NoteID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_note_share_note_chapter" json:"note_id"`
	Note      *UserNote `gorm:"constraint:OnDelete:CASCADE;foreignKey:NoteID;references:ID" json:"-"`
	SharerID  uuid.UUID `gorm:"type:uuid;not null" json:"sharer_id"`
	ChapterID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_note_share_note_chapter" json:"chapter_id"`
	Approved  bool      `gorm:"column:approved;not null;default:true" json:"approved"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (NoteShare) TableName() string { return "note_share" }
