package library

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	SummaryTypeBrief    = "brief"
	SummaryTypeDetailed = "detailed"
)

// BriefWordLimit caps brief summaries; longer generator output is cut at
// the nearest sentence boundary and flagged.
const BriefWordLimit = 250

// RelevanceFloor is the minimum score for validation and publishability.
const RelevanceFloor = 0.98

type AISummary struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ResourceID uuid.UUID `gorm:"type:uuid;not null;index" json:"resource_id"`
	Resource   *Resource `gorm:"constraint:OnDelete:CASCADE;foreignKey:ResourceID;references:ID" json:"-"`

	SummaryType       string         `gorm:"column:summary_type;not null" json:"summary_type"`
	Text              string         `gorm:"column:text;not null" json:"text"`
	KeyPoints         datatypes.JSON `gorm:"column:key_points;type:jsonb" json:"key_points"`
	SpiritualInsights datatypes.JSON `gorm:"column:spiritual_insights;type:jsonb" json:"spiritual_insights,omitempty"`

	WordCount      int     `gorm:"column:word_count;not null" json:"word_count"`
	Truncated      bool    `gorm:"column:truncated;not null;default:false" json:"truncated"`
	RelevanceScore float64 `gorm:"column:relevance_score;not null" json:"relevance_score"`

	ValidatedBy     *uuid.UUID `gorm:"type:uuid;column:validated_by" json:"validated_by,omitempty"`
	ValidatedAt     *time.Time `gorm:"column:validated_at" json:"validated_at,omitempty"`
	ValidationNotes string     `gorm:"column:validation_notes" json:"validation_notes,omitempty"`

	Version   int       `gorm:"column:version;not null;default:1" json:"version"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (AISummary) TableName() string { return "ai_summary" }

// Publishable summaries have been admin-validated at or above the floor.
func (s *AISummary) Publishable() bool {
	return s != nil && s.ValidatedAt != nil && s.RelevanceScore >= RelevanceFloor
}
