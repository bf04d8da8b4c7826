package db

import (
	types "github.com/eoty/eoty-backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		// Resource library
		&types.Resource{},
		&types.UserNote{},
		&types.NoteShare{},
		&types.AISummary{},
		&types.UsageEvent{},

		// Background processing
		&types.JobRun{},
	)
}
