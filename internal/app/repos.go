package app

import (
	"gorm.io/gorm"

	jobrepo "github.com/eoty/eoty-backend/internal/data/repos/jobs"
	librepo "github.com/eoty/eoty-backend/internal/data/repos/library"
	"github.com/eoty/eoty-backend/internal/platform/logger"
)

type Repos struct {
	Resource   librepo.ResourceRepo
	UserNote   librepo.UserNoteRepo
	NoteShare  librepo.NoteShareRepo
	AISummary  librepo.AISummaryRepo
	UsageEvent librepo.UsageEventRepo
	JobRun     jobrepo.JobRunRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Resource:   librepo.NewResourceRepo(db, log),
		UserNote:   librepo.NewUserNoteRepo(db, log),
		NoteShare:  librepo.NewNoteShareRepo(db, log),
		AISummary:  librepo.NewAISummaryRepo(db, log),
		UsageEvent: librepo.NewUsageEventRepo(db, log),
		JobRun:     jobrepo.NewJobRunRepo(db, log),
	}
}
