package app

import (
	"gorm.io/gorm"

	jobdomain "github.com/eoty/eoty-backend/internal/domain/jobs"
	"github.com/eoty/eoty-backend/internal/jobs"
	"github.com/eoty/eoty-backend/internal/platform/logger"
	"github.com/eoty/eoty-backend/internal/services"
)

type Services struct {
	Access     services.AccessService
	Ingestion  services.IngestionService
	Extraction services.ExtractionService
	Catalog    services.CatalogService
	Notes      services.NoteService
	Summaries  services.SummaryService
	Telemetry  services.TelemetryService
	Sweep      services.SweepService

	JobWorker      *jobs.Worker
	SweepScheduler *jobs.SweepScheduler
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, repos Repos, clients Clients) Services {
	log.Info("Wiring services...")

	access := services.NewAccessService(log, repos.UsageEvent)
	extraction := services.NewExtractionService(log, clients.Bucket, clients.Document)

	ingestion := services.NewIngestionService(
		log,
		db,
		cfg.Upload,
		access,
		repos.Resource,
		repos.UserNote,
		repos.NoteShare,
		repos.AISummary,
		repos.UsageEvent,
		repos.JobRun,
		clients.Bucket,
		clients.SummaryCache,
	)
	catalog := services.NewCatalogService(log, access, repos.Resource, repos.UsageEvent, clients.Bucket)
	notes := services.NewNoteService(log, db, access, repos.Resource, repos.UserNote, repos.NoteShare, repos.UsageEvent)
	summaries := services.NewSummaryService(
		log,
		db,
		access,
		repos.Resource,
		repos.AISummary,
		repos.UsageEvent,
		clients.Bucket,
		clients.OpenAI,
		clients.SummaryCache,
	)
	telemetry := services.NewTelemetryService(log, cfg.Coverage, repos.UsageEvent)
	sweep := services.NewSweepService(log, repos.Resource, clients.Bucket)

	worker := jobs.NewWorker(log, repos.JobRun, cfg.Worker)
	worker.Register(jobdomain.JobTypeResourceExtract, jobs.NewExtractHandler(log, repos.Resource, extraction, clients.Bucket))

	return Services{
		Access:         access,
		Ingestion:      ingestion,
		Extraction:     extraction,
		Catalog:        catalog,
		Notes:          notes,
		Summaries:      summaries,
		Telemetry:      telemetry,
		Sweep:          sweep,
		JobWorker:      worker,
		SweepScheduler: jobs.NewSweepScheduler(log, sweep, cfg.SweepInterval),
	}
}
