package app

import (
	"time"

	"github.com/eoty/eoty-backend/internal/jobs"
	"github.com/eoty/eoty-backend/internal/platform/envutil"
	"github.com/eoty/eoty-backend/internal/platform/logger"
	"github.com/eoty/eoty-backend/internal/services"
)

type Config struct {
	ServerAddress string
	Environment   string
	Version       string

	Upload   services.UploadPolicy
	Coverage services.CoveragePolicy
	Worker   jobs.WorkerPolicy

	SweepInterval time.Duration
}

func LoadConfig(log *logger.Logger) Config {
	log.Info("Loading environment variables...")

	upload := services.DefaultUploadPolicy()
	upload.MaxBytes = envutil.Int64("LIBRARY_MAX_UPLOAD_BYTES", upload.MaxBytes)
	upload.AllowedMimeTypes = envutil.List("LIBRARY_ALLOWED_MIME_TYPES", upload.AllowedMimeTypes)

	coverage := services.DefaultCoveragePolicy()
	coverage.AudienceSize = envutil.Int64("LIBRARY_AUDIENCE_SIZE", 0)
	coverage.WindowDays = envutil.Int("LIBRARY_COVERAGE_WINDOW_DAYS", coverage.WindowDays)
	coverage.TargetRatio = envutil.Float("LIBRARY_COVERAGE_TARGET", coverage.TargetRatio)

	worker := jobs.DefaultWorkerPolicy()
	worker.Concurrency = envutil.Int("JOB_WORKER_CONCURRENCY", worker.Concurrency)
	worker.PollInterval = time.Duration(envutil.Int("JOB_POLL_INTERVAL_SECONDS", int(worker.PollInterval/time.Second))) * time.Second
	worker.MaxAttempts = envutil.Int("JOB_MAX_ATTEMPTS", worker.MaxAttempts)
	worker.TaskTimeout = time.Duration(envutil.Int("JOB_TASK_TIMEOUT_SECONDS", int(worker.TaskTimeout/time.Second))) * time.Second

	return Config{
		ServerAddress: ":" + envutil.String("PORT", "8080"),
		Environment:   envutil.String("APP_ENV", "development"),
		Version:       envutil.String("APP_VERSION", "dev"),
		Upload:        upload,
		Coverage:      coverage,
		Worker:        worker,
		SweepInterval: time.Duration(envutil.Int("BLOB_SWEEP_INTERVAL_MINUTES", 360)) * time.Minute,
	}
}
