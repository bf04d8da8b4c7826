package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	jobrepo "github.com/eoty/eoty-backend/internal/data/repos/jobs"
	types "github.com/eoty/eoty-backend/internal/domain"
	jobdomain "github.com/eoty/eoty-backend/internal/domain/jobs"
	"github.com/eoty/eoty-backend/internal/platform/dbctx"
	"github.com/eoty/eoty-backend/internal/platform/logger"
)

// Handler processes one job type. Handle errors requeue the job with
// backoff until the attempt cap; FailPermanently runs once retries are
// exhausted so the handler can mark its entity failed.
type Handler interface {
	Handle(ctx context.Context, job *types.JobRun) error
	FailPermanently(ctx context.Context, job *types.JobRun, reason string)
}

// WorkerPolicy bounds the queue's delivery behavior. MaxAttempts counts
// the first delivery, so 3 means two retries.
type WorkerPolicy struct {
	Concurrency   int
	PollInterval  time.Duration
	MaxAttempts   int
	BackoffBase   time.Duration
	TaskTimeout   time.Duration
	StaleRunning  time.Duration
	HeartbeatTick time.Duration
}

func DefaultWorkerPolicy() WorkerPolicy {
	return WorkerPolicy{
		Concurrency:   2,
		PollInterval:  2 * time.Second,
		MaxAttempts:   3,
		BackoffBase:   30 * time.Second,
		TaskTimeout:   5 * time.Minute,
		StaleRunning:  10 * time.Minute,
		HeartbeatTick: 30 * time.Second,
	}
}

// Worker drains the job_run queue. Delivery is at-least-once: claims use
// SKIP LOCKED, handlers tolerate duplicates via status CAS on their
// entity.
type Worker struct {
	log      *logger.Logger
	jobRepo  jobrepo.JobRunRepo
	policy   WorkerPolicy
	handlers map[string]Handler

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWorker(baseLog *logger.Logger, jobRepo jobrepo.JobRunRepo, policy WorkerPolicy) *Worker {
	def := DefaultWorkerPolicy()
	if policy.Concurrency <= 0 {
		policy.Concurrency = def.Concurrency
	}
	if policy.PollInterval <= 0 {
		policy.PollInterval = def.PollInterval
	}
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = def.MaxAttempts
	}
	if policy.BackoffBase <= 0 {
		policy.BackoffBase = def.BackoffBase
	}
	if policy.TaskTimeout <= 0 {
		policy.TaskTimeout = def.TaskTimeout
	}
	if policy.StaleRunning <= 0 {
		policy.StaleRunning = def.StaleRunning
	}
	if policy.HeartbeatTick <= 0 {
		policy.HeartbeatTick = def.HeartbeatTick
	}
	return &Worker{
		log:      baseLog.With("component", "JobWorker"),
		jobRepo:  jobRepo,
		policy:   policy,
		handlers: map[string]Handler{},
	}
}

func (w *Worker) Register(jobType string, h Handler) {
	w.handlers[jobType] = h
}

func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	for i := 0; i < w.policy.Concurrency; i++ {
		w.wg.Add(1)
		go w.loop(ctx, i)
	}
	w.log.Info("job worker started", "concurrency", w.policy.Concurrency)
}

func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.log.Info("job worker stopped")
}

func (w *Worker) loop(ctx context.Context, n int) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.policy.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for {
			job, err := w.jobRepo.ClaimNextRunnable(dbctx.Context{Ctx: ctx},
				w.policy.MaxAttempts, w.policy.StaleRunning)
			if err != nil {
				w.log.Error("claim failed", "error", err, "worker", n)
				break
			}
			if job == nil {
				break
			}
			w.run(ctx, job)
		}
	}
}

func (w *Worker) run(ctx context.Context, job *types.JobRun) {
	handler, ok := w.handlers[job.JobType]
	if !ok {
		w.log.Error("no handler for job type", "job_type", job.JobType, "job_id", job.ID)
		w.finish(ctx, job, fmt.Errorf("no handler for %q", job.JobType), nil)
		return
	}

	taskCtx, cancel := context.WithTimeout(ctx, w.policy.TaskTimeout)
	defer cancel()

	hbStop := make(chan struct{})
	go w.heartbeat(ctx, job, hbStop)

	err := w.safeHandle(taskCtx, handler, job)
	close(hbStop)
	w.finish(ctx, job, err, handler)
}

func (w *Worker) safeHandle(ctx context.Context, handler Handler, job *types.JobRun) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return handler.Handle(ctx, job)
}

func (w *Worker) heartbeat(ctx context.Context, job *types.JobRun, stop <-chan struct{}) {
	ticker := time.NewTicker(w.policy.HeartbeatTick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.jobRepo.Heartbeat(dbctx.Context{Ctx: ctx}, job.ID); err != nil {
				w.log.Warn("heartbeat failed", "error", err, "job_id", job.ID)
			}
		}
	}
}

func (w *Worker) finish(ctx context.Context, job *types.JobRun, handleErr error, handler Handler) {
	dbc := dbctx.Context{Ctx: ctx}
	if handleErr == nil {
		if err := w.jobRepo.UpdateFields(dbc, job.ID, map[string]interface{}{
			"status": jobdomain.StatusSucceeded,
		}); err != nil {
			w.log.Error("mark succeeded failed", "error", err, "job_id", job.ID)
		}
		return
	}

	reason := handleErr.Error()
	if errors.Is(handleErr, context.DeadlineExceeded) {
		reason = "timeout"
	}
	now := time.Now()
	updates := map[string]interface{}{
		"status":        jobdomain.StatusFailed,
		"last_error":    reason,
		"last_error_at": now,
	}

	exhausted := job.Attempts >= w.policy.MaxAttempts || handler == nil
	if exhausted {
		if handler != nil {
			handler.FailPermanently(ctx, job, reason)
		}
		w.log.Error("job failed permanently",
			"job_id", job.ID, "job_type", job.JobType,
			"attempts", job.Attempts, "error", handleErr)
	} else {
		// Exponential backoff: base, 2x base, 4x base, ...
		delay := w.policy.BackoffBase << (job.Attempts - 1)
		updates["run_after"] = now.Add(delay)
		w.log.Warn("job failed, requeued",
			"job_id", job.ID, "job_type", job.JobType,
			"attempts", job.Attempts, "retry_in", delay, "error", handleErr)
	}
	if err := w.jobRepo.UpdateFields(dbc, job.ID, updates); err != nil {
		w.log.Error("mark failed failed", "error", err, "job_id", job.ID)
	}
}
