package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/eoty/eoty-backend/internal/platform/logger"
	"github.com/eoty/eoty-backend/internal/services"
)

// SweepScheduler runs the orphan blob sweep on a fixed interval.
type SweepScheduler struct {
	log      *logger.Logger
	sweep    services.SweepService
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSweepScheduler(baseLog *logger.Logger, sweep services.SweepService, interval time.Duration) *SweepScheduler {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &SweepScheduler{
		log:      baseLog.With("component", "SweepScheduler"),
		sweep:    sweep,
		interval: interval,
	}
}

func (s *SweepScheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.sweep.SweepOrphanBlobs(ctx); err != nil {
					s.log.Error("orphan blob sweep failed", "error", err)
				}
			}
		}
	}()
	s.log.Info("sweep scheduler started", "interval", s.interval)
}

func (s *SweepScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}
