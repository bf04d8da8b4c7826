package services

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	librepo "github.com/eoty/eoty-backend/internal/data/repos/library"
	"github.com/eoty/eoty-backend/internal/platform/dbctx"
	"github.com/eoty/eoty-backend/internal/platform/gcp"
	"github.com/eoty/eoty-backend/internal/platform/logger"
)

// sweepGracePeriod protects in-flight uploads: a blob younger than this
// is never considered orphaned even if no row references it yet.
const sweepGracePeriod = time.Hour

const sweepConcurrency = 8

// SweepService reclaims blobs no Resource row references. Content blobs
// are content-addressed and shared across rows; extracted-text blobs are
// per-resource.
type SweepService interface {
	SweepOrphanBlobs(ctx context.Context) (deleted int, err error)
}

type sweepService struct {
	log          *logger.Logger
	resourceRepo librepo.ResourceRepo
	bucket       gcp.BucketService
}

func NewSweepService(baseLog *logger.Logger, resourceRepo librepo.ResourceRepo, bucket gcp.BucketService) SweepService {
	return &sweepService{
		log:          baseLog.With("service", "SweepService"),
		resourceRepo: resourceRepo,
		bucket:       bucket,
	}
}

func (s *sweepService) SweepOrphanBlobs(ctx context.Context) (int, error) {
	var deleted int64
	for _, prefix := range []string{gcp.ContentPrefix, gcp.ExtractedPrefix} {
		n, err := s.sweepPrefix(ctx, prefix)
		deleted += n
		if err != nil {
			return int(deleted), err
		}
	}
	if deleted > 0 {
		s.log.Info("orphan blob sweep finished", "deleted", deleted)
	}
	return int(deleted), nil
}

func (s *sweepService) sweepPrefix(ctx context.Context, prefix string) (int64, error) {
	keys, err := s.bucket.ListKeys(ctx, prefix)
	if err != nil {
		return 0, err
	}

	var deleted int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			referenced, err := s.referenced(gctx, prefix, key)
			if err != nil {
				return err
			}
			if referenced {
				return nil
			}
			attrs, err := s.bucket.GetObjectAttrs(gctx, key)
			if err != nil {
				return err
			}
			if time.Since(attrs.Updated) < sweepGracePeriod {
				return nil
			}
			if err := s.bucket.DeleteFile(gctx, key); err != nil {
				return err
			}
			atomic.AddInt64(&deleted, 1)
			s.log.Info("orphan blob removed", "key", key)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return atomic.LoadInt64(&deleted), err
	}
	return atomic.LoadInt64(&deleted), nil
}

func (s *sweepService) referenced(ctx context.Context, prefix, key string) (bool, error) {
	dbc := dbctx.Context{Ctx: ctx}
	if prefix == gcp.ContentPrefix {
		return s.resourceRepo.ExistsByBlobKey(dbc, key)
	}
	return s.resourceRepo.ExistsByTextKey(dbc, key)
}
