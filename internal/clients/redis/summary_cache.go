package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	types "github.com/eoty/eoty-backend/internal/domain"
	"github.com/eoty/eoty-backend/internal/platform/logger"
)

// SummaryCache keeps publishable summaries out of the hot path to the
// database. Misses are never an error; the summary service falls through
// to the store.
type SummaryCache interface {
	Get(ctx context.Context, resourceID uuid.UUID, summaryType string) (*types.AISummary, error)
	Set(ctx context.Context, summary *types.AISummary) error
	Invalidate(ctx context.Context, resourceID uuid.UUID, summaryType string) error
	InvalidateResource(ctx context.Context, resourceID uuid.UUID) error
	Close() error
}

type summaryCache struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

func NewSummaryCache(log *logger.Logger) (SummaryCache, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &summaryCache{
		log: log.With("service", "SummaryCache"),
		rdb: rdb,
		ttl: 24 * time.Hour,
	}, nil
}

func summaryKey(resourceID uuid.UUID, summaryType string) string {
	return fmt.Sprintf("summary:%s:%s", resourceID, summaryType)
}

func (c *summaryCache) Get(ctx context.Context, resourceID uuid.UUID, summaryType string) (*types.AISummary, error) {
	raw, err := c.rdb.Get(ctx, summaryKey(resourceID, summaryType)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s types.AISummary
	if err := json.Unmarshal(raw, &s); err != nil {
		// Stale or corrupt entry; drop it and treat as a miss.
		_ = c.rdb.Del(ctx, summaryKey(resourceID, summaryType)).Err()
		return nil, nil
	}
	return &s, nil
}

func (c *summaryCache) Set(ctx context.Context, summary *types.AISummary) error {
	if summary == nil {
		return nil
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, summaryKey(summary.ResourceID, summary.SummaryType), raw, c.ttl).Err()
}

func (c *summaryCache) Invalidate(ctx context.Context, resourceID uuid.UUID, summaryType string) error {
	return c.rdb.Del(ctx, summaryKey(resourceID, summaryType)).Err()
}

func (c *summaryCache) InvalidateResource(ctx context.Context, resourceID uuid.UUID) error {
	summaryTypes := []string{"brief", "detailed"}
	keys := make([]string, 0, len(summaryTypes))
	for _, t := range summaryTypes {
		keys = append(keys, summaryKey(resourceID, t))
	}
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *summaryCache) Close() error {
	return c.rdb.Close()
}
