package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	librepo "github.com/eoty/eoty-backend/internal/data/repos/library"
	types "github.com/eoty/eoty-backend/internal/domain"
	"github.com/eoty/eoty-backend/internal/platform/dbctx"
	"github.com/eoty/eoty-backend/internal/platform/gcp"
	"github.com/eoty/eoty-backend/internal/platform/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("init logger: %v", err)
	}
	return log
}

type fakeUsageRepo struct {
	events    []*types.UsageEvent
	createErr error

	viewers   int64
	withUsage int64
	rows      []*librepo.UsageBreakdownRow

	breakdownLimit  int
	breakdownAction string
}

func (f *fakeUsageRepo) Create(dbc dbctx.Context, events []*types.UsageEvent) ([]*types.UsageEvent, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.events = append(f.events, events...)
	return events, nil
}

func (f *fakeUsageRepo) DistinctViewerCountSince(dbc dbctx.Context, since time.Time) (int64, error) {
	return f.viewers, nil
}

func (f *fakeUsageRepo) ResourcesWithUsageSince(dbc dbctx.Context, since time.Time) (int64, error) {
	return f.withUsage, nil
}

func (f *fakeUsageRepo) Breakdown(dbc dbctx.Context, from, to time.Time, action string, limit int) ([]*librepo.UsageBreakdownRow, error) {
	f.breakdownAction = action
	f.breakdownLimit = limit
	return f.rows, nil
}

func (f *fakeUsageRepo) FullDeleteByResourceIDs(dbc dbctx.Context, resourceIDs []uuid.UUID) error {
	return nil
}

// fakeBucket keeps objects in memory. The mutex matters because the
// sweep deletes concurrently.
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	updated map[string]time.Time
	upErr   error
	downErr error
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{objects: map[string][]byte{}, updated: map[string]time.Time{}}
}

func (f *fakeBucket) UploadFile(ctx context.Context, key, contentType string, file io.Reader) error {
	if f.upErr != nil {
		return f.upErr
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return nil
}

func (f *fakeBucket) DownloadFile(ctx context.Context, key string) (io.ReadCloser, error) {
	if f.downErr != nil {
		return nil, f.downErr
	}
	f.mu.Lock()
	data, ok := f.objects[key]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("object %q not found", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeBucket) OpenRangeReader(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	f.mu.Lock()
	data, ok := f.objects[key]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("object %q not found", key)
	}
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	rest := data[offset:]
	if length >= 0 && length < int64(len(rest)) {
		rest = rest[:length]
	}
	return io.NopCloser(bytes.NewReader(rest)), nil
}

func (f *fakeBucket) GetObjectAttrs(ctx context.Context, key string) (*gcp.ObjectAttrs, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("object %q not found", key)
	}
	updated, ok := f.updated[key]
	if !ok {
		updated = time.Now()
	}
	return &gcp.ObjectAttrs{Size: int64(len(data)), Updated: updated}, nil
}

func (f *fakeBucket) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok, nil
}

func (f *fakeBucket) DeleteFile(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func (f *fakeBucket) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

type fakeDocument struct {
	text string
	err  error
}

func (f *fakeDocument) ExtractText(ctx context.Context, data []byte, mimeType string) (string, error) {
	return f.text, f.err
}

func (f *fakeDocument) Close() error { return nil }
