package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/eoty/eoty-backend/internal/platform/logger"
)

// Object key prefixes inside the library bucket. content/ keys are
// content-addressed (sha256), so the same upload lands on the same object
// and writes are idempotent. extracted/ keys are per-resource.
const (
	ContentPrefix   = "content/"
	ExtractedPrefix = "extracted/"
)

type ObjectAttrs struct {
	Size        int64
	ContentType string
	Updated     time.Time
	ETag        string
}

type BucketService interface {
	UploadFile(ctx context.Context, key string, contentType string, file io.Reader) error
	DownloadFile(ctx context.Context, key string) (io.ReadCloser, error)
	OpenRangeReader(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error)
	GetObjectAttrs(ctx context.Context, key string) (*ObjectAttrs, error)
	Exists(ctx context.Context, key string) (bool, error)
	DeleteFile(ctx context.Context, key string) error
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}

type bucketService struct {
	log           *logger.Logger
	storageClient *storage.Client
	bucketName    string
	opTimeout     time.Duration
}

func NewBucketService(log *logger.Logger) (BucketService, error) {
	serviceLog := log.With("service", "BucketService")

	bucketName := strings.TrimSpace(os.Getenv("LIBRARY_GCS_BUCKET_NAME"))
	if bucketName == "" {
		return nil, fmt.Errorf("missing env var LIBRARY_GCS_BUCKET_NAME")
	}

	ctx := context.Background()
	var opts []option.ClientOption
	if emulator := strings.TrimSpace(os.Getenv("STORAGE_EMULATOR_HOST")); emulator != "" {
		opts = append(opts, option.WithoutAuthentication())
	} else {
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	}
	stClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	serviceLog.Info("Object storage initialized", "bucket", bucketName)

	return &bucketService{
		log:           serviceLog,
		storageClient: stClient,
		bucketName:    bucketName,
		opTimeout:     2 * time.Minute,
	}, nil
}

func (b *bucketService) object(key string) *storage.ObjectHandle {
	return b.storageClient.Bucket(b.bucketName).Object(key)
}

func (b *bucketService) UploadFile(ctx context.Context, key string, contentType string, file io.Reader) error {
	ctx, cancel := context.WithTimeout(ctx, b.opTimeout)
	defer cancel()

	w := b.object(key).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, file); err != nil {
		_ = w.Close()
		return fmt.Errorf("upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalize %s: %w", key, err)
	}
	return nil
}

func (b *bucketService) DownloadFile(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := b.object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	return r, nil
}

func (b *bucketService) OpenRangeReader(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	r, err := b.object(key).NewRangeReader(ctx, offset, length)
	if err != nil {
		return nil, fmt.Errorf("open range %s: %w", key, err)
	}
	return r, nil
}

func (b *bucketService) GetObjectAttrs(ctx context.Context, key string) (*ObjectAttrs, error) {
	attrs, err := b.object(key).Attrs(ctx)
	if err != nil {
		return nil, fmt.Errorf("attrs %s: %w", key, err)
	}
	return &ObjectAttrs{
		Size:        attrs.Size,
		ContentType: attrs.ContentType,
		Updated:     attrs.Updated,
		ETag:        attrs.Etag,
	}, nil
}

func (b *bucketService) Exists(ctx context.Context, key string) (bool, error) {
	_, err := b.object(key).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return false, err
}

func (b *bucketService) DeleteFile(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, b.opTimeout)
	defer cancel()
	err := b.object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (b *bucketService) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	it := b.storageClient.Bucket(b.bucketName).Objects(ctx, &storage.Query{Prefix: prefix})
	var keys []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}
