package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	redisclient "github.com/eoty/eoty-backend/internal/clients/redis"
	jobrepo "github.com/eoty/eoty-backend/internal/data/repos/jobs"
	librepo "github.com/eoty/eoty-backend/internal/data/repos/library"
	types "github.com/eoty/eoty-backend/internal/domain"
	jobdomain "github.com/eoty/eoty-backend/internal/domain/jobs"
	"github.com/eoty/eoty-backend/internal/domain/library"
	"github.com/eoty/eoty-backend/internal/platform/apierr"
	"github.com/eoty/eoty-backend/internal/platform/dbctx"
	"github.com/eoty/eoty-backend/internal/platform/gcp"
	"github.com/eoty/eoty-backend/internal/platform/logger"
	"github.com/eoty/eoty-backend/internal/requestdata"
)

// UploadPolicy is the upload gate: size cap and mime allow-list.
type UploadPolicy struct {
	MaxBytes         int64
	AllowedMimeTypes []string
}

const DefaultMaxUploadBytes = 100 << 20 // 100 MiB

func DefaultUploadPolicy() UploadPolicy {
	return UploadPolicy{
		MaxBytes: DefaultMaxUploadBytes,
		AllowedMimeTypes: []string{
			"application/pdf",
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			"application/epub+zip",
			"text/*",
			"image/*",
			"audio/*",
			"video/*",
		},
	}
}

// UploadMetadata is the fixed set of recognized upload options. Unknown
// fields are rejected at the transport layer.
type UploadMetadata struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Tags        []string   `json:"tags"`
	Language    string     `json:"language"`
	Topic       string     `json:"topic"`
	AuthorID    *uuid.UUID `json:"author_id"`
}

type UploadInput struct {
	Data        []byte
	Filename    string
	MimeType    string
	Scope       string
	CompanionID *uuid.UUID
	Metadata    UploadMetadata
}

// MetadataUpdate carries optional metadata fields; nil means unchanged.
// Version is the caller's last-seen resource version for the conditional
// update.
type MetadataUpdate struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Category    *string    `json:"category"`
	Tags        []string   `json:"tags"`
	Language    *string    `json:"language"`
	Topic       *string    `json:"topic"`
	AuthorID    *uuid.UUID `json:"author_id"`
	Version     int        `json:"version"`
}

// IngestionService validates and stores uploads, owns resource metadata
// writes, and removes resources with their blobs and child rows.
type IngestionService interface {
	Upload(ctx context.Context, caller *requestdata.CallerContext, input UploadInput) (*types.Resource, error)
	UpdateMetadata(ctx context.Context, caller *requestdata.CallerContext, id uuid.UUID, update MetadataUpdate) (*types.Resource, error)
	Delete(ctx context.Context, caller *requestdata.CallerContext, id uuid.UUID) error
}

type ingestionService struct {
	log          *logger.Logger
	db           *gorm.DB
	policy       UploadPolicy
	access       AccessService
	resourceRepo librepo.ResourceRepo
	noteRepo     librepo.UserNoteRepo
	shareRepo    librepo.NoteShareRepo
	summaryRepo  librepo.AISummaryRepo
	usageRepo    librepo.UsageEventRepo
	jobRepo      jobrepo.JobRunRepo
	bucket       gcp.BucketService
	cache        redisclient.SummaryCache
}

func NewIngestionService(
	baseLog *logger.Logger,
	db *gorm.DB,
	policy UploadPolicy,
	access AccessService,
	resourceRepo librepo.ResourceRepo,
	noteRepo librepo.UserNoteRepo,
	shareRepo librepo.NoteShareRepo,
	summaryRepo librepo.AISummaryRepo,
	usageRepo librepo.UsageEventRepo,
	jobRepo jobrepo.JobRunRepo,
	bucket gcp.BucketService,
	cache redisclient.SummaryCache,
) IngestionService {
	if policy.MaxBytes <= 0 {
		policy.MaxBytes = DefaultMaxUploadBytes
	}
	return &ingestionService{
		log:          baseLog.With("service", "IngestionService"),
		db:           db,
		policy:       policy,
		access:       access,
		resourceRepo: resourceRepo,
		noteRepo:     noteRepo,
		shareRepo:    shareRepo,
		summaryRepo:  summaryRepo,
		usageRepo:    usageRepo,
		jobRepo:      jobRepo,
		bucket:       bucket,
		cache:        cache,
	}
}

func (s *ingestionService) mimeAllowed(mimeType string) bool {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	for _, allowed := range s.policy.AllowedMimeTypes {
		if allowed == mt {
			return true
		}
		if strings.HasSuffix(allowed, "/*") && strings.HasPrefix(mt, strings.TrimSuffix(allowed, "*")) {
			return true
		}
	}
	return false
}

// NormalizeTags lowercases, trims and dedupes while keeping a stable
// (sorted) order so tag sets compare equal regardless of input order.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func validateScope(scope string, companionID *uuid.UUID) (courseID, chapterID *uuid.UUID, err error) {
	hasCompanion := companionID != nil && *companionID != uuid.Nil
	switch scope {
	case library.ScopeOwnerPrivate, library.ScopePlatformWide:
		return nil, nil, nil
	case library.ScopeCourseSpecific:
		if !hasCompanion {
			return nil, nil, apierr.Newf(apierr.CodeInvalidScope, "scope %s requires a course id", scope)
		}
		return companionID, nil, nil
	case library.ScopeChapterWide:
		if !hasCompanion {
			return nil, nil, apierr.Newf(apierr.CodeInvalidScope, "scope %s requires a chapter id", scope)
		}
		return nil, companionID, nil
	}
	return nil, nil, apierr.Newf(apierr.CodeInvalidScope, "unknown scope %q", scope)
}

func (s *ingestionService) Upload(ctx context.Context, caller *requestdata.CallerContext, input UploadInput) (*types.Resource, error) {
	if caller == nil || caller.UserID == uuid.Nil {
		return nil, apierr.Newf(apierr.CodeForbidden, "missing caller")
	}
	if len(input.Data) == 0 {
		return nil, apierr.Newf(apierr.CodeInvalidInput, "empty upload")
	}
	if int64(len(input.Data)) > s.policy.MaxBytes {
		return nil, apierr.Newf(apierr.CodeTooLarge, "upload is %d bytes, limit %d", len(input.Data), s.policy.MaxBytes)
	}
	if strings.TrimSpace(input.Metadata.Title) == "" {
		return nil, apierr.Newf(apierr.CodeInvalidInput, "title is required")
	}
	if !s.mimeAllowed(input.MimeType) {
		return nil, apierr.Newf(apierr.CodeUnsupportedType, "mime type %q is not allowed", input.MimeType)
	}
	courseID, chapterID, err := validateScope(input.Scope, input.CompanionID)
	if err != nil {
		return nil, err
	}

	fileType := library.NormalizeFileType(input.MimeType, input.Filename)
	tags, err := json.Marshal(NormalizeTags(input.Metadata.Tags))
	if err != nil {
		return nil, apierr.New(apierr.CodeInternal, fmt.Errorf("marshal tags: %w", err))
	}

	hash := sha256.Sum256(input.Data)
	blobKey := gcp.ContentPrefix + hex.EncodeToString(hash[:])

	// Content-addressed write: identical bytes land on the same object,
	// so re-uploading is idempotent at the blob layer.
	if err := s.bucket.UploadFile(ctx, blobKey, input.MimeType, bytes.NewReader(input.Data)); err != nil {
		return nil, apierr.New(apierr.CodeStorageFailure, fmt.Errorf("write content blob: %w", err))
	}
	return s.finishUpload(ctx, caller, input, fileType, tags, blobKey, courseID, chapterID)
}

func (s *ingestionService) finishUpload(ctx context.Context, caller *requestdata.CallerContext, input UploadInput, fileType string, tags []byte, blobKey string, courseID, chapterID *uuid.UUID) (*types.Resource, error) {
	now := time.Now()
	res := &types.Resource{
		ID:          uuid.New(),
		Title:       strings.TrimSpace(input.Metadata.Title),
		Description: strings.TrimSpace(input.Metadata.Description),
		MimeType:    input.MimeType,
		FileType:    fileType,
		BlobKey:     blobKey,
		SizeBytes:   int64(len(input.Data)),
		Language:    strings.TrimSpace(input.Metadata.Language),
		Topic:       strings.TrimSpace(input.Metadata.Topic),
		Category:    strings.TrimSpace(input.Metadata.Category),
		Tags:        datatypes.JSON(tags),
		AuthorID:    input.Metadata.AuthorID,
		OwnerID:     caller.UserID,
		Scope:       input.Scope,
		CourseID:    courseID,
		ChapterID:   chapterID,
		Status:      library.StatusPending,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if _, err := s.resourceRepo.Create(dbc, []*types.Resource{res}); err != nil {
			return fmt.Errorf("create resource: %w", err)
		}
		meta, _ := json.Marshal(map[string]any{"filename": input.Filename, "size_bytes": res.SizeBytes})
		if _, err := s.usageRepo.Create(dbc, []*types.UsageEvent{{
			ID:         uuid.New(),
			UserID:     caller.UserID,
			ResourceID: res.ID,
			Action:     library.ActionUpload,
			Metadata:   datatypes.JSON(meta),
			CreatedAt:  now,
		}}); err != nil {
			return fmt.Errorf("record upload event: %w", err)
		}
		if _, err := s.jobRepo.Create(dbc, []*types.JobRun{{
			ID:         uuid.New(),
			JobType:    jobdomain.JobTypeResourceExtract,
			EntityType: "resource",
			EntityID:   res.ID,
			Status:     jobdomain.StatusQueued,
			CreatedAt:  now,
			UpdatedAt:  now,
		}}); err != nil {
			return fmt.Errorf("enqueue extract job: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, apierr.New(apierr.CodeStorageFailure, err)
	}

	s.log.Info("resource uploaded",
		"resource_id", res.ID, "owner_id", caller.UserID,
		"file_type", fileType, "scope", res.Scope, "size_bytes", res.SizeBytes)
	return res, nil
}

func (s *ingestionService) UpdateMetadata(ctx context.Context, caller *requestdata.CallerContext, id uuid.UUID, update MetadataUpdate) (*types.Resource, error) {
	dbc := dbctx.Context{Ctx: ctx}
	res, err := s.resourceRepo.GetByID(dbc, id)
	if err != nil {
		return nil, apierr.New(apierr.CodeStorageFailure, err)
	}
	if res == nil {
		return nil, apierr.Newf(apierr.CodeNotFound, "resource not found")
	}
	if err := s.access.Check(dbc, caller, res, ActionEditMetadata); err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if update.Title != nil {
		if strings.TrimSpace(*update.Title) == "" {
			return nil, apierr.Newf(apierr.CodeInvalidInput, "title cannot be empty")
		}
		updates["title"] = strings.TrimSpace(*update.Title)
	}
	if update.Description != nil {
		updates["description"] = strings.TrimSpace(*update.Description)
	}
	if update.Category != nil {
		updates["category"] = strings.TrimSpace(*update.Category)
	}
	if update.Language != nil {
		updates["language"] = strings.TrimSpace(*update.Language)
	}
	if update.Topic != nil {
		updates["topic"] = strings.TrimSpace(*update.Topic)
	}
	if update.AuthorID != nil {
		updates["author_id"] = *update.AuthorID
	}
	if update.Tags != nil {
		b, err := json.Marshal(NormalizeTags(update.Tags))
		if err != nil {
			return nil, apierr.New(apierr.CodeInternal, fmt.Errorf("marshal tags: %w", err))
		}
		updates["tags"] = datatypes.JSON(b)
	}
	if len(updates) == 0 {
		return res, nil
	}

	version := update.Version
	if version == 0 {
		version = res.Version
	}
	ok, err := s.resourceRepo.UpdateMetadataVersioned(dbc, id, version, updates)
	if err != nil {
		return nil, apierr.New(apierr.CodeStorageFailure, err)
	}
	if !ok {
		return nil, apierr.Newf(apierr.CodeConflict, "resource version %d is stale", version)
	}
	return s.resourceRepo.GetByID(dbc, id)
}

func (s *ingestionService) Delete(ctx context.Context, caller *requestdata.CallerContext, id uuid.UUID) error {
	dbc := dbctx.Context{Ctx: ctx}
	res, err := s.resourceRepo.GetByID(dbc, id)
	if err != nil {
		return apierr.New(apierr.CodeStorageFailure, err)
	}
	if res == nil {
		return apierr.Newf(apierr.CodeNotFound, "resource not found")
	}
	if err := s.access.Check(dbc, caller, res, ActionDelete); err != nil {
		return err
	}

	ids := []uuid.UUID{id}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := s.shareRepo.FullDeleteByResourceIDs(txc, ids); err != nil {
			return fmt.Errorf("delete note shares: %w", err)
		}
		if err := s.noteRepo.FullDeleteByResourceIDs(txc, ids); err != nil {
			return fmt.Errorf("delete notes: %w", err)
		}
		if err := s.summaryRepo.FullDeleteByResourceIDs(txc, ids); err != nil {
			return fmt.Errorf("delete summaries: %w", err)
		}
		if err := s.usageRepo.FullDeleteByResourceIDs(txc, ids); err != nil {
			return fmt.Errorf("delete usage events: %w", err)
		}
		if err := s.resourceRepo.FullDeleteByIDs(txc, ids); err != nil {
			return fmt.Errorf("delete resource: %w", err)
		}
		return nil
	})
	if err != nil {
		return apierr.New(apierr.CodeStorageFailure, err)
	}

	// Blob cleanup runs after commit. The content blob is shared by hash,
	// so it is removed only when no surviving row references it.
	shared, err := s.resourceRepo.CountByBlobKey(dbc, res.BlobKey, id)
	if err != nil {
		s.log.Warn("blob reference count failed, leaving blob for sweep", "error", err, "blob_key", res.BlobKey)
	} else if shared == 0 {
		if err := s.bucket.DeleteFile(ctx, res.BlobKey); err != nil {
			s.log.Warn("content blob delete failed, leaving blob for sweep", "error", err, "blob_key", res.BlobKey)
		}
	}
	if res.TextKey != nil {
		if err := s.bucket.DeleteFile(ctx, *res.TextKey); err != nil {
			s.log.Warn("text blob delete failed, leaving blob for sweep", "error", err, "text_key", *res.TextKey)
		}
	}
	if s.cache != nil {
		if err := s.cache.InvalidateResource(ctx, id); err != nil {
			s.log.Warn("summary cache invalidate failed", "error", err, "resource_id", id)
		}
	}

	s.log.Info("resource deleted", "resource_id", id, "by", caller.UserID)
	return nil
}
