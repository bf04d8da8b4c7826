package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	librepo "github.com/eoty/eoty-backend/internal/data/repos/library"
	"github.com/eoty/eoty-backend/internal/http/response"
	"github.com/eoty/eoty-backend/internal/platform/apierr"
	"github.com/eoty/eoty-backend/internal/platform/logger"
	"github.com/eoty/eoty-backend/internal/requestdata"
	"github.com/eoty/eoty-backend/internal/services"
)

type ResourceHandler struct {
	log       *logger.Logger
	ingestion services.IngestionService
	catalog   services.CatalogService
}

func NewResourceHandler(baseLog *logger.Logger, ingestion services.IngestionService, catalog services.CatalogService) *ResourceHandler {
	return &ResourceHandler{
		log:       baseLog.With("handler", "ResourceHandler"),
		ingestion: ingestion,
		catalog:   catalog,
	}
}

func caller(c *gin.Context) *requestdata.CallerContext {
	return requestdata.GetCaller(c.Request.Context())
}

// POST /api/resources/upload
// Multipart: "file" plus a "metadata" JSON part with the recognized
// upload fields. Unknown metadata fields are rejected.
func (h *ResourceHandler) Upload(c *gin.Context) {
	cc := caller(c)
	if cc == nil || cc.UserID == uuid.Nil {
		response.AbortUnauthorized(c, "missing caller")
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		response.RespondError(c, apierr.Newf(apierr.CodeInvalidInput, "file part is required"))
		return
	}
	file, err := fh.Open()
	if err != nil {
		response.RespondError(c, apierr.New(apierr.CodeInvalidInput, err))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		response.RespondError(c, apierr.New(apierr.CodeStorageFailure, fmt.Errorf("read upload: %w", err)))
		return
	}

	var meta services.UploadMetadata
	if raw := strings.TrimSpace(c.PostForm("metadata")); raw != "" {
		dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&meta); err != nil {
			response.RespondError(c, apierr.New(apierr.CodeInvalidInput, fmt.Errorf("metadata: %w", err)))
			return
		}
	} else {
		meta.Title = strings.TrimSpace(c.PostForm("title"))
	}

	var companionID *uuid.UUID
	if raw := strings.TrimSpace(c.PostForm("companion_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.RespondError(c, apierr.Newf(apierr.CodeInvalidInput, "invalid companion_id"))
			return
		}
		companionID = &id
	}

	mimeType := fh.Header.Get("Content-Type")
	if override := strings.TrimSpace(c.PostForm("mime_type")); override != "" {
		mimeType = override
	}

	res, err := h.ingestion.Upload(c.Request.Context(), cc, services.UploadInput{
		Data:        data,
		Filename:    fh.Filename,
		MimeType:    mimeType,
		Scope:       strings.TrimSpace(c.PostForm("scope")),
		CompanionID: companionID,
		Metadata:    meta,
	})
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondCreated(c, gin.H{"resource": res})
}

func parsePaging(c *gin.Context) librepo.Paging {
	p := librepo.Paging{Limit: librepo.DefaultPageLimit}
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			p.Limit = n
		}
	}
	if v := strings.TrimSpace(c.Query("offset")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			p.Offset = n
		}
	}
	return p
}

func parseSearchFilters(c *gin.Context) (librepo.SearchFilters, error) {
	filters := librepo.SearchFilters{
		Search:   strings.TrimSpace(c.Query("search")),
		Tags:     c.QueryArray("tags"),
		Type:     strings.TrimSpace(c.Query("type")),
		Topic:    strings.TrimSpace(c.Query("topic")),
		Category: strings.TrimSpace(c.Query("category")),
		Language: strings.TrimSpace(c.Query("language")),
	}
	if raw := strings.TrimSpace(c.Query("author")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return filters, apierr.Newf(apierr.CodeInvalidInput, "invalid author filter")
		}
		filters.Author = &id
	}
	for _, d := range []struct {
		q    string
		dest **time.Time
	}{
		{"dateFrom", &filters.DateFrom},
		{"dateTo", &filters.DateTo},
	} {
		raw := strings.TrimSpace(c.Query(d.q))
		if raw == "" {
			continue
		}
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			t, err = time.Parse(time.RFC3339, raw)
		}
		if err != nil {
			return filters, apierr.Newf(apierr.CodeInvalidInput, "invalid %s", d.q)
		}
		*d.dest = &t
	}
	return filters, nil
}

// GET /api/resources/search
func (h *ResourceHandler) Search(c *gin.Context) {
	cc := caller(c)
	filters, err := parseSearchFilters(c)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	result, err := h.catalog.Search(c.Request.Context(), cc, filters, parsePaging(c))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, result)
}

// GET /api/resources/filters
func (h *ResourceHandler) FilterOptions(c *gin.Context) {
	opts, err := h.catalog.GetFilterOptions(c.Request.Context(), caller(c))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, opts)
}

// GET /api/resources/:id
func (h *ResourceHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, apierr.Newf(apierr.CodeInvalidInput, "invalid resource id"))
		return
	}
	view, err := h.catalog.GetResource(c.Request.Context(), caller(c), id)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"resource": view})
}

// GET /api/resources/scope/:scope and /api/resources/scope/:scope/:companion
func (h *ResourceHandler) ListByScope(c *gin.Context) {
	var companionID *uuid.UUID
	if raw := strings.TrimSpace(c.Param("companion")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			response.RespondError(c, apierr.Newf(apierr.CodeInvalidInput, "invalid companion id"))
			return
		}
		companionID = &id
	}
	result, err := h.catalog.ListByScope(c.Request.Context(), caller(c), c.Param("scope"), companionID, parsePaging(c))
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, result)
}

// PUT /api/resources/:id
func (h *ResourceHandler) UpdateMetadata(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, apierr.Newf(apierr.CodeInvalidInput, "invalid resource id"))
		return
	}
	var update services.MetadataUpdate
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&update); err != nil {
		response.RespondError(c, apierr.New(apierr.CodeInvalidInput, err))
		return
	}
	res, err := h.ingestion.UpdateMetadata(c.Request.Context(), caller(c), id, update)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"resource": res})
}

// DELETE /api/resources/:id
func (h *ResourceHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, apierr.Newf(apierr.CodeInvalidInput, "invalid resource id"))
		return
	}
	if err := h.ingestion.Delete(c.Request.Context(), caller(c), id); err != nil {
		response.RespondError(c, err)
		return
	}
	response.RespondMessage(c, "resource deleted")
}

// GET /api/resources/:id/download
// Honors a single "bytes=start-end" range.
func (h *ResourceHandler) Download(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, apierr.Newf(apierr.CodeInvalidInput, "invalid resource id"))
		return
	}

	offset, length := int64(0), int64(-1)
	ranged := false
	if rng := strings.TrimSpace(c.GetHeader("Range")); rng != "" {
		start, end, ok := parseByteRange(rng)
		if !ok {
			c.Header("Content-Range", "bytes */*")
			c.Status(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		offset = start
		if end >= 0 {
			length = end - start + 1
		}
		ranged = true
	}

	dl, err := h.catalog.OpenDownload(c.Request.Context(), caller(c), id, offset, length)
	if err != nil {
		response.RespondError(c, err)
		return
	}
	defer dl.Body.Close()

	c.Header("Accept-Ranges", "bytes")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dl.Filename))
	c.Header("Content-Type", dl.ContentType)

	if ranged {
		end := dl.Size - 1
		if length >= 0 && offset+length-1 < end {
			end = offset + length - 1
		}
		c.Header("Content-Range", fmt.Sprintf("bytes %d-%d/%d", offset, end, dl.Size))
		c.Header("Content-Length", strconv.FormatInt(end-offset+1, 10))
		c.Status(http.StatusPartialContent)
	} else {
		c.Header("Content-Length", strconv.FormatInt(dl.Size, 10))
		c.Status(http.StatusOK)
	}
	if _, err := io.Copy(c.Writer, dl.Body); err != nil {
		h.log.Warn("download stream interrupted", "error", err, "resource_id", id)
	}
}

// parseByteRange handles "bytes=start-end" and "bytes=start-"; multi-range
// and suffix forms are not supported.
func parseByteRange(header string) (start, end int64, ok bool) {
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return 0, -1, false
	}
	spec := strings.TrimPrefix(header, prefix)
	if strings.Contains(spec, ",") {
		return 0, -1, false
	}
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 || parts[0] == "" {
		return 0, -1, false
	}
	start, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || start < 0 {
		return 0, -1, false
	}
	if parts[1] == "" {
		return start, -1, true
	}
	end, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil || end < start {
		return 0, -1, false
	}
	return start, end, true
}
