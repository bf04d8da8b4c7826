package services

import (
	"context"
	"fmt"
	"io"
	"strings"

	types "github.com/eoty/eoty-backend/internal/domain"
	"github.com/eoty/eoty-backend/internal/domain/library"
	"github.com/eoty/eoty-backend/internal/platform/apierr"
	"github.com/eoty/eoty-backend/internal/platform/gcp"
	"github.com/eoty/eoty-backend/internal/platform/logger"
)

// ExtractionService turns a stored blob into plain text. Dispatch is by
// normalized file type: pdf and docx go through Document AI, plain text
// and markdown pass through, html is tag-stripped, everything else is
// text-less.
type ExtractionService interface {
	// Extract returns the extracted text for the resource's blob, or
	// textless=true when the file type carries no text.
	Extract(ctx context.Context, res *types.Resource) (text string, textless bool, err error)
}

type extractionService struct {
	log      *logger.Logger
	bucket   gcp.BucketService
	document gcp.Document
}

func NewExtractionService(baseLog *logger.Logger, bucket gcp.BucketService, document gcp.Document) ExtractionService {
	return &extractionService{
		log:      baseLog.With("service", "ExtractionService"),
		bucket:   bucket,
		document: document,
	}
}

func (s *extractionService) Extract(ctx context.Context, res *types.Resource) (string, bool, error) {
	if library.Textless(res.FileType) {
		return "", true, nil
	}

	rc, err := s.bucket.DownloadFile(ctx, res.BlobKey)
	if err != nil {
		return "", false, apierr.New(apierr.CodeStorageFailure, fmt.Errorf("read content blob: %w", err))
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", false, apierr.New(apierr.CodeStorageFailure, fmt.Errorf("read content blob: %w", err))
	}

	switch res.FileType {
	case library.FileTypePDF, library.FileTypeDocx:
		text, err := s.document.ExtractText(ctx, data, res.MimeType)
		if err != nil {
			return "", false, err
		}
		return text, false, nil
	case library.FileTypeText, library.FileTypeMarkdown:
		return string(data), false, nil
	case library.FileTypeHTML:
		return StripHTML(string(data)), false, nil
	}
	return "", true, nil
}

// StripHTML drops tags and collapses whitespace. Script and style bodies
// are removed entirely.
func StripHTML(src string) string {
	var b strings.Builder
	b.Grow(len(src))

	inTag := false
	var skipUntil string // closing tag that ends a skipped element
	i := 0
	for i < len(src) {
		c := src[i]
		if inTag {
			if c == '>' {
				inTag = false
			}
			i++
			continue
		}
		if c == '<' {
			rest := strings.ToLower(src[i:])
			if skipUntil != "" {
				if strings.HasPrefix(rest, skipUntil) {
					skipUntil = ""
				}
				inTag = true
				i++
				continue
			}
			if strings.HasPrefix(rest, "<script") {
				skipUntil = "</script"
			} else if strings.HasPrefix(rest, "<style") {
				skipUntil = "</style"
			}
			// Tags are word boundaries.
			b.WriteByte(' ')
			inTag = true
			i++
			continue
		}
		if skipUntil == "" {
			b.WriteByte(c)
		}
		i++
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
