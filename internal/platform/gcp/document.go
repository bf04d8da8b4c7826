package gcp

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"

	"github.com/eoty/eoty-backend/internal/platform/ctxutil"
	"github.com/eoty/eoty-backend/internal/platform/logger"
)

// Document extracts primary text from binary documents (pdf, docx) via
// a Document AI processor.
type Document interface {
	ExtractText(ctx context.Context, data []byte, mimeType string) (string, error)
	Close() error
}

type documentService struct {
	log       *logger.Logger
	docClient *documentai.DocumentProcessorClient

	projectID        string
	location         string
	processorID      string
	processorVersion string
}

func NewDocument(log *logger.Logger) (Document, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	slog := log.With("service", "gcp.Document")

	projectID := strings.TrimSpace(os.Getenv("DOCUMENTAI_PROJECT_ID"))
	processorID := strings.TrimSpace(os.Getenv("DOCUMENTAI_PROCESSOR_ID"))
	if projectID == "" || processorID == "" {
		return nil, fmt.Errorf("missing env vars DOCUMENTAI_PROJECT_ID / DOCUMENTAI_PROCESSOR_ID")
	}
	location := strings.TrimSpace(os.Getenv("DOCUMENTAI_LOCATION"))
	if location == "" {
		location = "us"
	}
	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", location)

	ctx := context.Background()
	c, err := documentai.NewDocumentProcessorClient(ctx, option.WithEndpoint(endpoint))
	if err != nil {
		return nil, fmt.Errorf("documentai client: %w", err)
	}

	slog.Info("Document AI initialized", "endpoint", endpoint)

	return &documentService{
		log:              slog,
		docClient:        c,
		projectID:        projectID,
		location:         location,
		processorID:      processorID,
		processorVersion: strings.TrimSpace(os.Getenv("DOCUMENTAI_PROCESSOR_VERSION")),
	}, nil
}

func (s *documentService) Close() error {
	if s == nil || s.docClient == nil {
		return nil
	}
	return s.docClient.Close()
}

func (s *documentService) processorName() string {
	if s.processorVersion != "" {
		return fmt.Sprintf("projects/%s/locations/%s/processors/%s/processorVersions/%s",
			s.projectID, s.location, s.processorID, s.processorVersion)
	}
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s",
		s.projectID, s.location, s.processorID)
}

func (s *documentService) ExtractText(ctx context.Context, data []byte, mimeType string) (string, error) {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	if len(data) == 0 {
		return "", nil
	}
	if mimeType == "" {
		mimeType = "application/pdf"
	}

	req := &documentaipb.ProcessRequest{
		Name: s.processorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  data,
				MimeType: mimeType,
			},
		},
	}

	resp, err := s.docClient.ProcessDocument(ctx, req)
	if err != nil {
		return "", fmt.Errorf("documentai ProcessDocument: %w", err)
	}
	if resp == nil || resp.Document == nil {
		return "", nil
	}
	return resp.Document.GetText(), nil
}
