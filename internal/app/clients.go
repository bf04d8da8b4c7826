package app

import (
	"fmt"

	redisclient "github.com/eoty/eoty-backend/internal/clients/redis"
	"github.com/eoty/eoty-backend/internal/platform/gcp"
	"github.com/eoty/eoty-backend/internal/platform/logger"
	"github.com/eoty/eoty-backend/internal/platform/openai"
)

type Clients struct {
	Bucket       gcp.BucketService
	Document     gcp.Document
	OpenAI       openai.Client
	SummaryCache redisclient.SummaryCache
}

func wireClients(log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")

	bucket, err := gcp.NewBucketService(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init bucket service: %w", err)
	}
	document, err := gcp.NewDocument(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init document client: %w", err)
	}
	openaiClient, err := openai.NewClient(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init openai client: %w", err)
	}
	cache, err := redisclient.NewSummaryCache(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init summary cache: %w", err)
	}

	return Clients{
		Bucket:       bucket,
		Document:     document,
		OpenAI:       openaiClient,
		SummaryCache: cache,
	}, nil
}

func (c Clients) Close() {
	if c.Document != nil {
		_ = c.Document.Close()
	}
	if c.SummaryCache != nil {
		_ = c.SummaryCache.Close()
	}
}
