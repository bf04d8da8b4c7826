package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/eoty/eoty-backend/internal/platform/apierr"
	"github.com/eoty/eoty-backend/internal/platform/ctxutil"
	"github.com/eoty/eoty-backend/internal/platform/envutil"
	"github.com/eoty/eoty-backend/internal/platform/logger"
)

// SummaryResult is the structured output the generator returns for a
// resource. RelevanceScore is the model's own estimate in [0,1]; the
// summary service decides what to do with it.
type SummaryResult struct {
	Text              string   `json:"text"`
	KeyPoints         []string `json:"key_points"`
	SpiritualInsights []string `json:"spiritual_insights"`
	RelevanceScore    float64  `json:"relevance_score"`
}

// Client is the external summary generator.
type Client interface {
	GenerateSummary(ctx context.Context, text string, summaryType string) (*SummaryResult, error)
}

type client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	maxRetries int
}

func NewClient(log *logger.Logger) (Client, error) {
	apiKey := strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("missing env var OPENAI_API_KEY")
	}
	baseURL := envutil.String("OPENAI_BASE_URL", "https://api.openai.com")
	model := envutil.String("OPENAI_MODEL", "gpt-4o-mini")
	timeoutSec := envutil.Int("OPENAI_TIMEOUT_SECONDS", 120)

	return &client{
		log:        log.With("service", "openai.Client"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: time.Duration(timeoutSec) * time.Second},
		maxRetries: envutil.Int("OPENAI_MAX_RETRIES", 2),
	}, nil
}

var summarySchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"text", "key_points", "spiritual_insights", "relevance_score"},
	"properties": map[string]any{
		"text":               map[string]any{"type": "string"},
		"key_points":         map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"spiritual_insights": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"relevance_score":    map[string]any{"type": "number", "minimum": 0, "maximum": 1},
	},
}

const summarySystemPrompt = `You summarize documents from a faith community's resource library.
Return a summary of the requested depth, a short ordered list of key points,
spiritual insights where the document supports them, and a relevance_score in
[0,1] estimating how faithful the summary is to the source text.`

type responsesRequest struct {
	Model string `json:"model"`
	Input []struct {
		Role    string `json:"role"`
		Content any    `json:"content"`
	} `json:"input"`
	Text struct {
		Format map[string]any `json:"format,omitempty"`
	} `json:"text,omitempty"`
}

type responsesResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func extractOutputText(resp responsesResponse) string {
	for _, out := range resp.Output {
		for _, c := range out.Content {
			if c.Type == "output_text" && strings.TrimSpace(c.Text) != "" {
				return c.Text
			}
		}
	}
	return ""
}

func (c *client) GenerateSummary(ctx context.Context, text string, summaryType string) (*SummaryResult, error) {
	ctx = ctxutil.Default(ctx)

	user := fmt.Sprintf("Summary type: %s\n\nDocument text:\n%s", summaryType, text)
	req := responsesRequest{Model: c.model}
	req.Input = []struct {
		Role    string `json:"role"`
		Content any    `json:"content"`
	}{
		{Role: "system", Content: summarySystemPrompt},
		{Role: "user", Content: user},
	}
	req.Text.Format = map[string]any{
		"type":   "json_schema",
		"name":   "resource_summary",
		"schema": summarySchema,
		"strict": true,
	}

	var resp responsesResponse
	if err := c.doWithRetry(ctx, "/v1/responses", &req, &resp); err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, apierr.Newf(apierr.CodeUpstreamFailure, "generator: %s", resp.Error.Message)
	}

	jsonText := extractOutputText(resp)
	if strings.TrimSpace(jsonText) == "" {
		return nil, apierr.Newf(apierr.CodeUpstreamFailure, "generator returned no output_text")
	}
	var result SummaryResult
	if err := json.Unmarshal([]byte(jsonText), &result); err != nil {
		return nil, apierr.Newf(apierr.CodeUpstreamFailure, "parse generator JSON: %v", err)
	}
	return &result, nil
}

func (c *client) doWithRetry(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	backoff := 1 * time.Second
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return apierr.New(apierr.CodeUpstreamTimeout, ctx.Err())
			case <-time.After(jitterSleep(backoff)):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
				lastErr = apierr.New(apierr.CodeUpstreamTimeout, err)
			} else {
				lastErr = apierr.New(apierr.CodeUpstreamFailure, err)
			}
			if !apierr.Retryable(lastErr) {
				return lastErr
			}
			continue
		}

		raw, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = apierr.New(apierr.CodeUpstreamFailure, readErr)
			continue
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			if err := json.Unmarshal(raw, out); err != nil {
				return apierr.Newf(apierr.CodeUpstreamFailure, "decode response: %v", err)
			}
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = apierr.Newf(apierr.CodeUpstreamFailure, "generator status %d: %s", resp.StatusCode, truncateBody(raw))
		default:
			// The request itself was rejected; a retry cannot change that.
			return apierr.Newf(apierr.CodeUpstreamFailure, "generator status %d: %s", resp.StatusCode, truncateBody(raw))
		}
		if !apierr.Retryable(lastErr) {
			return lastErr
		}
		c.log.Warn("generator call failed, retrying",
			"status", resp.StatusCode, "attempt", attempt, "max_retries", c.maxRetries)
	}
	if lastErr == nil {
		lastErr = apierr.Newf(apierr.CodeUpstreamFailure, "generator call failed")
	}
	return lastErr
}

const maxBackoff = 10 * time.Second

// jitterSleep spreads a backoff by +/- 20% so synchronized workers don't
// hammer the API in lockstep.
func jitterSleep(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delta := 0.2 * base.Seconds()
	low := base.Seconds() - delta
	v := low + rand.Float64()*(2*delta)
	return time.Duration(v * float64(time.Second))
}

func truncateBody(raw []byte) string {
	s := string(raw)
	if len(s) > 512 {
		return s[:512] + "..."
	}
	return s
}
