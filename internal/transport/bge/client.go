// Package bge is the client for the primary bulk-embedding backend, a
// specialized service exposing a single POST /embeddings endpoint tuned for
// the bge-m3 family.
package bge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/llmgate/internal/domain"
	"github.com/kailas-cloud/llmgate/internal/metrics"
	"github.com/kailas-cloud/llmgate/internal/version"
)

const providerName = "bge"

// Client calls the bulk embedding backend.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	logger     *zap.Logger
}

// Config holds the backend connection settings.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	Logger  *zap.Logger
}

// NewClient creates a bulk embedding client.
func NewClient(cfg *Config) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		logger:     cfg.Logger,
	}
}

type embedRequest struct {
	Texts []string `json:"texts"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		TotalTokens int      `json:"total_tokens"`
		Cost        *float64 `json:"cost"`
	} `json:"usage"`
}

// BatchEmbed implements domain.BatchEmbedder against the bulk endpoint.
// The backend must return exactly one vector per text; anything else is an
// ErrBadUpstreamResponse, never silently truncated output.
func (c *Client) BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	body, err := json.Marshal(embedRequest{Texts: texts, Model: c.model})
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return domain.BatchEmbeddingResult{}, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, c.model, "error").Inc()
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.BatchEmbeddingResult{}, fmt.Errorf("embed request: %w", domain.ErrUpstreamTimeout)
		}
		return domain.BatchEmbeddingResult{}, fmt.Errorf("embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, c.model, "error").Inc()
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.BatchEmbeddingResult{}, fmt.Errorf(
			"embed request: %w", domain.NewUpstreamStatus(resp.StatusCode, string(detail)))
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, c.model, "error").Inc()
		return domain.BatchEmbeddingResult{}, fmt.Errorf(
			"decode embed response: %w", domain.ErrBadUpstreamResponse)
	}

	if len(parsed.Data) != len(texts) {
		metrics.EmbeddingErrorsTotal.WithLabelValues(providerName, c.model, "count_mismatch").Inc()
		return domain.BatchEmbeddingResult{}, fmt.Errorf(
			"embedding count mismatch: got %d for %d texts: %w",
			len(parsed.Data), len(texts), domain.ErrBadUpstreamResponse)
	}

	embeddings := make([][]float32, len(texts))
	for i, d := range parsed.Data {
		idx := d.Index
		if idx < 0 || idx >= len(texts) {
			idx = i
		}
		embeddings[idx] = d.Embedding
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, c.model, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(providerName, c.model).Observe(duration.Seconds())
	if parsed.Usage.TotalTokens > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(providerName, c.model).
			Add(float64(parsed.Usage.TotalTokens))
	}

	result := domain.BatchEmbeddingResult{
		Embeddings:  embeddings,
		TotalTokens: parsed.Usage.TotalTokens,
	}
	if parsed.Usage.Cost != nil {
		result.CostUSD = *parsed.Usage.Cost
	}
	return result, nil
}

// HealthCheck probes the backend root. Any HTTP reply counts as alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("embedding backend unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("embedding backend unhealthy: %w",
			domain.NewUpstreamStatus(resp.StatusCode, ""))
	}
	return nil
}
