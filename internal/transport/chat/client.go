// Package chat is the client for the upstream generation provider. It opens
// SSE streams for the relay and performs non-streaming generation calls.
package chat

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
	"github.com/kailas-cloud/llmgate/internal/version"
)

// Message is one turn of the conversation sent upstream.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request carries the generation parameters. Query is only used by the
// search stream endpoint.
type Request struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages,omitempty"`
	Query       string    `json:"query,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream"`
}

// Usage is the upstream token accounting of one generation.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// GenerateResult is a completed non-streaming generation.
type GenerateResult struct {
	Response string `json:"response"`
	Model    string `json:"model"`
	Provider string `json:"provider"`
	Usage    Usage  `json:"usage"`
}

// Client talks to the upstream provider. The stream client carries no
// http.Client timeout: stream lifetime is bounded by the request context,
// not a wall clock.
type Client struct {
	streamClient *http.Client
	callClient   *http.Client
	baseURL      string
	apiKey       string
	logger       *zap.Logger
}

// Config holds the upstream provider settings.
type Config struct {
	BaseURL     string
	APIKey      string
	CallTimeout time.Duration
	Logger      *zap.Logger
}

// NewClient creates an upstream chat client.
func NewClient(cfg *Config) *Client {
	return &Client{
		streamClient: &http.Client{},
		callClient:   &http.Client{Timeout: cfg.CallTimeout},
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		logger:       cfg.Logger,
	}
}

// OpenGenerateStream opens the upstream SSE generation stream. The caller
// owns the returned body and must close it.
func (c *Client) OpenGenerateStream(ctx context.Context, req Request) (io.ReadCloser, error) {
	req.Stream = true
	return c.openStream(ctx, "/generate/stream", req)
}

// OpenSearchStream opens the upstream search-augmented SSE stream.
func (c *Client) OpenSearchStream(ctx context.Context, req Request) (io.ReadCloser, error) {
	req.Stream = true
	return c.openStream(ctx, "/search/stream", req)
}

func (c *Client) openStream(ctx context.Context, path string, payload Request) (io.ReadCloser, error) {
	httpReq, err := c.buildRequest(ctx, path, payload)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("open stream: %w", domain.ErrUpstreamTimeout)
		}
		return nil, fmt.Errorf("open stream: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("open stream: %w",
			domain.NewUpstreamStatus(resp.StatusCode, string(detail)))
	}

	return resp.Body, nil
}

// Generate performs a non-streaming generation call.
func (c *Client) Generate(ctx context.Context, req Request) (GenerateResult, error) {
	req.Stream = false
	httpReq, err := c.buildRequest(ctx, "/generate", req)
	if err != nil {
		return GenerateResult{}, err
	}

	resp, err := c.callClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return GenerateResult{}, fmt.Errorf("generate: %w", domain.ErrUpstreamTimeout)
		}
		return GenerateResult{}, fmt.Errorf("generate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return GenerateResult{}, fmt.Errorf("generate: %w",
			domain.NewUpstreamStatus(resp.StatusCode, string(detail)))
	}

	var result GenerateResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return GenerateResult{}, fmt.Errorf("decode generate response: %w", domain.ErrBadUpstreamResponse)
	}
	if result.Response == "" {
		return GenerateResult{}, fmt.Errorf("empty generate response: %w", domain.ErrBadUpstreamResponse)
	}
	return result, nil
}

// HealthCheck probes the upstream models endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("build health request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.callClient.Do(req)
	if err != nil {
		return fmt.Errorf("upstream unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("upstream unhealthy: %w", domain.NewUpstreamStatus(resp.StatusCode, ""))
	}
	return nil
}

func (c *Client) buildRequest(ctx context.Context, path string, payload Request) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}
