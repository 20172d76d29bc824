// Package llmgate is the client SDK for the llmgate HTTP API: batch
// embedding, generation and normalized streaming.
package llmgate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Client is the llmgate SDK entry point. Safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a Client for the gateway at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("llmgate: base URL required")
	}

	cfg := &clientConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}

	httpClient := cfg.httpClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.timeout}
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.apiKey,
		httpClient: httpClient,
	}, nil
}

// APIError is a non-2xx response from the gateway.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("llmgate: %s (%s, HTTP %d)", e.Message, e.Code, e.StatusCode)
}

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateRequest holds generation parameters.
type GenerateRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// Usage is the token accounting of one generation.
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

// Generate produces a completion.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	var res GenerateResult
	err := c.postJSON(ctx, "/api/v1/generate", req, &res)
	return res, err
}

// EmbedItem is one embedding, aligned with the input by Index.
type EmbedItem struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
	Dimension int       `json:"dimension"`
}

// CacheStats is the embedding cache effectiveness of one request.
type CacheStats struct {
	Hits    int     `json:"hits"`
	Misses  int     `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// EmbedUsage is the token and spend accounting of one embedding request.
type EmbedUsage struct {
	TotalTokens int     `json:"total_tokens"`
	CostUSD     float64 `json:"cost_usd"`
}

// EmbedResult holds one embedding per input text, in input order.
type EmbedResult struct {
	Data       []EmbedItem `json:"data"`
	Usage      EmbedUsage  `json:"usage"`
	CacheStats *CacheStats `json:"cache_stats,omitempty"`
	ZeroFilled int         `json:"zero_filled,omitempty"`
}

// EmbedBatch embeds texts preserving positions.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) (EmbedResult, error) {
	var res EmbedResult
	err := c.postJSON(ctx, "/api/v1/embed", map[string][]string{"texts": texts}, &res)
	return res, err
}

// TokenCount is a token count with its cost estimate.
type TokenCount struct {
	Tokens  int     `json:"tokens"`
	CostUSD float64 `json:"cost_usd"`
	CostCNY float64 `json:"cost_cny"`
	Exact   bool    `json:"exact"`
}

// CountTokens counts tokens in text and estimates cost.
func (c *Client) CountTokens(ctx context.Context, text string) (TokenCount, error) {
	var res TokenCount
	err := c.postJSON(ctx, "/api/v1/tokens/count", map[string]string{"text": text}, &res)
	return res, err
}

// PeriodTotals is the usage total for one accounting period.
type PeriodTotals struct {
	Tokens  int64   `json:"tokens"`
	CostUSD float64 `json:"cost_usd"`
}

// UsageReport is the gateway's cumulative usage report.
type UsageReport struct {
	Daily   PeriodTotals `json:"daily"`
	Monthly PeriodTotals `json:"monthly"`
}

// GetUsage fetches the cumulative usage report.
func (c *Client) GetUsage(ctx context.Context) (UsageReport, error) {
	var res UsageReport
	err := c.getJSON(ctx, "/api/v1/usage", &res)
	return res, err
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("llmgate: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("llmgate: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.send(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("llmgate: build request: %w", err)
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("llmgate: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("llmgate: decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err == nil {
		_ = json.Unmarshal(body, apiErr)
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
