package llmgate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// EventType discriminates normalized stream events.
type EventType string

const (
	EventContent       EventType = "content"
	EventStatus        EventType = "status"
	EventSearchResults EventType = "search_results"
	EventError         EventType = "error"
)

// Event is one normalized frame of a gateway stream.
type Event struct {
	Type    EventType       `json:"type"`
	Content string          `json:"content,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	Results json.RawMessage `json:"results,omitempty"`
}

// EventHandler receives stream events in arrival order. Returning an error
// stops the stream and is returned from the streaming call.
type EventHandler func(ev Event) error

// GenerateStream streams a generation, delivering each event to handler.
// Returns nil when the stream ends with the DONE sentinel or the upstream
// closes; an error frame is delivered to the handler, not returned.
func (c *Client) GenerateStream(ctx context.Context, req GenerateRequest, handler EventHandler) error {
	return c.stream(ctx, "/api/v1/generate/stream", req, handler)
}

// SearchStreamRequest holds search streaming parameters.
type SearchStreamRequest struct {
	Query string `json:"query"`
	Model string `json:"model,omitempty"`
}

// SearchStream streams a search, delivering status, search_results and
// content events to handler.
func (c *Client) SearchStream(ctx context.Context, req SearchStreamRequest, handler EventHandler) error {
	return c.stream(ctx, "/api/v1/search/stream", req, handler)
}

func (c *Client) stream(ctx context.Context, path string, body any, handler EventHandler) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("llmgate: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("llmgate: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
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

	return consumeEvents(resp.Body, handler)
}

// consumeEvents reads SSE data lines until the DONE sentinel or EOF.
func consumeEvents(body io.Reader, handler EventHandler) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " ")
		if data == "[DONE]" {
			return nil
		}

		var ev Event
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			// Foreign frame; skip rather than kill the stream.
			continue
		}
		if err := handler(ev); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("llmgate: read stream: %w", err)
	}
	return nil
}
