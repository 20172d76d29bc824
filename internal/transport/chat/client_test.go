package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/llmgate/internal/domain"
)

func newTestClient(url string) *Client {
	return NewClient(&Config{
		BaseURL:     url,
		APIKey:      "test-key",
		CallTimeout: time.Second,
		Logger:      zap.NewNop(),
	})
}

func TestClient_OpenGenerateStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/generate/stream" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing auth header")
		}

		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if !req.Stream {
			t.Error("expected stream=true forced on")
		}
		if req.Model != "deepseek-chat" {
			t.Errorf("unexpected model %q", req.Model)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"content\",\"content\":\"hi\"}\n\ndata: [DONE]\n\n")
	}))
	defer server.Close()

	body, err := newTestClient(server.URL).OpenGenerateStream(context.Background(), Request{
		Model:    "deepseek-chat",
		Messages: []Message{{Role: "user", Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if string(raw) != "data: {\"type\":\"content\",\"content\":\"hi\"}\n\ndata: [DONE]\n\n" {
		t.Errorf("unexpected stream bytes: %q", raw)
	}
}

func TestClient_OpenSearchStream_Path(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	body, err := newTestClient(server.URL).OpenSearchStream(context.Background(), Request{Query: "golang"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body.Close()

	if gotPath != "/search/stream" {
		t.Errorf("expected search stream path, got %q", gotPath)
	}
}

func TestClient_OpenStream_UpstreamStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"detail":"model not found"}`, http.StatusNotFound)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).OpenGenerateStream(context.Background(), Request{})
	if !errors.Is(err, domain.ErrUpstreamStatus) {
		t.Fatalf("expected ErrUpstreamStatus, got %v", err)
	}
	if !domain.IsClientCaused(err) {
		t.Error("expected 404 recognized as client caused")
	}
}

func TestClient_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/generate" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		var req Request
		json.NewDecoder(r.Body).Decode(&req)
		if req.Stream {
			t.Error("expected stream=false for non-streaming call")
		}

		json.NewEncoder(w).Encode(GenerateResult{
			Response: "full answer",
			Model:    "deepseek-chat",
			Provider: "upstream",
			Usage:    Usage{PromptTokens: 5, CompletionTokens: 10, TotalTokens: 15},
		})
	}))
	defer server.Close()

	res, err := newTestClient(server.URL).Generate(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Response != "full answer" {
		t.Errorf("unexpected response %q", res.Response)
	}
	if res.Usage.TotalTokens != 15 {
		t.Errorf("unexpected usage %+v", res.Usage)
	}
}

func TestClient_Generate_EmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"model": "m"})
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Generate(context.Background(), Request{})
	if !errors.Is(err, domain.ErrBadUpstreamResponse) {
		t.Fatalf("expected ErrBadUpstreamResponse, got %v", err)
	}
}

func TestClient_HealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	if err := newTestClient(server.URL).HealthCheck(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
