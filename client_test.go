package llmgate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNew_NoBaseURL(t *testing.T) {
	_, err := New("")
	if err == nil {
		t.Fatal("expected error when no base URL provided")
	}
}

func TestNew_TrimsTrailingSlash(t *testing.T) {
	c, err := New("http://localhost:8080/")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.baseURL != "http://localhost:8080" {
		t.Errorf("baseURL = %q", c.baseURL)
	}
}

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/generate" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("Authorization = %q", auth)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":"hi","model":"deepseek-chat","provider":"deepseek","usage":{"total_tokens":9}}`))
	}))
	defer srv.Close()

	c, _ := New(srv.URL, WithAPIKey("sk-test"))
	res, err := c.Generate(context.Background(), GenerateRequest{
		Messages: []Message{{Role: "user", Content: "hello"}},
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if res.Response != "hi" || res.Usage.TotalTokens != 9 {
		t.Errorf("result = %+v", res)
	}
}

func TestGenerate_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"code":"all_tiers_failed","message":"all tiers failed"}`))
	}))
	defer srv.Close()

	c, _ := New(srv.URL)
	_, err := c.Generate(context.Background(), GenerateRequest{
		Messages: []Message{{Role: "user", Content: "hello"}},
	})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusBadGateway || apiErr.Code != "all_tiers_failed" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestEmbedBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/embed" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"data":[
				{"index":0,"embedding":[0.1,0.2],"dimension":2},
				{"index":1,"embedding":[0.3,0.4],"dimension":2}
			],
			"usage":{"total_tokens":5,"cost_usd":0.0001},
			"cache_stats":{"hits":1,"misses":1,"hit_rate":0.5}
		}`))
	}))
	defer srv.Close()

	c, _ := New(srv.URL)
	res, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	if len(res.Data) != 2 {
		t.Fatalf("len(data) = %d, want 2", len(res.Data))
	}
	if res.Data[1].Index != 1 || res.Data[1].Dimension != 2 {
		t.Errorf("data[1] = %+v", res.Data[1])
	}
	if res.CacheStats == nil || res.CacheStats.HitRate != 0.5 {
		t.Errorf("cache stats = %+v", res.CacheStats)
	}
}

func TestCountTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tokens":12,"cost_usd":0.00024,"cost_cny":0.001728,"exact":true}`))
	}))
	defer srv.Close()

	c, _ := New(srv.URL)
	res, err := c.CountTokens(context.Background(), "some text")
	if err != nil {
		t.Fatalf("CountTokens() error = %v", err)
	}
	if res.Tokens != 12 || !res.Exact {
		t.Errorf("result = %+v", res)
	}
}

func TestGetUsage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/v1/usage" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"daily":{"tokens":100,"cost_usd":0.002},"monthly":{"tokens":900,"cost_usd":0.018}}`))
	}))
	defer srv.Close()

	c, _ := New(srv.URL)
	res, err := c.GetUsage(context.Background())
	if err != nil {
		t.Fatalf("GetUsage() error = %v", err)
	}
	if res.Daily.Tokens != 100 || res.Monthly.Tokens != 900 {
		t.Errorf("report = %+v", res)
	}
}
