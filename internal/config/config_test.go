package config

import (
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		HTTP:     HTTPConfig{Port: 8080},
		Database: DatabaseConfig{Addrs: []string{"localhost:6379"}},
		Upstream: UpstreamConfig{BaseURL: "http://llm.internal:8000/api"},
		Embedding: EmbeddingConfig{
			Primary: ProviderConfig{BaseURL: "http://bge.internal:9000"},
		},
	}
}

func TestValidate_Valid(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_MissingDatabaseAddrs(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Addrs = nil

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing database addrs")
	}
}

func TestValidate_MissingUpstreamBaseURL(t *testing.T) {
	cfg := validConfig()
	cfg.Upstream.BaseURL = ""

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing upstream base_url")
	}
}

func TestValidate_MissingPrimaryEmbeddingBaseURL(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.Primary.BaseURL = ""

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing embedding.primary.base_url")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 0 {
		t.Errorf("expected WriteTimeoutSec=0 (streaming), got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.HTTP.ShutdownSec != 10 {
		t.Errorf("expected ShutdownSec=10, got %d", cfg.HTTP.ShutdownSec)
	}
	if cfg.Database.ReadinessTimeout != 10 {
		t.Errorf("expected ReadinessTimeout=10, got %d", cfg.Database.ReadinessTimeout)
	}
	if cfg.Upstream.Model != "deepseek-chat" {
		t.Errorf("expected Model=deepseek-chat, got %q", cfg.Upstream.Model)
	}
	if cfg.Upstream.FallbackModel != "deepseek-chat-lite" {
		t.Errorf("expected FallbackModel=deepseek-chat-lite, got %q", cfg.Upstream.FallbackModel)
	}
	if cfg.Upstream.CallTimeoutSec != 60 {
		t.Errorf("expected CallTimeoutSec=60, got %d", cfg.Upstream.CallTimeoutSec)
	}
	if cfg.Embedding.Primary.Model != "baai/bge-m3" {
		t.Errorf("expected primary model baai/bge-m3, got %q", cfg.Embedding.Primary.Model)
	}
	if cfg.Embedding.Dimensions != 1024 {
		t.Errorf("expected Dimensions=1024, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Embedding.BatchSize != 50 {
		t.Errorf("expected BatchSize=50, got %d", cfg.Embedding.BatchSize)
	}
	if cfg.Embedding.InterBatchDelayMS != 500 {
		t.Errorf("expected InterBatchDelayMS=500, got %d", cfg.Embedding.InterBatchDelayMS)
	}
	if cfg.Embedding.ItemRetryDelayMS != 300 {
		t.Errorf("expected ItemRetryDelayMS=300, got %d", cfg.Embedding.ItemRetryDelayMS)
	}
	if cfg.Cache.TTLSec != 3600 {
		t.Errorf("expected TTLSec=3600, got %d", cfg.Cache.TTLSec)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:     HTTPConfig{ReadTimeoutSec: 30, ShutdownSec: 5},
		Database: DatabaseConfig{ReadinessTimeout: 15},
		Upstream: UpstreamConfig{Model: "custom-model", CallTimeoutSec: 120},
		Embedding: EmbeddingConfig{
			BatchSize:         10,
			InterBatchDelayMS: -1,
			ItemRetryDelayMS:  -1,
		},
		Cache: CacheConfig{TTLSec: -1},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 30 {
		t.Errorf("expected ReadTimeoutSec=30, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.Upstream.Model != "custom-model" {
		t.Errorf("expected Model=custom-model, got %q", cfg.Upstream.Model)
	}
	if cfg.Embedding.BatchSize != 10 {
		t.Errorf("expected BatchSize=10, got %d", cfg.Embedding.BatchSize)
	}
	if cfg.Embedding.InterBatchDelay() != 0 {
		t.Errorf("expected disabled inter-batch delay, got %v", cfg.Embedding.InterBatchDelay())
	}
	if cfg.Cache.TTL() != 0 {
		t.Errorf("expected disabled cache, got %v", cfg.Cache.TTL())
	}
}

func TestDurationHelpers(t *testing.T) {
	u := UpstreamConfig{CallTimeoutSec: 60}
	if u.CallTimeout() != 60*time.Second {
		t.Errorf("CallTimeout() = %v, want 60s", u.CallTimeout())
	}

	e := EmbeddingConfig{InterBatchDelayMS: 500, ItemRetryDelayMS: 300}
	if e.InterBatchDelay() != 500*time.Millisecond {
		t.Errorf("InterBatchDelay() = %v, want 500ms", e.InterBatchDelay())
	}
	if e.ItemRetryDelay() != 300*time.Millisecond {
		t.Errorf("ItemRetryDelay() = %v, want 300ms", e.ItemRetryDelay())
	}

	c := CacheConfig{TTLSec: 3600}
	if c.TTL() != time.Hour {
		t.Errorf("TTL() = %v, want 1h", c.TTL())
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("LLMGATE_TEST_KEY", "secret")

	in := []byte("api_key: ${LLMGATE_TEST_KEY}\nbase_url: ${LLMGATE_TEST_URL:-http://localhost:9000}\n")
	out := string(expandEnvVars(in))

	if out != "api_key: secret\nbase_url: http://localhost:9000\n" {
		t.Errorf("unexpected expansion: %q", out)
	}
}
