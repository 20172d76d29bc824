package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the llmgate API configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Cache     CacheConfig     `yaml:"cache"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"` // 0 = no write timeout, required for SSE
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// UpstreamConfig holds the chat provider settings.
type UpstreamConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	FallbackModel  string `yaml:"fallback_model"`
	CallTimeoutSec int    `yaml:"call_timeout_sec"`
}

// EmbeddingConfig holds the embedding tier settings.
type EmbeddingConfig struct {
	Primary           ProviderConfig `yaml:"primary"`
	Secondary         ProviderConfig `yaml:"secondary"`
	Dimensions        int            `yaml:"dimensions"`
	BatchSize         int            `yaml:"batch_size"`
	BatchTimeoutSec   int            `yaml:"batch_timeout_sec"`
	ItemTimeoutSec    int            `yaml:"item_timeout_sec"`
	InterBatchDelayMS int            `yaml:"inter_batch_delay_ms"` // -1 disables the delay
	ItemRetryDelayMS  int            `yaml:"item_retry_delay_ms"`  // -1 disables the delay
}

// ProviderConfig holds one embedding provider's settings.
type ProviderConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// CacheConfig holds embedding cache settings.
type CacheConfig struct {
	TTLSec int `yaml:"ttl_sec"` // -1 disables the cache
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Upstream.Model == "" {
		c.Upstream.Model = "deepseek-chat"
	}
	if c.Upstream.FallbackModel == "" {
		c.Upstream.FallbackModel = "deepseek-chat-lite"
	}
	if c.Upstream.CallTimeoutSec <= 0 {
		c.Upstream.CallTimeoutSec = 60
	}
	if c.Embedding.Primary.Model == "" {
		c.Embedding.Primary.Model = "baai/bge-m3"
	}
	if c.Embedding.Primary.TimeoutSec <= 0 {
		c.Embedding.Primary.TimeoutSec = 30
	}
	if c.Embedding.Secondary.Model == "" {
		c.Embedding.Secondary.Model = "text-embedding-3-small"
	}
	if c.Embedding.Secondary.TimeoutSec <= 0 {
		c.Embedding.Secondary.TimeoutSec = 30
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1024
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 50
	}
	if c.Embedding.BatchTimeoutSec <= 0 {
		c.Embedding.BatchTimeoutSec = 60
	}
	if c.Embedding.ItemTimeoutSec <= 0 {
		c.Embedding.ItemTimeoutSec = 10
	}
	if c.Embedding.InterBatchDelayMS == 0 {
		c.Embedding.InterBatchDelayMS = 500
	}
	if c.Embedding.ItemRetryDelayMS == 0 {
		c.Embedding.ItemRetryDelayMS = 300
	}
	if c.Cache.TTLSec == 0 {
		c.Cache.TTLSec = 3600
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("upstream.base_url is required")
	}
	if c.Embedding.Primary.BaseURL == "" {
		return fmt.Errorf("embedding.primary.base_url is required")
	}
	return nil
}

// CallTimeout returns the upstream per-call timeout as a duration.
func (u UpstreamConfig) CallTimeout() time.Duration {
	return time.Duration(u.CallTimeoutSec) * time.Second
}

// InterBatchDelay returns the delay between embedding batches.
func (e EmbeddingConfig) InterBatchDelay() time.Duration {
	return msDuration(e.InterBatchDelayMS)
}

// ItemRetryDelay returns the delay between per-item rescue attempts.
func (e EmbeddingConfig) ItemRetryDelay() time.Duration {
	return msDuration(e.ItemRetryDelayMS)
}

// TTL returns the cache TTL; zero means caching is disabled.
func (c CacheConfig) TTL() time.Duration {
	if c.TTLSec < 0 {
		return 0
	}
	return time.Duration(c.TTLSec) * time.Second
}

func msDuration(ms int) time.Duration {
	if ms < 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
