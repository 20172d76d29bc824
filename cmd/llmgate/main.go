package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/llmgate/internal/config"
	dbRedis "github.com/kailas-cloud/llmgate/internal/db/redis"
	"github.com/kailas-cloud/llmgate/internal/domain"
	"github.com/kailas-cloud/llmgate/internal/domain/tokens"
	logpkg "github.com/kailas-cloud/llmgate/internal/logger"
	"github.com/kailas-cloud/llmgate/internal/metrics"
	"github.com/kailas-cloud/llmgate/internal/repository/embcache"
	usagerepo "github.com/kailas-cloud/llmgate/internal/repository/usage"
	"github.com/kailas-cloud/llmgate/internal/transport/bge"
	"github.com/kailas-cloud/llmgate/internal/transport/chat"
	chiTransport "github.com/kailas-cloud/llmgate/internal/transport/chi"
	openaiEmb "github.com/kailas-cloud/llmgate/internal/transport/openai"
	embedbatchuc "github.com/kailas-cloud/llmgate/internal/usecase/embedbatch"
	generateuc "github.com/kailas-cloud/llmgate/internal/usecase/generate"
	healthuc "github.com/kailas-cloud/llmgate/internal/usecase/health"
	usageuc "github.com/kailas-cloud/llmgate/internal/usecase/usage"
	"github.com/kailas-cloud/llmgate/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting llmgate API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterStreamMetrics()

	// Embedding tiers, assembled in the composition root
	primary := buildPrimaryEmbedder(cfg, store, logger)
	secondary := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:     cfg.Embedding.Secondary.APIKey,
		BaseURL:    cfg.Embedding.Secondary.BaseURL,
		Model:      cfg.Embedding.Secondary.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   "openai",
		Logger:     logger,
	})
	logger.Info("Embedders created",
		zap.String("primary_model", cfg.Embedding.Primary.Model),
		zap.String("secondary_model", cfg.Embedding.Secondary.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	batchSvc := embedbatchuc.New(primary, secondary, embedbatchuc.Config{
		BatchSize:       cfg.Embedding.BatchSize,
		Dimensions:      cfg.Embedding.Dimensions,
		BatchTimeout:    time.Duration(cfg.Embedding.BatchTimeoutSec) * time.Second,
		ItemTimeout:     time.Duration(cfg.Embedding.ItemTimeoutSec) * time.Second,
		InterBatchDelay: cfg.Embedding.InterBatchDelay(),
		ItemRetryDelay:  cfg.Embedding.ItemRetryDelay(),
	}, logger)

	// Upstream chat provider
	chatClient := chat.NewClient(&chat.Config{
		BaseURL:     cfg.Upstream.BaseURL,
		APIKey:      cfg.Upstream.APIKey,
		CallTimeout: cfg.Upstream.CallTimeout(),
		Logger:      logger,
	})
	generateSvc := generateuc.New(chatClient, generateuc.Config{
		PrimaryModel:  cfg.Upstream.Model,
		FallbackModel: cfg.Upstream.FallbackModel,
		CallTimeout:   cfg.Upstream.CallTimeout(),
	}, logger)

	// Usage accounting
	usageStore := usagerepo.New(store, 48*time.Hour, 62*24*time.Hour)
	usageSvc := usageuc.New(usageStore, logger)

	// Health service
	healthSvc := healthuc.New(store, newEmbeddingHealthChecker(primary), chatClient)

	counter := tokens.NewCounter()
	if !counter.Exact() {
		logger.Warn("Tokenizer unavailable, falling back to length estimate")
	}

	server := chiTransport.NewServer(chatClient, generateSvc, batchSvc, counter, usageSvc, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     r,
		ReadTimeout: time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		// WriteTimeout stays at the configured value; zero keeps streams open.
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildPrimaryEmbedder assembles the primary tier: bulk backend, optionally
// wrapped by the KV-backed cache.
func buildPrimaryEmbedder(cfg config.Config, store *dbRedis.Store, logger *zap.Logger) embedbatchuc.PrimaryEmbedder {
	base := bge.NewClient(&bge.Config{
		BaseURL: cfg.Embedding.Primary.BaseURL,
		APIKey:  cfg.Embedding.Primary.APIKey,
		Model:   cfg.Embedding.Primary.Model,
		Timeout: time.Duration(cfg.Embedding.Primary.TimeoutSec) * time.Second,
		Logger:  logger,
	})

	ttl := cfg.Cache.TTL()
	if ttl == 0 {
		return base
	}
	return embcache.New(base, store, ttl, metrics.EmbeddingCacheTotal, logger)
}

// embeddingHealthChecker reports primary tier reachability when the wired
// embedder exposes a health check.
type embeddingHealthChecker struct {
	embedder embedbatchuc.PrimaryEmbedder
}

func newEmbeddingHealthChecker(embedder embedbatchuc.PrimaryEmbedder) *embeddingHealthChecker {
	return &embeddingHealthChecker{embedder: embedder}
}

func (h *embeddingHealthChecker) HealthCheck(ctx context.Context) error {
	if hc, ok := h.embedder.(domain.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			return fmt.Errorf("embedding health check: %w", err)
		}
	}
	return nil
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
