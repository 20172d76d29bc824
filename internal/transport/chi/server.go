package chi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/llmgate/internal/domain"
	"github.com/kailas-cloud/llmgate/internal/domain/tokens"
	"github.com/kailas-cloud/llmgate/internal/logger"
	"github.com/kailas-cloud/llmgate/internal/sse"
	"github.com/kailas-cloud/llmgate/internal/transport/chat"
	generateuc "github.com/kailas-cloud/llmgate/internal/usecase/generate"
	healthuc "github.com/kailas-cloud/llmgate/internal/usecase/health"
	relayuc "github.com/kailas-cloud/llmgate/internal/usecase/relay"
)

const maxEmbedTexts = 1000

// errorCode is the machine-readable error discriminator in error responses.
type errorCode string

const (
	codeBadRequest        errorCode = "bad_request"
	codeValidationFailed  errorCode = "validation_failed"
	codeRateLimited       errorCode = "rate_limited"
	codeUpstreamTimeout   errorCode = "upstream_timeout"
	codeUpstreamError     errorCode = "upstream_error"
	codeEmbeddingProvider errorCode = "embedding_provider_error"
	codeAllTiersFailed    errorCode = "all_tiers_failed"
	codeInternalError     errorCode = "internal_error"
)

type errorResponse struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server is the HTTP API of the gateway.
type Server struct {
	streams       StreamOpener
	generate      Generator
	batch         BatchProcessor
	counter       TokenCounter
	usage         UsageService
	health        HealthService
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	streams StreamOpener,
	generate Generator,
	batch BatchProcessor,
	counter TokenCounter,
	usage UsageService,
	health HealthService,
	logger *zap.Logger,
) *Server {
	s := &Server{
		streams:  streams,
		generate: generate,
		batch:    batch,
		counter:  counter,
		usage:    usage,
		health:   health,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrAllTiersFailed, http.StatusBadGateway, codeAllTiersFailed),
		sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, codeRateLimited),
		upstreamStatusHandler,
		sentinelHandler(domain.ErrUpstreamTimeout, http.StatusGatewayTimeout, codeUpstreamTimeout),
		sentinelHandler(domain.ErrBadUpstreamResponse, http.StatusBadGateway, codeUpstreamError),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeEmbeddingProvider),
	}
	return s
}

// Routes mounts all API routes on the router.
func (s *Server) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/generate/stream", s.GenerateStream)
		r.Post("/generate", s.Generate)
		r.Post("/search/stream", s.SearchStream)
		r.Post("/embed", s.Embed)
		r.Post("/tokens/count", s.CountTokens)
		r.Get("/usage", s.GetUsage)
	})
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

type generateRequest struct {
	Model       string         `json:"model,omitempty"`
	Messages    []chat.Message `json:"messages"`
	Temperature float64        `json:"temperature,omitempty"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
}

// GenerateStream handles POST /api/v1/generate/stream.
func (s *Server) GenerateStream(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "messages are required")
		return
	}

	upstream, err := s.streams.OpenGenerateStream(r.Context(), chat.Request{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	defer func() { _ = upstream.Close() }()

	s.relayStream(w, r, false, upstream)
}

type searchStreamRequest struct {
	Query string `json:"query"`
	Model string `json:"model,omitempty"`
}

// SearchStream handles POST /api/v1/search/stream.
func (s *Server) SearchStream(w http.ResponseWriter, r *http.Request) {
	var req searchStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "query is required")
		return
	}

	upstream, err := s.streams.OpenSearchStream(r.Context(), chat.Request{
		Model: req.Model,
		Query: req.Query,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	defer func() { _ = upstream.Close() }()

	s.relayStream(w, r, true, upstream)
}

// relayStream pipes one upstream SSE stream to the client through a fresh
// normalizer. Once the SSE headers are out, failures surface as a single
// error frame, never as a late status code.
func (s *Server) relayStream(w http.ResponseWriter, r *http.Request, searchMode bool, upstream io.Reader) {
	sw, err := sse.NewWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, codeInternalError, "streaming unsupported")
		return
	}
	defer sw.Close()

	// Request-scoped logger so stream log lines carry the request id.
	log := logger.FromContext(r.Context())

	norm := relayuc.New(searchMode, log)
	summary, relayErr := norm.Relay(r.Context(), upstream, &writerSink{w: sw})
	if relayErr != nil {
		log.Warn("upstream stream failed", zap.Error(relayErr))
		sw.Send(eventFrame{Type: "error", Error: "upstream connection lost"})
		return
	}

	switch summary.Outcome {
	case relayuc.OutcomeDone, relayuc.OutcomeUpstreamEnd:
		sw.SendDone()
	case relayuc.OutcomeUpstreamError:
		// Error frame already reached the client via the sink.
	case relayuc.OutcomeCanceled:
		// Client is gone; nothing left to write.
	}

	log.Debug("stream finished",
		zap.String("outcome", string(summary.Outcome)),
		zap.Int("events", summary.Events),
		zap.Int("content_bytes", len(summary.Content)))
}

// Generate handles POST /api/v1/generate.
func (s *Server) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	res, err := s.generate.Generate(ctx, generateuc.Params{
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	s.usage.Record(ctx, usage)
	setUsageHeaders(w, usage)
	writeJSON(w, http.StatusOK, res)
}

type embedRequest struct {
	Texts []string `json:"texts"`
}

type embedItem struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
	Dimension int       `json:"dimension"`
}

type embedUsage struct {
	TotalTokens int     `json:"total_tokens"`
	CostUSD     float64 `json:"cost_usd"`
}

type embedResponse struct {
	Data       []embedItem        `json:"data"`
	Usage      embedUsage         `json:"usage"`
	CacheStats *domain.CacheStats `json:"cache_stats,omitempty"`
	ZeroFilled int                `json:"zero_filled,omitempty"`
}

// Embed handles POST /api/v1/embed.
func (s *Server) Embed(w http.ResponseWriter, r *http.Request) {
	var req embedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Texts) == 0 || len(req.Texts) > maxEmbedTexts {
		writeError(w, http.StatusBadRequest, codeValidationFailed,
			"texts count must be between 1 and "+strconv.Itoa(maxEmbedTexts))
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	result, err := s.batch.Process(ctx, req.Texts)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	s.usage.Record(ctx, usage)
	setUsageHeaders(w, usage)

	data := make([]embedItem, len(result.Vectors))
	for i, vec := range result.Vectors {
		data[i] = embedItem{Index: i, Embedding: vec, Dimension: len(vec)}
	}
	writeJSON(w, http.StatusOK, embedResponse{
		Data:       data,
		Usage:      embedUsage{TotalTokens: result.TotalTokens, CostUSD: result.CostUSD},
		CacheStats: result.CacheStats,
		ZeroFilled: result.ZeroFilled,
	})
}

type countRequest struct {
	Text string `json:"text"`
}

type countResponse struct {
	Tokens  int     `json:"tokens"`
	CostUSD float64 `json:"cost_usd"`
	CostCNY float64 `json:"cost_cny"`
	Exact   bool    `json:"exact"`
}

// CountTokens handles POST /api/v1/tokens/count.
func (s *Server) CountTokens(w http.ResponseWriter, r *http.Request) {
	var req countRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	count := s.counter.Count(req.Text)
	cost, err := tokens.EstimateCost(count)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, countResponse{
		Tokens:  cost.Tokens,
		CostUSD: cost.CostUSD,
		CostCNY: cost.CostCNY,
		Exact:   s.counter.Exact(),
	})
}

// GetUsage handles GET /api/v1/usage.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	report, err := s.usage.GetReport(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func setUsageHeaders(w http.ResponseWriter, usage *domain.RequestUsage) {
	if usage != nil && usage.Used {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(usage.TotalTokens))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidRequest,
		domain.ErrRateLimited,
		domain.ErrUpstreamTimeout,
		domain.ErrUpstreamStatus,
		domain.ErrBadUpstreamResponse,
		domain.ErrEmbeddingProviderError,
		domain.ErrAllTiersFailed,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code errorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// upstreamStatusHandler maps a carried upstream status onto the response:
// client-caused statuses come back as 400, everything else as 502.
func upstreamStatusHandler(w http.ResponseWriter, err error, msg string) bool {
	var use *domain.UpstreamStatusError
	if !errors.As(err, &use) {
		return false
	}
	if domain.IsClientCaused(err) {
		writeError(w, http.StatusBadRequest, codeBadRequest, msg)
		return true
	}
	writeError(w, http.StatusBadGateway, codeUpstreamError, msg)
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
