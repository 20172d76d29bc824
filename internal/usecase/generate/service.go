// Package generate runs non-streaming generation through the model
// fallback pair: one attempt on the primary model, one on the fallback.
package generate

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/llmgate/internal/domain"
	"github.com/kailas-cloud/llmgate/internal/domain/tokens"
	"github.com/kailas-cloud/llmgate/internal/transport/chat"
	"github.com/kailas-cloud/llmgate/internal/usecase/fallback"
)

// Config holds the model pair and the per-attempt timeout.
type Config struct {
	PrimaryModel  string
	FallbackModel string
	CallTimeout   time.Duration
}

// Params is one generation request.
type Params struct {
	Messages    []chat.Message
	Temperature float64
	MaxTokens   int
}

// Service coordinates non-streaming generation.
type Service struct {
	provider ChatProvider
	cfg      Config
	orch     *fallback.Orchestrator
}

// New creates a Service.
func New(provider ChatProvider, cfg Config, logger *zap.Logger) *Service {
	return &Service{
		provider: provider,
		cfg:      cfg,
		orch:     fallback.New("generate", logger),
	}
}

// Generate produces a completion, degrading to the fallback model when the
// primary model fails. Token usage lands in the request-scoped collector.
func (s *Service) Generate(ctx context.Context, p Params) (chat.GenerateResult, error) {
	if len(p.Messages) == 0 {
		return chat.GenerateResult{}, fmt.Errorf("%w: messages are required", domain.ErrInvalidRequest)
	}

	res, _, err := fallback.Run(ctx, s.orch,
		s.tier(s.cfg.PrimaryModel, p),
		s.tier(s.cfg.FallbackModel, p),
	)
	if err != nil {
		return chat.GenerateResult{}, err
	}

	if u := domain.UsageFromContext(ctx); u != nil {
		u.AddTokens(res.Usage.TotalTokens)
		if cost, costErr := tokens.EstimateCost(res.Usage.TotalTokens); costErr == nil {
			u.AddCost(cost.CostUSD)
		}
	}
	return res, nil
}

func (s *Service) tier(model string, p Params) fallback.Tier[chat.GenerateResult] {
	return fallback.Tier[chat.GenerateResult]{
		Name:    model,
		Timeout: s.cfg.CallTimeout,
		Run: func(ctx context.Context) (chat.GenerateResult, error) {
			return s.provider.Generate(ctx, chat.Request{
				Model:       model,
				Messages:    p.Messages,
				Temperature: p.Temperature,
				MaxTokens:   p.MaxTokens,
			})
		},
	}
}
