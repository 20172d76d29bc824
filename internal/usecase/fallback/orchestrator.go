// Package fallback runs an operation against an ordered pair of tiers:
// one primary attempt, then one secondary attempt with identical input.
// It replaces nested error handling with a flat, inspectable attempt list.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/llmgate/internal/domain"
	"github.com/kailas-cloud/llmgate/internal/metrics"
)

// Tier is one execution strategy: a named operation with its own deadline.
// Run must honor ctx and must not share mutable state with other tiers.
type Tier[T any] struct {
	Name    string
	Timeout time.Duration
	Run     func(ctx context.Context) (T, error)
}

// AttemptRecord describes one tier attempt. Observability only; callers must
// not branch on it.
type AttemptRecord struct {
	Tier      string
	Latency   time.Duration
	Succeeded bool
	Reason    string
}

// Orchestrator executes tier pairs. Stateless between invocations.
type Orchestrator struct {
	operation string
	logger    *zap.Logger
}

// New creates an orchestrator for the named operation (label in metrics and logs).
func New(operation string, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{operation: operation, logger: logger}
}

// Run executes primary, and on failure secondary, returning the first success.
// A primary failure emits a degradation signal before the secondary attempt.
// Client-caused upstream errors fail fast: retrying the same bad input on
// another tier cannot succeed. The error is non-nil only when no tier
// succeeded, and then wraps both tier errors plus domain.ErrAllTiersFailed.
func Run[T any](ctx context.Context, o *Orchestrator, primary, secondary Tier[T]) (T, []AttemptRecord, error) {
	var zero T
	records := make([]AttemptRecord, 0, 2)

	result, rec, err := attempt(ctx, primary)
	records = append(records, rec)
	if err == nil {
		return result, records, nil
	}

	if domain.IsClientCaused(err) {
		o.logger.Warn("Primary tier rejected request, not degrading",
			zap.String("operation", o.operation),
			zap.String("tier", primary.Name),
			zap.Error(err),
		)
		return zero, records, fmt.Errorf("%s: %w", primary.Name, err)
	}
	if ctx.Err() != nil {
		return zero, records, fmt.Errorf("%s: %w", primary.Name, ctx.Err())
	}

	o.logger.Warn("Primary tier failed, degrading to secondary",
		zap.String("operation", o.operation),
		zap.String("primary", primary.Name),
		zap.String("secondary", secondary.Name),
		zap.Error(err),
	)
	metrics.FallbackDegradationsTotal.WithLabelValues(o.operation, reason(err)).Inc()

	secResult, secRec, secErr := attempt(ctx, secondary)
	records = append(records, secRec)
	if secErr == nil {
		return secResult, records, nil
	}

	metrics.FallbackExhaustedTotal.WithLabelValues(o.operation).Inc()
	o.logger.Error("All tiers failed",
		zap.String("operation", o.operation),
		zap.NamedError("primary_error", err),
		zap.NamedError("secondary_error", secErr),
	)
	return zero, records, fmt.Errorf("%s: %w", o.operation,
		errors.Join(domain.ErrAllTiersFailed, err, secErr))
}

func attempt[T any](ctx context.Context, tier Tier[T]) (T, AttemptRecord, error) {
	attemptCtx := ctx
	if tier.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, tier.Timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := tier.Run(attemptCtx)
	rec := AttemptRecord{
		Tier:      tier.Name,
		Latency:   time.Since(start),
		Succeeded: err == nil,
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w: %s after %s", domain.ErrUpstreamTimeout, tier.Name, tier.Timeout)
		}
		rec.Reason = reason(err)
	}
	return result, rec, err
}

// reason buckets an error into a low-cardinality metrics label.
func reason(err error) string {
	switch {
	case errors.Is(err, domain.ErrUpstreamTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, domain.ErrUpstreamStatus):
		return "status"
	case errors.Is(err, domain.ErrBadUpstreamResponse):
		return "bad_response"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "other"
	}
}
