package usage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/llmgate/internal/domain"
)

// PeriodTotals is the token and spend total for one accounting period.
type PeriodTotals struct {
	Tokens  int64   `json:"tokens"`
	CostUSD float64 `json:"cost_usd"`
}

// Report is the usage report returned to API clients.
type Report struct {
	GeneratedAt time.Time    `json:"generated_at"`
	Daily       PeriodTotals `json:"daily"`
	Monthly     PeriodTotals `json:"monthly"`
}

// Service handles usage accounting and reporting.
type Service struct {
	store CounterStore
	log   *zap.Logger
	now   func() time.Time
}

// New creates a Service. store can be nil (accounting disabled).
func New(store CounterStore, log *zap.Logger) *Service {
	return &Service{store: store, log: log, now: time.Now}
}

// Record persists the usage collected for a single request. Best-effort:
// counter failures are logged and never fail the request that produced them.
func (s *Service) Record(ctx context.Context, u *domain.RequestUsage) {
	if s.store == nil || u == nil || !u.Used {
		return
	}
	if err := s.store.Record(ctx, s.now(), int64(u.TotalTokens), u.CostUSD); err != nil {
		s.log.Warn("usage accounting failed",
			zap.Int("tokens", u.TotalTokens),
			zap.Float64("cost_usd", u.CostUSD),
			zap.Error(err))
	}
}

// GetReport builds the current usage report.
func (s *Service) GetReport(ctx context.Context) (Report, error) {
	now := s.now().UTC()
	report := Report{GeneratedAt: now}
	if s.store == nil {
		return report, nil
	}

	snap, err := s.store.Snapshot(ctx, now)
	if err != nil {
		return Report{}, err
	}

	report.Daily = PeriodTotals{Tokens: snap.DailyTokens, CostUSD: snap.DailyCostUSD}
	report.Monthly = PeriodTotals{Tokens: snap.MonthlyTokens, CostUSD: snap.MonthlyCostUSD}
	return report, nil
}
