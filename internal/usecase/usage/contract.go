package usage

import (
	"context"
	"time"

	repo "github.com/kailas-cloud/llmgate/internal/repository/usage"
)

// CounterStore persists and reads cumulative usage counters.
type CounterStore interface {
	Record(ctx context.Context, now time.Time, tokens int64, costUSD float64) error
	Snapshot(ctx context.Context, now time.Time) (repo.Report, error)
}
