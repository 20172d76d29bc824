// Package usage persists cumulative token and cost counters in the KV store.
// Counters roll over per day and per month via key naming; expiry keeps dead
// periods from accumulating forever.
package usage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/llmgate/internal/db"
	"github.com/kailas-cloud/llmgate/internal/domain"
)

// Cost counters are stored as integer microdollars so INCRBY stays atomic.
const microPerUSD = 1e6

// store is the consumer interface for usage operations (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	IncrBy(ctx context.Context, key string, val int64) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// Report is a point-in-time view of the cumulative counters.
type Report struct {
	DailyTokens    int64   `json:"daily_tokens"`
	MonthlyTokens  int64   `json:"monthly_tokens"`
	DailyCostUSD   float64 `json:"daily_cost_usd"`
	MonthlyCostUSD float64 `json:"monthly_cost_usd"`
}

// Store implements usage accounting on top of the KV store (INCRBY + GET with TTL).
type Store struct {
	store    store
	dailyTTL time.Duration
	monthTTL time.Duration
}

// New creates a usage store.
// dailyTTL is the TTL for daily keys (recommended: 48h).
// monthTTL is the TTL for monthly keys (recommended: 62 days).
func New(s store, dailyTTL, monthTTL time.Duration) *Store {
	return &Store{
		store:    s,
		dailyTTL: dailyTTL,
		monthTTL: monthTTL,
	}
}

// Record adds tokens and cost to the current day and month counters.
func (s *Store) Record(ctx context.Context, now time.Time, tokens int64, costUSD float64) error {
	micro := int64(math.Round(costUSD * microPerUSD))

	for _, inc := range []struct {
		key string
		val int64
	}{
		{dailyKey("tokens", now), tokens},
		{monthlyKey("tokens", now), tokens},
		{dailyKey("cost_micro", now), micro},
		{monthlyKey("cost_micro", now), micro},
	} {
		if inc.val == 0 {
			continue
		}
		if err := s.incrBy(ctx, inc.key, inc.val); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot reads the current day and month counters. Missing keys read as zero.
func (s *Store) Snapshot(ctx context.Context, now time.Time) (Report, error) {
	dailyTokens, err := s.get(ctx, dailyKey("tokens", now))
	if err != nil {
		return Report{}, err
	}
	monthTokens, err := s.get(ctx, monthlyKey("tokens", now))
	if err != nil {
		return Report{}, err
	}
	dailyCost, err := s.get(ctx, dailyKey("cost_micro", now))
	if err != nil {
		return Report{}, err
	}
	monthCost, err := s.get(ctx, monthlyKey("cost_micro", now))
	if err != nil {
		return Report{}, err
	}

	return Report{
		DailyTokens:    dailyTokens,
		MonthlyTokens:  monthTokens,
		DailyCostUSD:   float64(dailyCost) / microPerUSD,
		MonthlyCostUSD: float64(monthCost) / microPerUSD,
	}, nil
}

func (s *Store) incrBy(ctx context.Context, key string, val int64) error {
	if err := s.store.IncrBy(ctx, key, val); err != nil {
		return fmt.Errorf("usage INCRBY %s: %w", key, err)
	}

	// Set TTL only if the key has no expiry yet (NX, not reset on repeat).
	if err := s.store.Expire(ctx, key, s.ttlForKey(key), true); err != nil {
		return fmt.Errorf("usage EXPIRE %s: %w", key, err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string) (int64, error) {
	data, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("usage GET %s: %w", key, err)
	}

	val, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("usage GET %s parse: %w", key, err)
	}
	return val, nil
}

// ttlForKey determines TTL based on the key format (daily vs monthly).
func (s *Store) ttlForKey(key string) time.Duration {
	if strings.Contains(key, ":daily:") {
		return s.dailyTTL
	}
	return s.monthTTL
}

func dailyKey(kind string, now time.Time) string {
	return fmt.Sprintf("%susage:%s:daily:%s", domain.KeyPrefix, kind, now.UTC().Format("2006-01-02"))
}

func monthlyKey(kind string, now time.Time) string {
	return fmt.Sprintf("%susage:%s:monthly:%s", domain.KeyPrefix, kind, now.UTC().Format("2006-01"))
}
