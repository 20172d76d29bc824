package domain

import "context"

type requestUsageKey struct{}

// RequestUsage collects token usage, cost and cache effectiveness for a single
// HTTP request. The handler puts a mutable pointer into the context before
// calling the service; the layers below write into it; the handler reads it
// for the response body and usage accounting.
type RequestUsage struct {
	TotalTokens int
	CostUSD     float64
	CacheHits   int
	CacheMisses int
	Used        bool // true if embedding was called, even on a cache hit with 0 tokens
}

// NewContextWithUsage returns a context with an embedded usage collector.
func NewContextWithUsage(ctx context.Context) (context.Context, *RequestUsage) {
	u := &RequestUsage{}
	return context.WithValue(ctx, requestUsageKey{}, u), u
}

// UsageFromContext extracts the usage collector from context. Returns nil if not set.
func UsageFromContext(ctx context.Context) *RequestUsage {
	u, _ := ctx.Value(requestUsageKey{}).(*RequestUsage)
	return u
}

// AddTokens records consumed tokens.
func (u *RequestUsage) AddTokens(n int) {
	if u != nil {
		u.TotalTokens += n
		u.Used = true
	}
}

// AddCost records provider-reported spend.
func (u *RequestUsage) AddCost(usd float64) {
	if u != nil {
		u.CostUSD += usd
	}
}

// AddCacheHits records embedding cache hits.
func (u *RequestUsage) AddCacheHits(n int) {
	if u != nil {
		u.CacheHits += n
	}
}

// AddCacheMisses records embedding cache misses.
func (u *RequestUsage) AddCacheMisses(n int) {
	if u != nil {
		u.CacheMisses += n
	}
}

// Stats converts the collected hit/miss counters into per-request cache stats.
// total is the number of input texts; a zero total yields a zero hit rate.
func (u *RequestUsage) Stats(total int) CacheStats {
	if u == nil {
		return CacheStats{}
	}
	s := CacheStats{Hits: u.CacheHits, Misses: u.CacheMisses}
	if total > 0 {
		s.HitRate = float64(u.CacheHits) / float64(total)
	}
	return s
}
