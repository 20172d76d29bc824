// Package tokens counts tokens and estimates spend for embedding and
// generation requests. Counting prefers an exact BPE tokenizer and degrades
// to a deterministic length-based estimate when the encoding is unavailable
// (offline environments, first run without the BPE cache).
package tokens

import (
	"fmt"
	"math"

	"github.com/pkoukk/tiktoken-go"
)

const (
	encodingName = "cl100k_base"

	// estimateBytesPerToken backs the fallback estimate: ceil(len/4).
	estimateBytesPerToken = 4

	// usdPerMillionTokens is the fixed embedding rate used for cost estimates.
	usdPerMillionTokens = 0.02

	// cnyPerUSD is a fixed conversion constant, not a live exchange rate.
	cnyPerUSD = 7.2
)

// Counter converts text to a token count. Safe for concurrent use.
type Counter struct {
	enc *tiktoken.Tiktoken
}

// NewCounter builds a counter backed by the cl100k_base encoding. When the
// encoding cannot be loaded the counter still works in estimate mode.
func NewCounter() *Counter {
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return &Counter{}
	}
	return &Counter{enc: enc}
}

// Exact reports whether counts come from the real tokenizer.
func (c *Counter) Exact() bool { return c.enc != nil }

// Count returns the token count of text. Exact when the tokenizer loaded,
// ceil(len/4) otherwise. Empty text counts as zero either way.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	if c.enc != nil {
		return len(c.enc.Encode(text, nil, nil))
	}
	return (len(text) + estimateBytesPerToken - 1) / estimateBytesPerToken
}

// CountAll returns the summed token count of texts.
func (c *Counter) CountAll(texts []string) int {
	var total int
	for _, t := range texts {
		total += c.Count(t)
	}
	return total
}

// Cost is a token count priced in both billing currencies.
type Cost struct {
	Tokens  int     `json:"tokens"`
	CostUSD float64 `json:"cost_usd"`
	CostCNY float64 `json:"cost_cny"`
}

// EstimateCost prices a token count at the fixed per-million rate.
// Negative counts are rejected.
func EstimateCost(tokenCount int) (Cost, error) {
	if tokenCount < 0 {
		return Cost{}, fmt.Errorf("estimate cost: negative token count %d", tokenCount)
	}
	usd := float64(tokenCount) / 1e6 * usdPerMillionTokens
	return Cost{
		Tokens:  tokenCount,
		CostUSD: roundMicro(usd),
		CostCNY: roundMicro(usd * cnyPerUSD),
	}, nil
}

// roundMicro keeps six decimal places so JSON output stays stable across runs.
func roundMicro(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
