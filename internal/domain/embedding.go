package domain

import (
	"context"
	"fmt"
)

// Embedder is the shared text vectorization contract between layers.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// BatchEmbedder vectorizes multiple texts in a single API call.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (BatchEmbeddingResult, error)
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries the embedding vector and token usage through the decorator chain.
type EmbeddingResult struct {
	Embedding   []float32
	TotalTokens int
	// CostUSD is the provider-reported cost when present, 0 otherwise. Best effort.
	CostUSD float64
}

// BatchEmbeddingResult carries multiple embedding vectors and aggregate token usage.
// Embeddings[i] always corresponds to texts[i] of the call that produced it.
type BatchEmbeddingResult struct {
	Embeddings  [][]float32
	TotalTokens int
	CostUSD     float64
}

// CacheStats summarizes embedding cache effectiveness for one request.
type CacheStats struct {
	Hits    int     `json:"hits"`
	Misses  int     `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// BatchResult is the outcome of a full batch-embedding run: one vector per
// input text, aggregate usage, and how many positions had to be zero-filled.
type BatchResult struct {
	Vectors     [][]float32
	TotalTokens int
	CostUSD     float64
	ZeroFilled  int
	CacheStats  *CacheStats
}

// BatchFallback calls Embed once per text. Safety net for providers without
// a native batch endpoint.
func BatchFallback(ctx context.Context, e Embedder, texts []string) (BatchEmbeddingResult, error) {
	embeddings := make([][]float32, len(texts))
	var totalTokens int
	var cost float64

	for i, text := range texts {
		res, err := e.Embed(ctx, text)
		if err != nil {
			return BatchEmbeddingResult{}, fmt.Errorf("fallback embed [%d]: %w", i, err)
		}
		embeddings[i] = res.Embedding
		totalTokens += res.TotalTokens
		cost += res.CostUSD
	}

	return BatchEmbeddingResult{
		Embeddings:  embeddings,
		TotalTokens: totalTokens,
		CostUSD:     cost,
	}, nil
}

// ZeroVector returns an all-zero embedding of the given dimension. Used as a
// positional placeholder when every tier failed for a single text.
func ZeroVector(dim int) []float32 {
	return make([]float32, dim)
}
