package embedbatch

import (
	"context"

	"github.com/kailas-cloud/llmgate/internal/domain"
)

// PrimaryEmbedder is the specialized bulk backend, usually wrapped by the cache.
type PrimaryEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}

// SecondaryEmbedder is the fallback provider: it must support both bulk calls
// and per-text calls for the rescue pass.
type SecondaryEmbedder interface {
	domain.Embedder
	domain.BatchEmbedder
}
