package embedbatch

import (
	"context"
	"sync"

	"github.com/kailas-cloud/llmgate/internal/domain"
)

// mockBulkEmbedder scripts BatchEmbed replies per call.
type mockBulkEmbedder struct {
	mu      sync.Mutex
	calls   [][]string
	results []bulkReply
}

type bulkReply struct {
	res domain.BatchEmbeddingResult
	err error
}

func (m *mockBulkEmbedder) BatchEmbed(_ context.Context, texts []string) (domain.BatchEmbeddingResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, append([]string(nil), texts...))
	if len(m.results) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}
	r := m.results[0]
	m.results = m.results[1:]
	return r.res, r.err
}

func (m *mockBulkEmbedder) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// mockSecondary implements both the bulk and the per-text contract.
type mockSecondary struct {
	mockBulkEmbedder

	singleMu    sync.Mutex
	singleCalls []string
	single      func(text string) (domain.EmbeddingResult, error)
}

func (m *mockSecondary) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.singleMu.Lock()
	m.singleCalls = append(m.singleCalls, text)
	m.singleMu.Unlock()
	if m.single == nil {
		return domain.EmbeddingResult{Embedding: []float32{1}}, nil
	}
	return m.single(text)
}

// vec builds a recognizable embedding for assertions.
func vec(vals ...float32) []float32 { return vals }

func bulkOK(tokens int, embeddings ...[]float32) bulkReply {
	return bulkReply{res: domain.BatchEmbeddingResult{
		Embeddings:  embeddings,
		TotalTokens: tokens,
	}}
}

func bulkFail(err error) bulkReply { return bulkReply{err: err} }
