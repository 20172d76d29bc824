// Package embedbatch turns an arbitrary list of texts into an equally long
// list of vectors. Texts are processed in contiguous batches; each batch goes
// through the primary/secondary tier pair, and a batch where both bulk tiers
// fail is rescued text by text. A text that fails every tier gets a zero
// vector so output positions always line up with input positions.
package embedbatch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/llmgate/internal/domain"
	"github.com/kailas-cloud/llmgate/internal/metrics"
	"github.com/kailas-cloud/llmgate/internal/usecase/fallback"
)

// Config holds the immutable batch-processing parameters. Built once at
// startup from the service configuration.
type Config struct {
	BatchSize       int
	Dimensions      int
	BatchTimeout    time.Duration
	ItemTimeout     time.Duration
	InterBatchDelay time.Duration
	ItemRetryDelay  time.Duration
}

// Service is the batch processor. Stateless between calls.
type Service struct {
	primary   PrimaryEmbedder
	secondary SecondaryEmbedder
	orch      *fallback.Orchestrator
	cfg       Config
	logger    *zap.Logger
}

// New creates a batch processor.
func New(primary PrimaryEmbedder, secondary SecondaryEmbedder, cfg Config, logger *zap.Logger) *Service {
	return &Service{
		primary:   primary,
		secondary: secondary,
		orch:      fallback.New("batch_embed", logger),
		cfg:       cfg,
		logger:    logger,
	}
}

// Process embeds all texts, preserving input order and length. The returned
// result always satisfies len(Vectors) == len(texts); the error is non-nil
// only for cancellation or an internal alignment failure, never for
// individual text failures (those become zero vectors).
func (s *Service) Process(ctx context.Context, texts []string) (domain.BatchResult, error) {
	if len(texts) == 0 {
		return domain.BatchResult{Vectors: [][]float32{}}, nil
	}

	result := domain.BatchResult{Vectors: make([][]float32, 0, len(texts))}
	total := (len(texts) + s.cfg.BatchSize - 1) / s.cfg.BatchSize

	for offset := 0; offset < len(texts); offset += s.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return domain.BatchResult{}, fmt.Errorf("batch embed canceled: %w", err)
		}

		end := offset + s.cfg.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[offset:end]
		batchNum := offset/s.cfg.BatchSize + 1

		vectors, err := s.processBatch(ctx, batch, &result)
		if err != nil {
			return domain.BatchResult{}, err
		}
		result.Vectors = append(result.Vectors, vectors...)

		s.logger.Debug("Batch processed",
			zap.Int("batch", batchNum),
			zap.Int("total_batches", total),
			zap.Int("batch_size", len(batch)),
			zap.Int("zero_filled", result.ZeroFilled),
		)

		if end < len(texts) && s.cfg.InterBatchDelay > 0 {
			if err := sleep(ctx, s.cfg.InterBatchDelay); err != nil {
				return domain.BatchResult{}, fmt.Errorf("batch embed canceled: %w", err)
			}
		}
	}

	if len(result.Vectors) != len(texts) {
		return domain.BatchResult{}, fmt.Errorf(
			"%w: %d vectors for %d texts", domain.ErrPositionalIntegrity,
			len(result.Vectors), len(texts))
	}

	if u := domain.UsageFromContext(ctx); u != nil {
		u.AddTokens(result.TotalTokens)
		u.AddCost(result.CostUSD)
		stats := u.Stats(len(texts))
		result.CacheStats = &stats
	}

	return result, nil
}

// processBatch runs one batch through the tier pair, falling back to per-item
// rescue when both bulk tiers fail. It always returns len(batch) vectors.
func (s *Service) processBatch(
	ctx context.Context, batch []string, acc *domain.BatchResult,
) ([][]float32, error) {
	primaryTier := fallback.Tier[domain.BatchEmbeddingResult]{
		Name:    "primary_bulk",
		Timeout: s.cfg.BatchTimeout,
		Run: func(ctx context.Context) (domain.BatchEmbeddingResult, error) {
			return s.batchEmbedChecked(ctx, s.primary.BatchEmbed, batch)
		},
	}
	secondaryTier := fallback.Tier[domain.BatchEmbeddingResult]{
		Name:    "secondary_bulk",
		Timeout: s.cfg.BatchTimeout,
		Run: func(ctx context.Context) (domain.BatchEmbeddingResult, error) {
			return s.batchEmbedChecked(ctx, s.secondary.BatchEmbed, batch)
		},
	}

	res, _, err := fallback.Run(ctx, s.orch, primaryTier, secondaryTier)
	if err == nil {
		acc.TotalTokens += res.TotalTokens
		acc.CostUSD += res.CostUSD
		return res.Embeddings, nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("batch embed canceled: %w", ctx.Err())
	}

	s.logger.Warn("Both bulk tiers failed, rescuing per item",
		zap.Int("batch_size", len(batch)), zap.Error(err))
	return s.rescueItems(ctx, batch, acc)
}

type batchEmbedFunc func(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)

// batchEmbedChecked enforces the alignment contract on a bulk tier: a reply
// with the wrong vector count is a tier failure, not data to pass along.
func (s *Service) batchEmbedChecked(
	ctx context.Context, embed batchEmbedFunc, batch []string,
) (domain.BatchEmbeddingResult, error) {
	res, err := embed(ctx, batch)
	if err != nil {
		return domain.BatchEmbeddingResult{}, err
	}
	if len(res.Embeddings) != len(batch) {
		return domain.BatchEmbeddingResult{}, fmt.Errorf(
			"%w: %d embeddings for %d texts",
			domain.ErrBadUpstreamResponse, len(res.Embeddings), len(batch))
	}
	return res, nil
}

// rescueItems embeds each text of a failed batch individually against the
// secondary tier. Texts that still fail get a zero vector in their position.
func (s *Service) rescueItems(
	ctx context.Context, batch []string, acc *domain.BatchResult,
) ([][]float32, error) {
	vectors := make([][]float32, len(batch))

	for i, text := range batch {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("item rescue canceled: %w", err)
		}

		res, err := s.rescueOne(ctx, text)
		if err != nil {
			s.logger.Warn("Item rescue failed, substituting zero vector",
				zap.Int("position", i), zap.Error(err))
			vectors[i] = domain.ZeroVector(s.cfg.Dimensions)
			acc.ZeroFilled++
			metrics.EmbeddingZeroFilledTotal.Inc()
		} else {
			vectors[i] = res.Embedding
			acc.TotalTokens += res.TotalTokens
			acc.CostUSD += res.CostUSD
		}

		if i < len(batch)-1 && s.cfg.ItemRetryDelay > 0 {
			if err := sleep(ctx, s.cfg.ItemRetryDelay); err != nil {
				return nil, fmt.Errorf("item rescue canceled: %w", err)
			}
		}
	}

	return vectors, nil
}

func (s *Service) rescueOne(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	if s.cfg.ItemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ItemTimeout)
		defer cancel()
	}
	return s.secondary.Embed(ctx, text)
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
