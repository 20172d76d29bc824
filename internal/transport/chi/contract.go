package chi

import (
	"context"
	"io"

	"github.com/kailas-cloud/llmgate/internal/domain"
	"github.com/kailas-cloud/llmgate/internal/transport/chat"
	generateuc "github.com/kailas-cloud/llmgate/internal/usecase/generate"
	healthuc "github.com/kailas-cloud/llmgate/internal/usecase/health"
	usageuc "github.com/kailas-cloud/llmgate/internal/usecase/usage"
)

// StreamOpener opens upstream SSE streams for the relay handlers.
type StreamOpener interface {
	OpenGenerateStream(ctx context.Context, req chat.Request) (io.ReadCloser, error)
	OpenSearchStream(ctx context.Context, req chat.Request) (io.ReadCloser, error)
}

// Generator performs non-streaming generation.
type Generator interface {
	Generate(ctx context.Context, p generateuc.Params) (chat.GenerateResult, error)
}

// BatchProcessor embeds a list of texts preserving positions.
type BatchProcessor interface {
	Process(ctx context.Context, texts []string) (domain.BatchResult, error)
}

// TokenCounter counts tokens in a text.
type TokenCounter interface {
	Count(text string) int
	Exact() bool
}

// UsageService records and reports usage accounting.
type UsageService interface {
	Record(ctx context.Context, u *domain.RequestUsage)
	GetReport(ctx context.Context) (usageuc.Report, error)
}

// HealthService aggregates component health checks.
type HealthService interface {
	Check(ctx context.Context) healthuc.Report
}
