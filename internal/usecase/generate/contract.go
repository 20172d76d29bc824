package generate

import (
	"context"

	"github.com/kailas-cloud/llmgate/internal/transport/chat"
)

// ChatProvider performs non-streaming generation against the upstream.
type ChatProvider interface {
	Generate(ctx context.Context, req chat.Request) (chat.GenerateResult, error)
}
