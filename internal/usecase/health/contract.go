package health

import "context"

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// ChatChecker checks chat upstream availability.
type ChatChecker interface {
	HealthCheck(ctx context.Context) error
}
