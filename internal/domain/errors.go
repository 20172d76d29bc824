package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest signals a malformed or unsatisfiable client request.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrUpstreamTimeout signals that an upstream call exceeded its deadline.
	ErrUpstreamTimeout = errors.New("upstream timeout")
	// ErrUpstreamStatus signals a non-2xx reply from an upstream provider.
	ErrUpstreamStatus = errors.New("upstream status error")
	// ErrBadUpstreamResponse signals an upstream reply the gateway cannot use.
	ErrBadUpstreamResponse = errors.New("bad upstream response")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrAllTiersFailed signals that both the primary and the fallback tier failed.
	ErrAllTiersFailed = errors.New("all tiers failed")
	// ErrPositionalIntegrity signals a broken input/output position alignment.
	// Internal assertion; misaligned data must never reach a client.
	ErrPositionalIntegrity = errors.New("positional integrity violation")
	// ErrStreamClosed signals a write to an already closed event stream.
	ErrStreamClosed = errors.New("stream closed")
)

// UpstreamStatusError wraps ErrUpstreamStatus with the HTTP status code returned
// by the provider, so callers can distinguish client-caused errors from transient ones.
type UpstreamStatusError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", ErrUpstreamStatus.Error(), e.StatusCode, e.Body)
}

func (e *UpstreamStatusError) Unwrap() error { return ErrUpstreamStatus }

// NewUpstreamStatus creates an upstream status error.
func NewUpstreamStatus(code int, body string) error {
	return &UpstreamStatusError{StatusCode: code, Body: body}
}

// IsClientCaused reports whether err is an upstream 4xx that retrying with the
// same input cannot fix. 408 and 429 are transient and excluded.
func IsClientCaused(err error) bool {
	var se *UpstreamStatusError
	if !errors.As(err, &se) {
		return false
	}
	if se.StatusCode == 408 || se.StatusCode == 429 {
		return false
	}
	return se.StatusCode >= 400 && se.StatusCode < 500
}
