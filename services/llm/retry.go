package llm

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

const (
	defaultMaxAttempts = 3
	defaultBaseBackoff = 500 * time.Millisecond
)

// RetryingClient wraps an LLMClient with bounded retry.
//
// Transient failures are retried with exponential backoff and jitter.
// Fatal generation errors and context cancellation stop the loop
// immediately.
type RetryingClient struct {
	inner       LLMClient
	maxAttempts int
	baseBackoff time.Duration
}

// NewRetryingClient wraps inner with up to maxAttempts tries. Non-positive
// maxAttempts falls back to the default of 3.
func NewRetryingClient(inner LLMClient, maxAttempts int) *RetryingClient {
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}
	return &RetryingClient{
		inner:       inner,
		maxAttempts: maxAttempts,
		baseBackoff: defaultBaseBackoff,
	}
}

// Generate implements the LLMClient interface.
func (r *RetryingClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		out, err := r.inner.Generate(ctx, prompt, params)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if IsFatalGeneration(err) || ctx.Err() != nil {
			return "", err
		}
		if attempt < r.maxAttempts {
			backoff := r.baseBackoff * time.Duration(1<<(attempt-1))
			backoff += time.Duration(rand.Int63n(int64(r.baseBackoff)))
			slog.Warn("Generation attempt failed, retrying",
				"attempt", attempt, "backoff", backoff, "error", err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
	}
	if ge, ok := IsGenerationError(lastErr); ok {
		ge.Attempts = r.maxAttempts
		return "", ge
	}
	return "", &GenerationError{Provider: "unknown", Attempts: r.maxAttempts, Err: lastErr}
}
