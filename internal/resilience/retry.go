// Package resilience provides retry with exponential backoff for
// provider calls.
package resilience

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryConfig holds the backoff parameters for one call.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultMaxDelay caps the jittered backoff.
const DefaultMaxDelay = 30 * time.Second

// Retryable decides whether an error warrants another attempt. Provider
// transformers supply this; there is no global retry policy.
type Retryable func(err error) bool

// Do executes fn with exponential backoff and full jitter, consulting
// retryable after each failure. It respects context cancellation both
// between attempts and during backoff sleeps.
func Do(ctx context.Context, cfg RetryConfig, retryable Retryable, fn func(ctx context.Context) error) error {
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry: context cancelled: %w", ctx.Err())
		default:
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if attempt == cfg.MaxRetries {
			break
		}
		if retryable == nil || !retryable(lastErr) {
			return lastErr
		}

		delay := backoffDelay(attempt, cfg.BaseDelay, cfg.MaxDelay)
		select {
		case <-ctx.Done():
			return fmt.Errorf("retry: context cancelled during backoff: %w", ctx.Err())
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("retry: max retries (%d) exceeded: %w", cfg.MaxRetries, lastErr)
}

// backoffDelay computes full-jitter backoff:
// delay = rand(0, min(maxDelay, baseDelay * 2^attempt)).
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	expDelay := float64(base) * math.Pow(2, float64(attempt))
	if expDelay > float64(max) {
		expDelay = float64(max)
	}
	jittered := time.Duration(rand.Float64() * expDelay)
	if jittered < time.Millisecond {
		jittered = time.Millisecond
	}
	return jittered
}
