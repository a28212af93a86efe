// Package resilience adapts the teacher's retry and circuit-breaker
// primitives (internal/repository/retry.go's RetryWithBackoff,
// internal/middleware/circuit_breaker.go's gobreaker wiring) from
// DynamoDB/HTTP-specific shapes into general operation wrappers for any
// outbound call (LLM, embedder, storage). No other package in this module
// calls them.
package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"agentmem/internal/apperr"
)

// RetryConfig mirrors the teacher's RetryConfig field-for-field; only the
// retryability check changes, from AWS-exception matching to apperr.Kind.
type RetryConfig struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterFactor  float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		BaseDelay:     100 * time.Millisecond,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		JitterFactor:  0.1,
	}
}

// Operation is any outbound call worth retrying.
type Operation func(ctx context.Context) error

// WithBackoff retries operation while apperr.IsTransient(err); any other
// error (Invalid, Permanent, NotSupported, ...) returns immediately since
// retrying it can't help.
func WithBackoff(ctx context.Context, cfg RetryConfig, op Operation) error {
	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !apperr.IsTransient(err) {
			return err
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		delay := cfg.calculateDelay(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

func (c RetryConfig) calculateDelay(attempt int) time.Duration {
	backoff := float64(c.BaseDelay) * math.Pow(c.BackoffFactor, float64(attempt))
	jitter := backoff * c.JitterFactor * (rand.Float64() - 0.5) * 2
	delay := time.Duration(backoff + jitter)
	if delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}
