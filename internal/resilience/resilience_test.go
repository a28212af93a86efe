package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentmem/internal/apperr"
)

func TestWithBackoff_StopsOnNonTransientError(t *testing.T) {
	calls := 0
	err := WithBackoff(context.Background(), DefaultRetryConfig(), func(ctx context.Context) error {
		calls++
		return apperr.Invalidf("test", "bad input")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithBackoff_RetriesTransientUntilSuccess(t *testing.T) {
	calls := 0
	cfg := DefaultRetryConfig()
	cfg.BaseDelay = 0
	cfg.MaxAttempts = 5
	err := WithBackoff(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return apperr.Transientf("test", errors.New("timeout"), "retry me")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestBreaker_OpensAfterFailureThreshold(t *testing.T) {
	cfg := DefaultBreakerConfig("test")
	cfg.MinRequests = 2
	cfg.FailureThreshold = 0.5
	b := NewBreaker(cfg, nil)

	for i := 0; i < 3; i++ {
		_ = b.Execute(func(ctx context.Context) error { return errors.New("boom") })
	}
	err := b.Execute(func(ctx context.Context) error { return nil })
	require.Error(t, err)
}
