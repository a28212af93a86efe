package resilience

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig mirrors the teacher's CircuitBreakerConfig, generalized
// from an HTTP middleware parameter set to a plain operation wrapper.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      3,
		Interval:         10 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      3,
	}
}

// Breaker wraps a gobreaker.CircuitBreaker around arbitrary operations
// (LLM calls, embedder calls, storage I/O) rather than HTTP handlers.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

func NewBreaker(cfg BreakerConfig, onStateChange func(name string, from, to gobreaker.State)) *Breaker {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: onStateChange,
	})
	return &Breaker{cb: cb}
}

// Execute runs op through the breaker, surfacing gobreaker.ErrOpenState/
// ErrTooManyRequests to the caller unwrapped so they can branch on them.
func (b *Breaker) Execute(op Operation) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, op(context.Background())
	})
	return err
}

func (b *Breaker) State() gobreaker.State { return b.cb.State() }
