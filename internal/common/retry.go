package common

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// RetryPolicy bounds a retried operation. Backoff doubles after every failed attempt.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Clock          clockwork.Clock
	// Retryable reports whether err is worth another attempt. Nil retries everything.
	Retryable func(err error) bool
	OnRetry   func(attempt int, err error, backoff time.Duration)
}

// Retry runs op until it succeeds, the policy is exhausted or ctx ends
func Retry[T any](ctx context.Context, p RetryPolicy, op func() (T, error)) (T, error) {
	var zero T

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	backoff := p.InitialBackoff

	for attempt := 1; ; attempt++ {
		val, err := op()
		if err == nil {
			return val, nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return zero, err
		}
		if attempt >= attempts {
			return zero, fmt.Errorf("failed after %d attempts: %w", attempts, err)
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err, backoff)
		}

		select {
		case <-clock.After(backoff):
		case <-ctx.Done():
			return zero, fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		}

		backoff *= 2
		if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
			backoff = p.MaxBackoff
		}
	}
}

// RetryVoid is Retry for operations without a result
func RetryVoid(ctx context.Context, p RetryPolicy, op func() error) error {
	_, err := Retry(ctx, p, func() (struct{}, error) { return struct{}{}, op() })
	return err
}
