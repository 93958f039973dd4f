// Package retry wraps remote calls in bounded retry with exponential backoff.
//
// Every error is considered retryable: the remote surfaces transient rate
// limits and server errors without a stable taxonomy, so classification buys
// nothing. When the attempt budget is exhausted the ORIGINAL error from the
// final attempt is returned unchanged so callers can match on it.
package retry

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Policy controls the retry loop.
type Policy struct {
	// MaxAttempts is the total invocation budget, including the first call.
	// Values below 1 behave as 1.
	MaxAttempts int
	// InitialDelay is the backoff before the second attempt. Each subsequent
	// delay doubles: d, 2d, 4d, ... No jitter is applied; calls are
	// single-threaded so synchronized retries are not a concern.
	InitialDelay time.Duration
	// OnRetry, when set, observes each scheduled retry before the backoff
	// sleep. Attempt numbering starts at 1 for the call that just failed.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DefaultPolicy matches the tracker client's tolerances: three attempts with
// a one second initial delay.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, InitialDelay: time.Second}
}

// Do invokes op under the policy.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	_, err := DoValue(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// DoValue invokes op under the policy and returns its value on success.
// Backoff sleeps honor context cancellation; a cancelled context returns
// ctx.Err() rather than the last operation error.
func DoValue[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	delay := p.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if attempt == attempts {
			break
		}

		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Int("max_attempts", attempts).
			Dur("delay", delay).
			Msg("call failed, retrying")
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}

	return zero, lastErr
}
