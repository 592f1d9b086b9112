package transport

import (
	"context"
	"math"
	"time"
)

// Policy configures retry for one logical call. It is a plain data value so
// tests can shrink the delays or count attempts with a fake sleeper.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
}

// DefaultPolicy returns the production retry policy: three total attempts
// with 1500ms and 3000ms between them.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   1500 * time.Millisecond,
		Multiplier:  2.0,
	}
}

// Delay returns the backoff before attempt+1. attempt is 1-indexed: Delay(1)
// is the pause after the first failed attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if p.BaseDelay <= 0 {
		return 0
	}
	factor := p.Multiplier
	if factor <= 0 {
		factor = 1.0
	}
	return time.Duration(float64(p.BaseDelay) * math.Pow(factor, float64(attempt-1)))
}

// Sleeper pauses for d and reports false if the context was cancelled before
// the pause elapsed. Injectable so retry tests run on a fake clock.
type Sleeper func(ctx context.Context, d time.Duration) bool

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Do runs op with bounded exponential-backoff retry. Every error is retried
// except a cancellation, which aborts immediately: before the first attempt,
// between attempts, and when op itself observes ctx. Exhaustion yields an
// ExhaustedError wrapping the last attempt's error.
func Do[T any](ctx context.Context, policy Policy, sleep Sleeper, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if sleep == nil {
		sleep = sleepContext
	}
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, cancelledFromContext(ctx, err)
		}
		out, err := op(ctx)
		if err == nil {
			return out, nil
		}
		if IsCancelled(err) {
			return zero, cancelledFromContext(ctx, err)
		}
		last = err
		if attempt == attempts {
			break
		}
		if !sleep(ctx, policy.Delay(attempt)) {
			return zero, cancelledFromContext(ctx, ctx.Err())
		}
	}
	return zero, &ExhaustedError{Attempts: attempts, Last: last}
}
