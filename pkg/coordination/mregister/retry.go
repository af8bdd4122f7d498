package mregister

import (
	"context"
	"time"

	retry "github.com/avast/retry-go/v5"

	"github.com/adgaudio/MajorityRedis/pkg/coordination/merrors"
)

// BackoffFunc computes the next delay given the previous one. The first
// call receives a zero prevDelay.
type BackoffFunc func(prevDelay time.Duration) time.Duration

// DefaultBackoff doubles the previous delay, starting at 50ms, capped at 2s.
func DefaultBackoff(prevDelay time.Duration) time.Duration {
	if prevDelay <= 0 {
		return 50 * time.Millisecond
	}
	next := prevDelay * 2
	if next > 2*time.Second {
		return 2 * time.Second
	}
	return next
}

// RetryCondition decides whether a Set/Get outcome is acceptable; when it
// returns false the combinator retries.
type RetryCondition[T any] func(T, error) bool

// Retry wraps a register operation with a retry loop: up to nretry
// attempts, sleeping according to backoff between them, bailing out with
// ErrTimeout if elapsed-plus-next-delay would exceed timeout, or
// ErrTooManyRetries once nretry is exhausted. It is built directly on
// avast/retry-go/v5; the previous-delay-threaded backoff and the hard
// wall-clock deadline are computed in its DelayType hook.
func Retry[T any](ctx context.Context, nretry int, timeout time.Duration, backoff BackoffFunc, accept RetryCondition[T], fn func(ctx context.Context) (T, error)) (T, error) {
	if backoff == nil {
		backoff = DefaultBackoff
	}
	start := time.Now()
	var prevDelay time.Duration
	timedOut := false

	result, err := retry.NewWithData[T](
		retry.Context(ctx),
		retry.Attempts(uint(maxInt(nretry, 1))),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(error) bool { return !timedOut }),
		retry.DelayType(func(n uint, _ error, _ retry.DelayContext) time.Duration {
			prevDelay = backoff(prevDelay)
			if timeout > 0 && time.Since(start)+prevDelay > timeout {
				timedOut = true
				return 0
			}
			return prevDelay
		}),
	).Do(func() (T, error) {
		if timedOut {
			var zero T
			return zero, merrors.ErrTimeout
		}
		v, err := fn(ctx)
		if accept(v, err) {
			return v, nil
		}
		if err == nil {
			err = merrors.ErrNoMajority
		}
		return v, err
	})

	if timedOut {
		return result, merrors.ErrTimeout
	}
	if err != nil {
		return result, merrors.ErrTooManyRetries
	}
	return result, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

