package reliability

import (
	"context"
	"time"
)

// RetryPolicy defines the interface for retry policies
type RetryPolicy interface {
	// ShouldRetry reports whether another attempt follows the failed attempt
	// (zero-based) and how long to wait before it.
	ShouldRetry(attempt int, err error) (bool, time.Duration)
	// MaxAttempts returns the total number of attempts allowed
	MaxAttempts() int
}

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// FixedDelay waits the same Delay between attempts and allows at most
// Attempts calls in total.
type FixedDelay struct {
	Delay    time.Duration
	Attempts int
}

// NewFixedDelay creates a new fixed delay policy
func NewFixedDelay(delay time.Duration, attempts int) *FixedDelay {
	return &FixedDelay{
		Delay:    delay,
		Attempts: attempts,
	}
}

// ShouldRetry implements RetryPolicy
func (f *FixedDelay) ShouldRetry(attempt int, err error) (bool, time.Duration) {
	if attempt+1 >= f.Attempts {
		return false, 0
	}
	return true, f.Delay
}

// MaxAttempts implements RetryPolicy
func (f *FixedDelay) MaxAttempts() int {
	return f.Attempts
}

// ContextSleep is the default SleepFunc backed by a timer
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Retry executes fn until it succeeds or the policy gives up
func Retry(ctx context.Context, policy RetryPolicy, fn func(attempt int) error) error {
	return RetryWithSleep(ctx, policy, ContextSleep, fn)
}

// RetryWithSleep is Retry with a custom sleep function. fn receives the
// zero-based attempt number. When the policy gives up, the last error from
// fn is returned unchanged; a cancelled ctx returns ctx.Err().
func RetryWithSleep(ctx context.Context, policy RetryPolicy, sleep SleepFunc, fn func(attempt int) error) error {
	if sleep == nil {
		sleep = ContextSleep
	}

	for attempt := 0; ; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn(attempt)
		if err == nil {
			return nil
		}

		shouldRetry, delay := policy.ShouldRetry(attempt, err)
		if !shouldRetry {
			return err
		}

		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
}
