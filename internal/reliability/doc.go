// Package reliability provides the bounded retry combinator used by the broker
// connection manager.
//
// A RetryPolicy decides whether a failed attempt is followed by another one and
// how long to wait in between. FixedDelay allows a fixed number of attempts with
// a constant pause. RetryWithSleep accepts the sleep function so callers can run
// the loop without real delays.
//
// Example usage:
//
//	policy := reliability.NewFixedDelay(5*time.Second, 5)
//	err := reliability.Retry(ctx, policy, func(attempt int) error {
//	    return dial()
//	})
package reliability
