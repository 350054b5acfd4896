package rabbitmq

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

var (
	// Connection errors
	ErrRetryBudgetExceeded = errors.New("rabbitmq: exceeded retry budget")
	ErrConnectionClosed    = errors.New("rabbitmq: connection is closed")
	ErrManagerClosed       = errors.New("rabbitmq: connection manager is closed")

	// Channel errors
	ErrChannelUnavailable = errors.New("rabbitmq: channel is not available")
	ErrChannelClosed      = errors.New("rabbitmq: channel is closed")

	// Consumer errors
	ErrHandlerPanic = errors.New("rabbitmq: handler panicked")
)

// ConnectionError represents a connection-related error
type ConnectionError struct {
	Op        string    // Operation that failed
	URL       string    // Connection URL (sanitized)
	Err       error     // Underlying error
	Timestamp time.Time // When the error occurred
	Attempts  int       // Number of attempts made
}

func (e *ConnectionError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("rabbitmq connection error: %s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
	}
	return fmt.Sprintf("rabbitmq connection error: %s failed: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ChannelError represents a channel open or exchange declare failure
type ChannelError struct {
	Op        string    // Operation that failed
	ChannelID string    // Channel identifier
	Err       error     // Underlying error
	Timestamp time.Time // When the error occurred
}

func (e *ChannelError) Error() string {
	if e.ChannelID == "" {
		return fmt.Sprintf("rabbitmq channel error: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("rabbitmq channel error: %s on channel %s: %v", e.Op, e.ChannelID, e.Err)
}

func (e *ChannelError) Unwrap() error {
	return e.Err
}

// PublishError represents a publish operation error
type PublishError struct {
	Exchange   string    // Target exchange
	RoutingKey string    // Routing key used
	Err        error     // Underlying error
	Timestamp  time.Time // When the error occurred
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("rabbitmq publish error: failed to publish to %s/%s: %v",
		e.Exchange, e.RoutingKey, e.Err)
}

func (e *PublishError) Unwrap() error {
	return e.Err
}

// SubscribeError represents a failure while setting up a subscription
type SubscribeError struct {
	Queue      string    // Queue name, empty before declaration
	RoutingKey string    // Binding key
	Op         string    // Operation that failed
	Err        error     // Underlying error
	Timestamp  time.Time // When the error occurred
}

func (e *SubscribeError) Error() string {
	return fmt.Sprintf("rabbitmq subscribe error: %s failed for key %s on queue %q: %v",
		e.Op, e.RoutingKey, e.Queue, e.Err)
}

func (e *SubscribeError) Unwrap() error {
	return e.Err
}

// HandlerError wraps a failure returned by a delivery handler. It is logged
// and turned into a requeue, never returned to a caller.
type HandlerError struct {
	Queue       string
	DeliveryTag uint64
	Redelivered bool
	Err         error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("rabbitmq handler error: delivery %d on queue %s: %v", e.DeliveryTag, e.Queue, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err means the broker could not be reached within
// the retry budget. Channel setup failures are fatal to the operation too.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRetryBudgetExceeded) {
		return true
	}
	var chanErr *ChannelError
	return errors.As(err, &chanErr)
}

// SanitizeURL removes the password from a connection URL
func SanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
