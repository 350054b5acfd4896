package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/glimte/shopbus/internal/observability"
	"github.com/glimte/shopbus/internal/reliability"
)

const (
	// DefaultConnectAttempts is the number of dial attempts per EnsureConnection
	DefaultConnectAttempts = 5
	// DefaultReconnectDelay is the pause between dial attempts
	DefaultReconnectDelay = 5 * time.Second
)

// ConnectionStateListener receives connection state change notifications
type ConnectionStateListener interface {
	OnConnected()
	OnDisconnected(err error)
	OnReconnecting(attempt int)
}

// connState is one live connection. done is closed when the broker or the
// network ends it.
type connState struct {
	conn    Connection
	blocked *gate
	done    chan struct{}
}

// ConnectionManager owns the single broker connection and re-establishes it
// lazily after it is lost.
type ConnectionManager struct {
	url            string
	dial           DialFunc
	sleep          reliability.SleepFunc
	reconnectDelay time.Duration
	maxAttempts    int
	logger         *slog.Logger
	metrics        *observability.Metrics

	// dialMu serializes connection creation; mu guards state.
	dialMu sync.Mutex
	mu     sync.RWMutex
	state  *connState
	closed bool

	listenersMu    sync.RWMutex
	stateListeners []ConnectionStateListener
}

// ConnectionOption configures the ConnectionManager
type ConnectionOption func(*ConnectionManager)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.logger = logger
	}
}

// WithReconnectDelay sets the delay between connection attempts
func WithReconnectDelay(delay time.Duration) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.reconnectDelay = delay
	}
}

// WithMaxAttempts sets how many times a connect is attempted before giving up
func WithMaxAttempts(attempts int) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.maxAttempts = attempts
	}
}

// WithDialer replaces the amqp091-go dialer
func WithDialer(dial DialFunc) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.dial = dial
	}
}

// WithSleep replaces the wait between connection attempts
func WithSleep(sleep reliability.SleepFunc) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.sleep = sleep
	}
}

// WithConnectionMetrics records connect attempts
func WithConnectionMetrics(m *observability.Metrics) ConnectionOption {
	return func(cm *ConnectionManager) {
		cm.metrics = m
	}
}

// NewConnectionManager creates a new connection manager. No connection is
// opened until EnsureConnection is called.
func NewConnectionManager(url string, options ...ConnectionOption) *ConnectionManager {
	cm := &ConnectionManager{
		url:            url,
		dial:           Dial,
		sleep:          reliability.ContextSleep,
		reconnectDelay: DefaultReconnectDelay,
		maxAttempts:    DefaultConnectAttempts,
		logger:         slog.Default(),
	}

	for _, opt := range options {
		opt(cm)
	}

	if cm.maxAttempts < 1 {
		cm.maxAttempts = 1
	}

	return cm
}

// EnsureConnection returns the live connection, dialing a new one if needed
func (cm *ConnectionManager) EnsureConnection(ctx context.Context) (Connection, error) {
	st, err := cm.ensure(ctx)
	if err != nil {
		return nil, err
	}
	return st.conn, nil
}

// IsConnected reports whether a connection exists and its transport is open
func (cm *ConnectionManager) IsConnected() bool {
	return cm.current() != nil
}

// Close closes the connection. The manager cannot be reused afterwards.
func (cm *ConnectionManager) Close() error {
	cm.mu.Lock()
	if cm.closed {
		cm.mu.Unlock()
		return nil
	}
	cm.closed = true
	st := cm.state
	cm.state = nil
	cm.mu.Unlock()

	if st == nil || st.conn.IsClosed() {
		return nil
	}
	return st.conn.Close()
}

func (cm *ConnectionManager) current() *connState {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if cm.state == nil || cm.state.conn.IsClosed() {
		return nil
	}
	return cm.state
}

func (cm *ConnectionManager) isClosed() bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.closed
}

func (cm *ConnectionManager) ensure(ctx context.Context) (*connState, error) {
	if st := cm.current(); st != nil {
		return st, nil
	}

	cm.dialMu.Lock()
	defer cm.dialMu.Unlock()

	// another caller may have connected while we waited
	if st := cm.current(); st != nil {
		return st, nil
	}
	if cm.isClosed() {
		return nil, cm.connectionError(ErrManagerClosed, 0)
	}

	policy := reliability.NewFixedDelay(cm.reconnectDelay, cm.maxAttempts)

	var conn Connection
	attempts := 0
	err := reliability.RetryWithSleep(ctx, policy, cm.sleep, func(attempt int) error {
		attempts = attempt + 1
		if attempt > 0 {
			cm.notifyReconnecting(attempts)
		}
		cm.logger.Info("connecting to RabbitMQ",
			"url", SanitizeURL(cm.url),
			"attempt", attempts,
			"maxAttempts", cm.maxAttempts)

		c, err := cm.dial(cm.url)
		if err != nil {
			cm.metrics.ConnectAttempt(false)
			cm.logger.Error("connection attempt failed",
				"attempt", attempts,
				"error", err)
			if attempts < cm.maxAttempts {
				cm.logger.Info("retrying connection", "nextRetryIn", cm.reconnectDelay)
			}
			return err
		}
		cm.metrics.ConnectAttempt(true)
		conn = c
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return nil, cm.connectionError(err, attempts)
		}
		return nil, cm.connectionError(fmt.Errorf("%w: %w", ErrRetryBudgetExceeded, err), attempts)
	}

	st := &connState{
		conn:    conn,
		blocked: newGate(),
		done:    make(chan struct{}),
	}
	closeCh := conn.NotifyClose(make(chan *amqp.Error, 1))
	blockCh := conn.NotifyBlocked(make(chan amqp.Blocking, 1))

	cm.mu.Lock()
	if cm.closed {
		cm.mu.Unlock()
		_ = conn.Close()
		return nil, cm.connectionError(ErrManagerClosed, attempts)
	}
	cm.state = st
	cm.mu.Unlock()

	go cm.watch(st, closeCh, blockCh)

	cm.logger.Info("connected to RabbitMQ",
		"url", SanitizeURL(cm.url),
		"attempts", attempts)
	cm.notifyConnected()

	return st, nil
}

// watch moves st from live to closed when the close notification arrives and
// mirrors connection.blocked into the gate until then.
func (cm *ConnectionManager) watch(st *connState, closeCh <-chan *amqp.Error, blockCh <-chan amqp.Blocking) {
	for {
		select {
		case b, ok := <-blockCh:
			if !ok {
				blockCh = nil
				continue
			}
			st.blocked.set(b.Active)
			if b.Active {
				cm.logger.Warn("connection blocked by broker", "reason", b.Reason)
			} else {
				cm.logger.Info("connection unblocked by broker")
			}

		case amqpErr, ok := <-closeCh:
			var err error = ErrConnectionClosed
			if ok && amqpErr != nil {
				err = amqpErr
				cm.logger.Error("RabbitMQ connection error", "error", amqpErr)
			} else {
				cm.logger.Info("RabbitMQ connection closed")
			}

			cm.mu.Lock()
			if cm.state == st {
				cm.state = nil
			}
			cm.mu.Unlock()

			close(st.done)
			cm.notifyDisconnected(err)
			return
		}
	}
}

// AddStateListener adds a connection state listener
func (cm *ConnectionManager) AddStateListener(listener ConnectionStateListener) {
	cm.listenersMu.Lock()
	defer cm.listenersMu.Unlock()
	cm.stateListeners = append(cm.stateListeners, listener)
}

// RemoveStateListener removes a connection state listener
func (cm *ConnectionManager) RemoveStateListener(listener ConnectionStateListener) {
	cm.listenersMu.Lock()
	defer cm.listenersMu.Unlock()

	for i, l := range cm.stateListeners {
		if l == listener {
			cm.stateListeners = append(cm.stateListeners[:i], cm.stateListeners[i+1:]...)
			break
		}
	}
}

func (cm *ConnectionManager) notifyConnected() {
	cm.listenersMu.RLock()
	defer cm.listenersMu.RUnlock()

	for _, listener := range cm.stateListeners {
		go listener.OnConnected()
	}
}

func (cm *ConnectionManager) notifyDisconnected(err error) {
	cm.listenersMu.RLock()
	defer cm.listenersMu.RUnlock()

	for _, listener := range cm.stateListeners {
		go listener.OnDisconnected(err)
	}
}

func (cm *ConnectionManager) notifyReconnecting(attempt int) {
	cm.listenersMu.RLock()
	defer cm.listenersMu.RUnlock()

	for _, listener := range cm.stateListeners {
		go listener.OnReconnecting(attempt)
	}
}

func (cm *ConnectionManager) connectionError(err error, attempts int) *ConnectionError {
	return &ConnectionError{
		Op:        "connect",
		URL:       SanitizeURL(cm.url),
		Err:       err,
		Timestamp: time.Now(),
		Attempts:  attempts,
	}
}
