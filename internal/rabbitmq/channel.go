package rabbitmq

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ManagedChannel is a channel opened by ChannelManager on which the exchange
// has already been declared.
type ManagedChannel struct {
	Channel
	id        string
	exchange  ExchangeDeclaration
	owner     *connState
	flow      *gate
	done      chan struct{}
	closeOnce sync.Once
}

// ID returns the channel identifier used in logs and errors
func (c *ManagedChannel) ID() string {
	return c.id
}

// Exchange returns the name of the exchange declared on this channel
func (c *ManagedChannel) Exchange() string {
	return c.exchange.Name
}

// Done is closed when the channel or its connection goes away
func (c *ManagedChannel) Done() <-chan struct{} {
	return c.done
}

// Paused reports whether the broker has asked publishers to hold off, either
// through channel.flow or connection.blocked.
func (c *ManagedChannel) Paused() bool {
	return c.flow.isPaused() || c.owner.blocked.isPaused()
}

// backpressure returns a channel that is closed on the next resume, or nil
// when publishing is not paused.
func (c *ManagedChannel) backpressure() <-chan struct{} {
	if w := c.flow.wait(); w != nil {
		return w
	}
	return c.owner.blocked.wait()
}

func (c *ManagedChannel) isDone() bool {
	select {
	case <-c.done:
		return true
	default:
		return c.Channel.IsClosed()
	}
}

func (c *ManagedChannel) markDone() {
	c.closeOnce.Do(func() { close(c.done) })
}

// ChannelManager owns a single channel on top of the ConnectionManager's
// connection and replaces it whenever it or the connection is lost.
type ChannelManager struct {
	connections *ConnectionManager
	exchange    ExchangeDeclaration
	logger      *slog.Logger

	// createMu serializes channel creation; mu guards current.
	createMu sync.Mutex
	mu       sync.Mutex
	current  *ManagedChannel
}

// ChannelOption configures the ChannelManager
type ChannelOption func(*ChannelManager)

// WithChannelLogger sets the logger
func WithChannelLogger(logger *slog.Logger) ChannelOption {
	return func(m *ChannelManager) {
		m.logger = logger
	}
}

// NewChannelManager creates a channel manager that declares the named direct
// exchange on every channel it opens.
func NewChannelManager(connections *ConnectionManager, exchange string, options ...ChannelOption) *ChannelManager {
	m := &ChannelManager{
		connections: connections,
		exchange:    DirectExchange(exchange),
		logger:      slog.Default(),
	}

	for _, opt := range options {
		opt(m)
	}

	return m
}

// EnsureChannel returns the live channel, opening a new one (and the
// connection under it) if needed.
func (m *ChannelManager) EnsureChannel(ctx context.Context) (*ManagedChannel, error) {
	if ch := m.live(nil); ch != nil {
		return ch, nil
	}

	m.createMu.Lock()
	defer m.createMu.Unlock()

	st, err := m.connections.ensure(ctx)
	if err != nil {
		return nil, err
	}

	if ch := m.live(st); ch != nil {
		return ch, nil
	}

	raw, err := st.conn.Channel()
	if err != nil {
		return nil, &ChannelError{
			Op:        "open channel",
			Err:       err,
			Timestamp: time.Now(),
		}
	}

	mc := &ManagedChannel{
		Channel:  raw,
		id:       uuid.NewString(),
		exchange: m.exchange,
		owner:    st,
		flow:     newGate(),
		done:     make(chan struct{}),
	}
	closeCh := raw.NotifyClose(make(chan *amqp.Error, 1))
	flowCh := raw.NotifyFlow(make(chan bool, 1))
	go m.watch(mc, closeCh, flowCh)

	if err := declareExchange(raw, m.exchange); err != nil {
		if !raw.IsClosed() {
			_ = raw.Close()
		}
		mc.markDone()
		return nil, &ChannelError{
			Op:        "declare exchange " + m.exchange.Name,
			ChannelID: mc.id,
			Err:       err,
			Timestamp: time.Now(),
		}
	}

	m.logger.Info("exchange asserted",
		"exchange", m.exchange.Name,
		"kind", m.exchange.Kind,
		"channel", mc.id)

	m.mu.Lock()
	m.current = mc
	m.mu.Unlock()

	return mc, nil
}

// Close closes the current channel if there is one
func (m *ChannelManager) Close() error {
	m.mu.Lock()
	mc := m.current
	m.current = nil
	m.mu.Unlock()

	if mc == nil {
		return nil
	}
	defer mc.markDone()

	if mc.Channel.IsClosed() {
		return nil
	}
	return mc.Channel.Close()
}

// live returns the cached channel when it is still usable. A non-nil owner
// additionally requires the channel to belong to that connection.
func (m *ChannelManager) live(owner *connState) *ManagedChannel {
	m.mu.Lock()
	defer m.mu.Unlock()

	mc := m.current
	if mc == nil {
		return nil
	}
	if mc.isDone() || (owner != nil && mc.owner != owner) {
		m.current = nil
		return nil
	}
	return mc
}

func (m *ChannelManager) release(mc *ManagedChannel) {
	mc.markDone()

	m.mu.Lock()
	if m.current == mc {
		m.current = nil
	}
	m.mu.Unlock()
}

// watch tracks channel.flow and clears the channel on close or when its
// connection is lost.
func (m *ChannelManager) watch(mc *ManagedChannel, closeCh <-chan *amqp.Error, flowCh <-chan bool) {
	for {
		select {
		case active, ok := <-flowCh:
			if !ok {
				flowCh = nil
				continue
			}
			mc.flow.set(!active)
			if active {
				m.logger.Info("channel flow resumed", "channel", mc.id)
			} else {
				m.logger.Warn("channel flow paused by broker", "channel", mc.id)
			}

		case err, ok := <-closeCh:
			if ok && err != nil {
				m.logger.Error("RabbitMQ channel error", "channel", mc.id, "error", err)
			} else {
				m.logger.Info("RabbitMQ channel closed", "channel", mc.id)
			}
			m.release(mc)
			return

		case <-mc.owner.done:
			m.logger.Info("dropping channel of lost connection", "channel", mc.id)
			m.release(mc)
			return
		}
	}
}
