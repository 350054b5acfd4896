package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/mock"
)

// fakeChannel records what the managers do with a channel and lets tests play
// the broker's side of close and flow notifications.
type fakeChannel struct {
	mu            sync.Mutex
	closed        bool
	declareErr    error
	queueErr      error
	declares      []string
	queues        []string
	bindings      []Binding
	prefetchCount int
	published     []amqp.Publishing
	publishKeys   []string
	cancelled     []string
	deliveries    chan amqp.Delivery
	closeNotify   []chan *amqp.Error
	flowNotify    []chan bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{deliveries: make(chan amqp.Delivery, 16)}
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.declareErr != nil {
		return c.declareErr
	}
	c.declares = append(c.declares, fmt.Sprintf("%s:%s:%t", name, kind, durable))
	return nil
}

func (c *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.queueErr != nil {
		return amqp.Queue{}, c.queueErr
	}
	q := amqp.Queue{Name: fmt.Sprintf("amq.gen-%d", len(c.queues)+1)}
	c.queues = append(c.queues, fmt.Sprintf("%s:durable=%t:autoDelete=%t:exclusive=%t", name, durable, autoDelete, exclusive))
	return q, nil
}

func (c *fakeChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bindings = append(c.bindings, Binding{Queue: name, RoutingKey: key, Exchange: exchange})
	return nil
}

func (c *fakeChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prefetchCount = prefetchCount
	return nil
}

func (c *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	if autoAck {
		return nil, errors.New("fake channel only supports manual ack")
	}
	return c.deliveries, nil
}

func (c *fakeChannel) Cancel(consumer string, noWait bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = append(c.cancelled, consumer)
	return nil
}

func (c *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return amqp.ErrClosed
	}
	c.published = append(c.published, msg)
	c.publishKeys = append(c.publishKeys, exchange+"/"+key)
	return nil
}

func (c *fakeChannel) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeNotify = append(c.closeNotify, receiver)
	return receiver
}

func (c *fakeChannel) NotifyFlow(receiver chan bool) chan bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flowNotify = append(c.flowNotify, receiver)
	return receiver
}

func (c *fakeChannel) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeChannel) Close() error {
	c.shutdown(nil)
	return nil
}

// fail closes the channel the way a broker-side channel exception does
func (c *fakeChannel) fail(reason string) {
	c.shutdown(&amqp.Error{Code: amqp.ChannelError, Reason: reason})
}

func (c *fakeChannel) shutdown(err *amqp.Error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for _, n := range c.closeNotify {
		if err != nil {
			n <- err
		}
		close(n)
	}
	for _, n := range c.flowNotify {
		close(n)
	}
	close(c.deliveries)
	c.closeNotify = nil
	c.flowNotify = nil
}

// flow delivers a channel.flow notification; false pauses publishers
func (c *fakeChannel) flow(active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range c.flowNotify {
		n <- active
	}
}

func (c *fakeChannel) declareCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.declares)
}

func (c *fakeChannel) publishedMessages() []amqp.Publishing {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]amqp.Publishing(nil), c.published...)
}

// fakeConnection hands out fakeChannels and plays the broker's connection
// notifications.
type fakeConnection struct {
	mu            sync.Mutex
	closed        bool
	channelErr    error
	channelFails  int
	declareErr    error
	channels      []*fakeChannel
	closeNotify   []chan *amqp.Error
	blockedNotify []chan amqp.Blocking
}

func (c *fakeConnection) Channel() (Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, amqp.ErrClosed
	}
	if err := c.channelErr; err != nil {
		if c.channelFails > 0 {
			c.channelFails--
			if c.channelFails == 0 {
				c.channelErr = nil
			}
		}
		return nil, err
	}
	ch := newFakeChannel()
	ch.declareErr = c.declareErr
	c.channels = append(c.channels, ch)
	return ch, nil
}

// failChannelOpens makes the next n Channel calls return err
func (c *fakeConnection) failChannelOpens(n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channelErr = err
	c.channelFails = n
}

func (c *fakeConnection) NotifyClose(receiver chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeNotify = append(c.closeNotify, receiver)
	return receiver
}

func (c *fakeConnection) NotifyBlocked(receiver chan amqp.Blocking) chan amqp.Blocking {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.blockedNotify = append(c.blockedNotify, receiver)
	return receiver
}

func (c *fakeConnection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConnection) Close() error {
	c.shutdown(nil)
	return nil
}

// fail drops the connection the way a network failure does
func (c *fakeConnection) fail() {
	c.shutdown(amqp.ErrClosed)
}

func (c *fakeConnection) shutdown(err *amqp.Error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for _, n := range c.closeNotify {
		if err != nil {
			n <- err
		}
		close(n)
	}
	for _, n := range c.blockedNotify {
		close(n)
	}
	c.closeNotify = nil
	c.blockedNotify = nil
	channels := append([]*fakeChannel(nil), c.channels...)
	c.mu.Unlock()

	for _, ch := range channels {
		ch.shutdown(err)
	}
}

// block delivers a connection.blocked or connection.unblocked notification
func (c *fakeConnection) block(active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range c.blockedNotify {
		n <- amqp.Blocking{Active: active, Reason: "low on memory"}
	}
}

func (c *fakeConnection) channelCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.channels)
}

func (c *fakeConnection) channel(i int) *fakeChannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channels[i]
}

// fakeDialer fails the first failures dials and then hands out connections
type fakeDialer struct {
	mu          sync.Mutex
	failures    int
	err         error
	calls       int
	delay       time.Duration
	connections []*fakeConnection
	declareErr  error
}

func (d *fakeDialer) dial(url string) (Connection, error) {
	d.mu.Lock()
	d.calls++
	call := d.calls
	delay := d.delay
	d.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if call <= d.failures {
		if d.err != nil {
			return nil, d.err
		}
		return nil, errors.New("dial tcp: connection refused")
	}
	conn := &fakeConnection{declareErr: d.declareErr}
	d.connections = append(d.connections, conn)
	return conn, nil
}

func (d *fakeDialer) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *fakeDialer) connection(i int) *fakeConnection {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connections[i]
}

// recordingSleep replaces the wait between connection attempts
type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *recordingSleep) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

// mockAcknowledger for testing
type mockAcknowledger struct {
	mock.Mock
}

func (m *mockAcknowledger) Ack(tag uint64, multiple bool) error {
	args := m.Called(tag, multiple)
	return args.Error(0)
}

func (m *mockAcknowledger) Nack(tag uint64, multiple bool, requeue bool) error {
	args := m.Called(tag, multiple, requeue)
	return args.Error(0)
}

func (m *mockAcknowledger) Reject(tag uint64, requeue bool) error {
	args := m.Called(tag, requeue)
	return args.Error(0)
}

// countingAcknowledger counts acks and requeues from the consume goroutine
type countingAcknowledger struct {
	mu       sync.Mutex
	acks     []uint64
	requeues []uint64
}

func (a *countingAcknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.acks = append(a.acks, tag)
	return nil
}

func (a *countingAcknowledger) Nack(tag uint64, multiple bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if requeue {
		a.requeues = append(a.requeues, tag)
	}
	return nil
}

func (a *countingAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *countingAcknowledger) counts() (acks, requeues int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.acks), len(a.requeues)
}
