package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/glimte/shopbus/internal/observability"
)

// Handler processes one delivery body. A non-nil error requeues the delivery.
type Handler func(ctx context.Context, payload []byte) error

// Subscriber consumes from a private queue bound to the exchange with manual
// acknowledgment.
type Subscriber struct {
	prefetchCount    int
	consumerTag      string
	resubscribeDelay time.Duration
	logger           *slog.Logger
	metrics          *observability.Metrics
}

// DefaultResubscribeDelay is the pause before Run retries a failed subscribe
const DefaultResubscribeDelay = time.Second

var errNilHandler = errors.New("handler cannot be nil")

// SubscriberOption configures the subscriber
type SubscriberOption func(*Subscriber)

// WithPrefetchCount sets the prefetch count
func WithPrefetchCount(count int) SubscriberOption {
	return func(s *Subscriber) {
		s.prefetchCount = count
	}
}

// WithConsumerTag sets the consumer tag prefix
func WithConsumerTag(tag string) SubscriberOption {
	return func(s *Subscriber) {
		s.consumerTag = tag
	}
}

// WithResubscribeDelay sets the pause before Run retries after a channel or
// subscribe failure
func WithResubscribeDelay(delay time.Duration) SubscriberOption {
	return func(s *Subscriber) {
		s.resubscribeDelay = delay
	}
}

// WithSubscriberLogger sets the logger
func WithSubscriberLogger(logger *slog.Logger) SubscriberOption {
	return func(s *Subscriber) {
		s.logger = logger
	}
}

// WithSubscriberMetrics records delivery outcomes
func WithSubscriberMetrics(m *observability.Metrics) SubscriberOption {
	return func(s *Subscriber) {
		s.metrics = m
	}
}

// NewSubscriber creates a subscriber with a prefetch of one
func NewSubscriber(options ...SubscriberOption) *Subscriber {
	s := &Subscriber{
		prefetchCount:    1,
		consumerTag:      "shopbus",
		resubscribeDelay: DefaultResubscribeDelay,
		logger:           slog.Default(),
	}

	for _, opt := range options {
		opt(s)
	}

	return s
}

// Subscription is an active consumer on a private queue
type Subscription struct {
	queue       string
	routingKey  string
	consumerTag string
	done        chan struct{}
	err         error
}

// Queue returns the broker-generated queue name
func (s *Subscription) Queue() string {
	return s.queue
}

// ConsumerTag returns the tag the consumer was registered with
func (s *Subscription) ConsumerTag() string {
	return s.consumerTag
}

// Done is closed once the consumer has stopped
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err reports why the consumer stopped: ErrChannelClosed when the delivery
// stream ended, or the context error. It is nil while the consumer runs.
func (s *Subscription) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Subscribe declares a private queue, binds it under routingKey and starts
// feeding deliveries to handler one at a time. It returns once the consumer
// is registered.
func (s *Subscriber) Subscribe(ctx context.Context, ch *ManagedChannel, routingKey string, handler Handler) (*Subscription, error) {
	if ch == nil {
		return nil, s.subscribeError("subscribe", "", routingKey, ErrChannelUnavailable)
	}
	if handler == nil {
		return nil, s.subscribeError("subscribe", "", routingKey, errNilHandler)
	}

	if err := declareExchange(ch.Channel, ch.exchange); err != nil {
		return nil, s.subscribeError("declare exchange", "", routingKey, err)
	}

	q, err := declareQueue(ch.Channel, PrivateQueue())
	if err != nil {
		return nil, s.subscribeError("declare queue", "", routingKey, err)
	}
	s.logger.Info("waiting for messages in queue", "queue", q.Name)

	if err := bindQueue(ch.Channel, Binding{
		Queue:      q.Name,
		Exchange:   ch.Exchange(),
		RoutingKey: routingKey,
	}); err != nil {
		return nil, s.subscribeError("bind queue", q.Name, routingKey, err)
	}
	s.logger.Info("queue bound to exchange",
		"queue", q.Name,
		"exchange", ch.Exchange(),
		"routingKey", routingKey)

	if err := ch.Qos(s.prefetchCount, 0, false); err != nil {
		return nil, s.subscribeError("set qos", q.Name, routingKey, err)
	}

	tag := fmt.Sprintf("%s-%s", s.consumerTag, uuid.NewString())
	deliveries, err := ch.Consume(
		q.Name,
		tag,
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		return nil, s.subscribeError("consume", q.Name, routingKey, err)
	}

	sub := &Subscription{
		queue:       q.Name,
		routingKey:  routingKey,
		consumerTag: tag,
		done:        make(chan struct{}),
	}

	go s.consume(ctx, ch, sub, deliveries, handler)

	s.logger.Info("subscribed to queue",
		"queue", q.Name,
		"consumerTag", tag,
		"prefetchCount", s.prefetchCount)

	return sub, nil
}

// Run keeps a subscription alive across channel and connection loss. It
// returns nil when ctx ends, or the error that made re-subscribing impossible:
// an exhausted connect budget or a closed connection manager. Any other
// channel or subscribe failure is retried after the resubscribe delay.
func (s *Subscriber) Run(ctx context.Context, channels *ChannelManager, routingKey string, handler Handler) error {
	if handler == nil {
		return s.subscribeError("subscribe", "", routingKey, errNilHandler)
	}

	for {
		sub, err := s.resubscribe(ctx, channels, routingKey, handler)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if terminal(err) {
				return err
			}
			s.logger.Warn("subscribe failed, retrying",
				"routingKey", routingKey,
				"retryIn", s.resubscribeDelay,
				"error", err)
			if !s.pause(ctx) {
				return nil
			}
			continue
		}

		select {
		case <-ctx.Done():
			<-sub.Done()
			return nil
		case <-sub.Done():
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("subscription ended, resubscribing",
				"queue", sub.Queue(),
				"routingKey", routingKey)
		}
	}
}

func (s *Subscriber) resubscribe(ctx context.Context, channels *ChannelManager, routingKey string, handler Handler) (*Subscription, error) {
	ch, err := channels.EnsureChannel(ctx)
	if err != nil {
		return nil, err
	}
	return s.Subscribe(ctx, ch, routingKey, handler)
}

// pause waits for the resubscribe delay and reports false if ctx ended first
func (s *Subscriber) pause(ctx context.Context) bool {
	if s.resubscribeDelay <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(s.resubscribeDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// terminal reports errors that another EnsureChannel cannot recover from
func terminal(err error) bool {
	return errors.Is(err, ErrRetryBudgetExceeded) ||
		errors.Is(err, ErrManagerClosed) ||
		errors.Is(err, errNilHandler)
}

// consume processes deliveries in order until the delivery stream closes or
// ctx is cancelled.
func (s *Subscriber) consume(ctx context.Context, ch *ManagedChannel, sub *Subscription, deliveries <-chan amqp.Delivery, handler Handler) {
	var reason error
	defer func() {
		sub.err = reason
		close(sub.done)
		s.logger.Info("consumer stopped", "queue", sub.queue, "reason", reason)
	}()

	for {
		select {
		case <-ctx.Done():
			reason = ctx.Err()
			if err := ch.Cancel(sub.consumerTag, false); err != nil && !ch.isDone() {
				s.logger.Warn("failed to cancel consumer", "consumerTag", sub.consumerTag, "error", err)
			}
			return

		case d, ok := <-deliveries:
			if !ok {
				reason = ErrChannelClosed
				s.logger.Warn("delivery channel closed", "queue", sub.queue)
				return
			}
			s.handleDelivery(ctx, sub, d, handler)
		}
	}
}

// handleDelivery acks on success and nacks with requeue on failure. Empty
// bodies carry nothing to process and are acked so they cannot stall the
// prefetch window.
func (s *Subscriber) handleDelivery(ctx context.Context, sub *Subscription, d amqp.Delivery, handler Handler) {
	if len(d.Body) == 0 {
		s.logger.Warn("dropping empty delivery", "queue", sub.queue, "deliveryTag", d.DeliveryTag)
		if err := d.Ack(false); err != nil {
			s.logger.Error("failed to ack message", "error", err)
		}
		s.metrics.Delivered("dropped")
		return
	}

	s.logger.Debug("received message",
		"queue", sub.queue,
		"deliveryTag", d.DeliveryTag,
		"redelivered", d.Redelivered,
		"bytes", len(d.Body))

	start := time.Now()
	err := invoke(ctx, handler, d.Body)
	s.metrics.ObserveHandler(time.Since(start))

	if err != nil {
		herr := &HandlerError{
			Queue:       sub.queue,
			DeliveryTag: d.DeliveryTag,
			Redelivered: d.Redelivered,
			Err:         err,
		}
		s.logger.Error("error processing message", "error", herr)

		if nackErr := d.Nack(false, true); nackErr != nil {
			s.logger.Error("failed to nack message",
				"error", nackErr,
				"originalError", err)
		}
		s.metrics.Delivered("nack")
		return
	}

	if ackErr := d.Ack(false); ackErr != nil {
		s.logger.Error("failed to ack message", "error", ackErr)
	}
	s.metrics.Delivered("ack")
	s.logger.Debug("message processed and acknowledged", "deliveryTag", d.DeliveryTag)
}

func invoke(ctx context.Context, handler Handler, body []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return handler(ctx, body)
}

func (s *Subscriber) subscribeError(op, queue, routingKey string, err error) *SubscribeError {
	return &SubscribeError{
		Queue:      queue,
		RoutingKey: routingKey,
		Op:         op,
		Err:        err,
		Timestamp:  time.Now(),
	}
}
