package rabbitmq

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/glimte/shopbus/internal/observability"
)

// DefaultContentType is set on every published message unless overridden
const DefaultContentType = "application/json"

// Publisher sends persistent messages to the exchange declared on a
// ManagedChannel.
type Publisher struct {
	contentType string
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// PublisherOption configures the publisher
type PublisherOption func(*Publisher)

// WithPublisherLogger sets the logger
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithContentType sets the content type of published messages
func WithContentType(contentType string) PublisherOption {
	return func(p *Publisher) {
		p.contentType = contentType
	}
}

// WithPublisherMetrics records publish outcomes
func WithPublisherMetrics(m *observability.Metrics) PublisherOption {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// NewPublisher creates a new publisher
func NewPublisher(options ...PublisherOption) *Publisher {
	p := &Publisher{
		contentType: DefaultContentType,
		logger:      slog.Default(),
	}

	for _, opt := range options {
		opt(p)
	}

	return p
}

// Publish sends body under routingKey. When the broker has paused the
// publisher, Publish returns only after the resume notification, so callers
// are paced. The message itself is never resent.
func (p *Publisher) Publish(ctx context.Context, ch *ManagedChannel, routingKey string, body []byte) error {
	if ch == nil {
		p.metrics.Published(routingKey, "unavailable")
		return p.publishError("", routingKey, ErrChannelUnavailable)
	}

	msg := amqp.Publishing{
		ContentType:  p.contentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now(),
		Body:         body,
	}

	if err := ch.PublishWithContext(
		ctx,
		ch.Exchange(),
		routingKey,
		false, // mandatory
		false, // immediate
		msg,
	); err != nil {
		p.metrics.Published(routingKey, "error")
		p.logger.Error("error publishing message",
			"exchange", ch.Exchange(),
			"routingKey", routingKey,
			"error", err)
		return p.publishError(ch.Exchange(), routingKey, err)
	}

	for wait := ch.backpressure(); wait != nil; wait = ch.backpressure() {
		p.logger.Info("message queued, waiting for drain",
			"exchange", ch.Exchange(),
			"routingKey", routingKey)

		select {
		case <-wait:
		case <-ch.Done():
			p.metrics.Published(routingKey, "error")
			return p.publishError(ch.Exchange(), routingKey, ErrChannelClosed)
		case <-ctx.Done():
			p.metrics.Published(routingKey, "error")
			return p.publishError(ch.Exchange(), routingKey, ctx.Err())
		}
	}

	p.metrics.Published(routingKey, "ok")
	p.logger.Debug("message sent",
		"exchange", ch.Exchange(),
		"routingKey", routingKey,
		"messageId", msg.MessageId,
		"bytes", len(body))

	return nil
}

func (p *Publisher) publishError(exchange, routingKey string, err error) *PublishError {
	return &PublishError{
		Exchange:   exchange,
		RoutingKey: routingKey,
		Err:        err,
		Timestamp:  time.Now(),
	}
}
