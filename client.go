// Copyright 2024 Mmate Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package shopbus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/glimte/shopbus/contracts"
	"github.com/glimte/shopbus/internal/observability"
	"github.com/glimte/shopbus/internal/rabbitmq"
	"github.com/glimte/shopbus/internal/reliability"
)

// Channel is a broker channel bound to the client's exchange
type Channel = rabbitmq.ManagedChannel

// Handler processes one delivery body. A returned error requeues it.
type Handler = rabbitmq.Handler

// ConnectionStateListener is notified of broker connection changes
type ConnectionStateListener = rabbitmq.ConnectionStateListener

// Client provides the main entry point for shopbus. It owns one connection
// and one channel, both created lazily and replaced after failures.
type Client struct {
	connections *rabbitmq.ConnectionManager
	channels    *rabbitmq.ChannelManager
	publisher   *rabbitmq.Publisher
	subscriber  *rabbitmq.Subscriber
	logger      *slog.Logger
	exchange    string

	mu     sync.RWMutex
	closed bool
}

// NewClient creates a client for the direct exchange at url. No connection
// is opened until a channel is needed.
func NewClient(url, exchange string, options ...ClientOption) *Client {
	cfg := &clientConfig{
		logger:         slog.Default(),
		attempts:       rabbitmq.DefaultConnectAttempts,
		reconnectDelay: rabbitmq.DefaultReconnectDelay,
		prefetch:       1,
	}

	for _, opt := range options {
		opt(cfg)
	}

	connOpts := []rabbitmq.ConnectionOption{
		rabbitmq.WithLogger(cfg.logger),
		rabbitmq.WithMaxAttempts(cfg.attempts),
		rabbitmq.WithReconnectDelay(cfg.reconnectDelay),
		rabbitmq.WithConnectionMetrics(cfg.metrics),
	}
	if cfg.dial != nil {
		connOpts = append(connOpts, rabbitmq.WithDialer(cfg.dial))
	}
	if cfg.sleep != nil {
		connOpts = append(connOpts, rabbitmq.WithSleep(cfg.sleep))
	}

	connections := rabbitmq.NewConnectionManager(url, connOpts...)
	if cfg.metrics != nil {
		connections.AddStateListener(cfg.metrics)
	}

	return &Client{
		connections: connections,
		channels:    rabbitmq.NewChannelManager(connections, exchange, rabbitmq.WithChannelLogger(cfg.logger)),
		publisher: rabbitmq.NewPublisher(
			rabbitmq.WithPublisherLogger(cfg.logger),
			rabbitmq.WithPublisherMetrics(cfg.metrics),
		),
		subscriber: rabbitmq.NewSubscriber(
			rabbitmq.WithPrefetchCount(cfg.prefetch),
			rabbitmq.WithSubscriberLogger(cfg.logger),
			rabbitmq.WithSubscriberMetrics(cfg.metrics),
		),
		logger:   cfg.logger,
		exchange: exchange,
	}
}

// EnsureChannel returns the open channel, reconnecting if needed
func (c *Client) EnsureChannel(ctx context.Context) (*Channel, error) {
	if c.isClosed() {
		return nil, ErrClientClosed
	}
	return c.channels.EnsureChannel(ctx)
}

// Publish sends body to the exchange under routingKey on ch
func (c *Client) Publish(ctx context.Context, ch *Channel, routingKey string, body []byte) error {
	if c.isClosed() {
		return &rabbitmq.PublishError{
			Exchange:   c.exchange,
			RoutingKey: routingKey,
			Err:        ErrClientClosed,
			Timestamp:  time.Now(),
		}
	}
	return c.publisher.Publish(ctx, ch, routingKey, body)
}

// PublishEvent marshals env and publishes it on the current channel
func (c *Client) PublishEvent(ctx context.Context, routingKey string, env *contracts.Envelope) error {
	body, err := env.Marshal()
	if err != nil {
		return err
	}

	ch, err := c.EnsureChannel(ctx)
	if err != nil {
		return err
	}
	return c.Publish(ctx, ch, routingKey, body)
}

// Subscribe consumes routingKey until ctx ends, resubscribing whenever the
// channel is replaced. It returns nil when ctx ends, or the error that kept
// it from getting a channel.
func (c *Client) Subscribe(ctx context.Context, routingKey string, handler Handler) error {
	if c.isClosed() {
		return ErrClientClosed
	}
	return c.subscriber.Run(ctx, c.channels, routingKey, handler)
}

// IsConnected reports whether the broker connection is open
func (c *Client) IsConnected() bool {
	return c.connections.IsConnected()
}

// AddStateListener registers a listener for connection changes
func (c *Client) AddStateListener(listener ConnectionStateListener) {
	c.connections.AddStateListener(listener)
}

// Close closes the channel, then the connection. Errors are logged and not
// returned.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	if err := c.channels.Close(); err != nil {
		c.logger.Error("failed to close channel", "error", err)
	}
	if err := c.connections.Close(); err != nil {
		c.logger.Error("failed to close connection", "error", err)
	}
	c.logger.Info("client closed")
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// clientConfig holds client configuration
type clientConfig struct {
	logger         *slog.Logger
	metrics        *observability.Metrics
	attempts       int
	reconnectDelay time.Duration
	prefetch       int
	dial           rabbitmq.DialFunc
	sleep          reliability.SleepFunc
}

// ClientOption configures the client
type ClientOption func(*clientConfig)

// WithLogger sets the logger for all components
func WithLogger(logger *slog.Logger) ClientOption {
	return func(cfg *clientConfig) {
		cfg.logger = logger
	}
}

// WithMetrics records publish, delivery and connection metrics
func WithMetrics(m *observability.Metrics) ClientOption {
	return func(cfg *clientConfig) {
		cfg.metrics = m
	}
}

// WithConnectRetry sets the dial budget and the delay between attempts
func WithConnectRetry(attempts int, delay time.Duration) ClientOption {
	return func(cfg *clientConfig) {
		cfg.attempts = attempts
		cfg.reconnectDelay = delay
	}
}

// WithPrefetchCount sets the subscriber prefetch count
func WithPrefetchCount(count int) ClientOption {
	return func(cfg *clientConfig) {
		cfg.prefetch = count
	}
}

// WithDialer replaces the amqp091-go dialer
func WithDialer(dial rabbitmq.DialFunc) ClientOption {
	return func(cfg *clientConfig) {
		cfg.dial = dial
	}
}

// WithSleep replaces the wait between dial attempts
func WithSleep(sleep reliability.SleepFunc) ClientOption {
	return func(cfg *clientConfig) {
		cfg.sleep = sleep
	}
}
