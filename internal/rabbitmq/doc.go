// Package rabbitmq provides the RabbitMQ transport used by the shopping service.
//
// This package includes:
//   - ConnectionManager: Holds the single broker connection and dials it lazily with a bounded retry budget
//   - ChannelManager: Holds one channel per connection and declares the direct exchange on it
//   - Publisher: Sends persistent messages and paces callers while the broker applies backpressure
//   - Subscriber: Consumes a private queue with prefetch 1 and manual acknowledgment
//
// Connections and channels are never reopened in the background. A lost
// connection or channel is dropped and the next caller that needs one creates
// its replacement.
package rabbitmq
