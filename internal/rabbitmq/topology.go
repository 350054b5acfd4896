package rabbitmq

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// ExchangeKindDirect routes by exact routing-key match
const ExchangeKindDirect = "direct"

// ExchangeDeclaration defines an exchange to be declared
type ExchangeDeclaration struct {
	Name       string
	Kind       string
	Durable    bool
	AutoDelete bool
	Arguments  amqp.Table
}

// QueueDeclaration defines a queue to be declared
type QueueDeclaration struct {
	Name       string
	Durable    bool
	AutoDelete bool
	Exclusive  bool
	Arguments  amqp.Table
}

// Binding defines a queue-to-exchange binding
type Binding struct {
	Queue      string
	Exchange   string
	RoutingKey string
	Arguments  amqp.Table
}

// DirectExchange is the durable direct exchange shared by all services
func DirectExchange(name string) ExchangeDeclaration {
	return ExchangeDeclaration{
		Name:    name,
		Kind:    ExchangeKindDirect,
		Durable: true,
	}
}

// PrivateQueue is a broker-named queue that lives only as long as the channel
// that declared it.
func PrivateQueue() QueueDeclaration {
	return QueueDeclaration{
		Name:       "",
		Durable:    false,
		AutoDelete: true,
		Exclusive:  true,
	}
}

// declareExchange declares an exchange on the given channel
func declareExchange(ch Channel, exchange ExchangeDeclaration) error {
	return ch.ExchangeDeclare(
		exchange.Name,
		exchange.Kind,
		exchange.Durable,
		exchange.AutoDelete,
		false, // internal
		false, // no-wait
		exchange.Arguments,
	)
}

// declareQueue declares a queue on the given channel
func declareQueue(ch Channel, queue QueueDeclaration) (amqp.Queue, error) {
	return ch.QueueDeclare(
		queue.Name,
		queue.Durable,
		queue.AutoDelete,
		queue.Exclusive,
		false, // no-wait
		queue.Arguments,
	)
}

// bindQueue binds a queue to an exchange on the given channel
func bindQueue(ch Channel, binding Binding) error {
	return ch.QueueBind(
		binding.Queue,
		binding.RoutingKey,
		binding.Exchange,
		false, // no-wait
		binding.Arguments,
	)
}
