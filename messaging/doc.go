// Package messaging routes inbound event envelopes to the operations of the
// host service.
//
// Example usage:
//
//	dispatcher := messaging.NewDispatcher()
//	if err := dispatcher.RegisterShopping(service.Events()); err != nil {
//		return err
//	}
//
//	// dispatcher.Dispatch is a rabbitmq.Handler
//	err := subscriber.Run(ctx, channels, "shopping_service", dispatcher.Dispatch)
//
// Dispatch fails only when the body is not an envelope or the bound operation
// fails; both cause the delivery to be requeued. Kinds without a registration
// are dropped, and the delivery is acked.
package messaging
