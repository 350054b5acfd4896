package shopping

import (
	"context"

	"github.com/glimte/shopbus/contracts"
)

// Events exposes the operations driven by inbound events. Inbound changes
// are not announced back to the customer service.
type Events struct {
	svc *Service
}

// Events returns the service's inbound event operations
func (s *Service) Events() Events {
	return Events{svc: s}
}

// ManageCart adds or removes product in the customer's cart
func (e Events) ManageCart(ctx context.Context, userID string, product contracts.Product, qty int, remove bool) error {
	_, err := e.svc.ManageCart(ctx, userID, product, qty, remove)
	return err
}

// UpdateOrderStatus sets the status of the order stored under id
func (e Events) UpdateOrderStatus(ctx context.Context, id, status string) error {
	_, err := e.svc.UpdateOrderStatus(ctx, id, status)
	return err
}

// DeleteOrder removes the order with the public orderID
func (e Events) DeleteOrder(ctx context.Context, orderID string) error {
	_, err := e.svc.DeleteOrder(ctx, orderID)
	return err
}
