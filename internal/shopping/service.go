package shopping

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/glimte/shopbus/contracts"
)

// EventPublisher sends an envelope to another service
type EventPublisher interface {
	PublishEvent(ctx context.Context, routingKey string, env *contracts.Envelope) error
}

// Service implements the shopping operations over a Store
type Service struct {
	store       Store
	publisher   EventPublisher
	customerKey string
	newID       func() string
	logger      *slog.Logger
}

// Option configures the service
type Option func(*Service)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithPublisher publishes order changes to the customer service under
// routingKey.
func WithPublisher(p EventPublisher, routingKey string) Option {
	return func(s *Service) {
		s.publisher = p
		s.customerKey = routingKey
	}
}

// WithIDGenerator replaces uuid generation for order identifiers
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		s.newID = newID
	}
}

// NewService creates a shopping service
func NewService(store Store, options ...Option) *Service {
	s := &Service{
		store:  store,
		newID:  uuid.NewString,
		logger: slog.Default(),
	}

	for _, opt := range options {
		opt(s)
	}

	return s
}

// ManageCart sets the quantity of product in the customer's cart, adding it
// when absent, or removes it when remove is true.
func (s *Service) ManageCart(ctx context.Context, customerID string, product contracts.Product, qty int, remove bool) (*Cart, error) {
	if product.ID == "" {
		return nil, ErrMissingProduct
	}

	cart, err := s.store.UpdateCart(ctx, customerID, func(items []contracts.CartItem) []contracts.CartItem {
		return applyCartChange(items, product, qty, remove)
	})
	if err != nil {
		return nil, fmt.Errorf("update cart of %s: %w", customerID, err)
	}

	s.logger.Debug("cart updated",
		"customerId", customerID,
		"productId", product.ID,
		"qty", qty,
		"remove", remove,
		"items", len(cart.Items))
	return cart, nil
}

// Cart returns the customer's cart
func (s *Service) Cart(ctx context.Context, customerID string) (*Cart, error) {
	return s.store.Cart(ctx, customerID)
}

// PlaceOrder turns the customer's cart into an order with status created and
// empties the cart. The order is announced to the customer service.
func (s *Service) PlaceOrder(ctx context.Context, customerID, txnNumber string, address contracts.Address) (*contracts.Order, error) {
	if txnNumber == "" {
		return nil, ErrMissingTxnNumber
	}
	if err := validateAddress(address); err != nil {
		return nil, err
	}

	order, err := s.store.Checkout(ctx, customerID, func(items []contracts.CartItem) (*contracts.Order, error) {
		if len(items) == 0 {
			return nil, ErrEmptyCart
		}
		return &contracts.Order{
			ID:         s.newID(),
			OrderID:    s.newID(),
			CustomerID: customerID,
			Amount:     orderAmount(items),
			Status:     StatusCreated,
			TxnNumber:  txnNumber,
			Address:    address,
			Items:      items,
		}, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order placed",
		"customerId", customerID,
		"orderId", order.OrderID,
		"amount", order.Amount)

	s.announce(ctx, customerID, order, contracts.EventCreateOrder)
	return order, nil
}

// Orders lists the customer's orders, or all orders for an empty customerID
func (s *Service) Orders(ctx context.Context, customerID string) ([]contracts.Order, error) {
	return s.store.Orders(ctx, customerID)
}

// UpdateOrderStatus moves the order with storage id to status
func (s *Service) UpdateOrderStatus(ctx context.Context, id, status string) (*contracts.Order, error) {
	if !ValidStatus(status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	order, err := s.store.UpdateOrderStatus(ctx, id, status)
	if err != nil {
		return nil, fmt.Errorf("update order %s: %w", id, err)
	}

	s.logger.Info("order status updated", "id", id, "orderId", order.OrderID, "status", status)
	return order, nil
}

// ChangeOrderStatus is UpdateOrderStatus followed by an UPDATE_ORDER
// announcement to the customer service.
func (s *Service) ChangeOrderStatus(ctx context.Context, id, status string) (*contracts.Order, error) {
	order, err := s.UpdateOrderStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	s.announce(ctx, order.CustomerID, order, contracts.EventUpdateOrder)
	return order, nil
}

// DeleteOrder removes the order with the public orderID
func (s *Service) DeleteOrder(ctx context.Context, orderID string) (*contracts.Order, error) {
	order, err := s.store.DeleteOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("delete order %s: %w", orderID, err)
	}

	s.logger.Info("order deleted", "orderId", orderID)
	return order, nil
}

// RemoveOrder is DeleteOrder followed by a DELETE_ORDER announcement
func (s *Service) RemoveOrder(ctx context.Context, orderID string) (*contracts.Order, error) {
	order, err := s.DeleteOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	s.announce(ctx, order.CustomerID, order, contracts.EventDeleteOrder)
	return order, nil
}

// OrderPayload builds the envelope announcing order to the customer service
func (s *Service) OrderPayload(userID string, order *contracts.Order, kind contracts.EventKind) (*contracts.Envelope, error) {
	if order == nil {
		return nil, fmt.Errorf("no order available: %w", ErrNotFound)
	}
	return contracts.NewEnvelope(kind, contracts.OrderEventData{UserID: userID, Order: *order})
}

// announce publishes an order change. The change is already stored, so a
// failed publish is logged and not returned.
func (s *Service) announce(ctx context.Context, userID string, order *contracts.Order, kind contracts.EventKind) {
	if s.publisher == nil {
		return
	}

	env, err := s.OrderPayload(userID, order, kind)
	if err != nil {
		s.logger.Error("failed to build order payload", "event", kind, "error", err)
		return
	}

	if err := s.publisher.PublishEvent(ctx, s.customerKey, env); err != nil {
		s.logger.Error("failed to publish order event",
			"event", kind,
			"orderId", order.OrderID,
			"routingKey", s.customerKey,
			"error", err)
	}
}
