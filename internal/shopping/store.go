package shopping

import (
	"context"

	"github.com/glimte/shopbus/contracts"
)

// CartMutation computes the new items of a cart from the current ones
type CartMutation func(items []contracts.CartItem) []contracts.CartItem

// OrderBuilder turns the items of a cart into an order, or rejects them
type OrderBuilder func(items []contracts.CartItem) (*contracts.Order, error)

// Store persists carts and orders. Implementations apply UpdateCart and
// Checkout atomically per customer.
type Store interface {
	// Cart returns the customer's cart, empty when none exists
	Cart(ctx context.Context, customerID string) (*Cart, error)
	UpdateCart(ctx context.Context, customerID string, mutate CartMutation) (*Cart, error)
	// Checkout builds an order from the cart, stores it and empties the cart
	Checkout(ctx context.Context, customerID string, build OrderBuilder) (*contracts.Order, error)
	// Orders lists the customer's orders, or every order when customerID is empty
	Orders(ctx context.Context, customerID string) ([]contracts.Order, error)
	UpdateOrderStatus(ctx context.Context, id, status string) (*contracts.Order, error)
	DeleteOrder(ctx context.Context, orderID string) (*contracts.Order, error)
}
