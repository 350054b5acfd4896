package shopping

import (
	"github.com/glimte/shopbus/contracts"
)

// Order statuses accepted by UpdateOrderStatus
const (
	StatusCreated   = "created"
	StatusReceived  = "received"
	StatusShipped   = "shipped"
	StatusDelivered = "delivered"
	StatusCancelled = "cancelled"
)

var validStatuses = map[string]struct{}{
	StatusCreated:   {},
	StatusReceived:  {},
	StatusShipped:   {},
	StatusDelivered: {},
	StatusCancelled: {},
}

// ValidStatus reports whether status is one of the order statuses
func ValidStatus(status string) bool {
	_, ok := validStatuses[status]
	return ok
}

// Cart is the set of items a customer is about to order
type Cart struct {
	CustomerID string               `json:"customerId"`
	Items      []contracts.CartItem `json:"items"`
}

// validateAddress requires every address field
func validateAddress(a contracts.Address) error {
	if a.Street == "" || a.City == "" || a.PostalCode == "" || a.Country == "" {
		return ErrInvalidAddress
	}
	return nil
}

// orderAmount sums price times quantity over the items
func orderAmount(items []contracts.CartItem) float64 {
	var amount float64
	for _, item := range items {
		amount += item.Product.Price * float64(item.Unit)
	}
	return amount
}

// applyCartChange sets the quantity of product, adds it when absent, or
// removes it. Removing an absent product leaves the items unchanged.
func applyCartChange(items []contracts.CartItem, product contracts.Product, qty int, remove bool) []contracts.CartItem {
	out := make([]contracts.CartItem, 0, len(items)+1)
	found := false
	for _, item := range items {
		if item.Product.ID == product.ID {
			found = true
			if remove {
				continue
			}
			item.Unit = qty
		}
		out = append(out, item)
	}
	if !found && !remove {
		out = append(out, contracts.CartItem{Product: product, Unit: qty})
	}
	return out
}
