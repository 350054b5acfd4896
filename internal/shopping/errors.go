package shopping

import "errors"

var (
	ErrNotFound         = errors.New("shopping: not found")
	ErrInvalidStatus    = errors.New("shopping: invalid order status")
	ErrInvalidAddress   = errors.New("shopping: address must include street, city, postalCode and country")
	ErrMissingTxnNumber = errors.New("shopping: transaction number is required")
	ErrEmptyCart        = errors.New("shopping: cart is empty")
	ErrMissingProduct   = errors.New("shopping: product id is required")
)
