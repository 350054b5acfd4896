// Package shopping holds the cart and order logic of the shopping service and
// the stores behind it.
package shopping
