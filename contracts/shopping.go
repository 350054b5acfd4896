package contracts

// Product is the catalogue entry copied into carts and orders
type Product struct {
	ID       string  `json:"_id"`
	Name     string  `json:"name,omitempty"`
	Desc     string  `json:"desc,omitempty"`
	Banner   string  `json:"banner,omitempty"`
	Type     string  `json:"type,omitempty"`
	Unit     int     `json:"unit,omitempty"`
	Price    float64 `json:"price,omitempty"`
	Supplier string  `json:"suplier,omitempty"`
}

// CartItem is a product with the quantity held
type CartItem struct {
	Product Product `json:"product"`
	Unit    int     `json:"unit"`
}

// Address is the delivery address of an order
type Address struct {
	Street     string `json:"street"`
	PostalCode string `json:"postalCode"`
	City       string `json:"city"`
	Country    string `json:"country"`
}

// Order is a placed order. ID is the storage key used for status updates;
// OrderID is the public identifier used for deletion.
type Order struct {
	ID         string     `json:"_id"`
	OrderID    string     `json:"orderId"`
	CustomerID string     `json:"customerId"`
	Amount     float64    `json:"amount"`
	Status     string     `json:"status"`
	TxnNumber  string     `json:"txnNumber,omitempty"`
	Address    Address    `json:"address"`
	Items      []CartItem `json:"items"`
}

// CartEventData is the data of ADD_TO_CART and REMOVE_FROM_CART
type CartEventData struct {
	UserID  string  `json:"userId"`
	Product Product `json:"product"`
	Qty     int     `json:"qty"`
}

// OrderEventData is the data of UPDATE_ORDER, DELETE_ORDER and CREATE_ORDER
type OrderEventData struct {
	UserID string `json:"userId"`
	Order  Order  `json:"order"`
}
