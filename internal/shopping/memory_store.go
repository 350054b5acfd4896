package shopping

import (
	"context"
	"sort"
	"sync"

	"github.com/glimte/shopbus/contracts"
)

// MemoryStore keeps carts and orders in process memory
type MemoryStore struct {
	mu     sync.RWMutex
	carts  map[string][]contracts.CartItem
	orders map[string]contracts.Order
	seq    map[string]int
	next   int
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		carts:  make(map[string][]contracts.CartItem),
		orders: make(map[string]contracts.Order),
		seq:    make(map[string]int),
	}
}

func (s *MemoryStore) Cart(_ context.Context, customerID string) (*Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &Cart{CustomerID: customerID, Items: copyItems(s.carts[customerID])}, nil
}

func (s *MemoryStore) UpdateCart(_ context.Context, customerID string, mutate CartMutation) (*Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := mutate(copyItems(s.carts[customerID]))
	s.carts[customerID] = items
	return &Cart{CustomerID: customerID, Items: copyItems(items)}, nil
}

func (s *MemoryStore) Checkout(_ context.Context, customerID string, build OrderBuilder) (*contracts.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, err := build(copyItems(s.carts[customerID]))
	if err != nil {
		return nil, err
	}

	s.orders[order.ID] = *order
	s.next++
	s.seq[order.ID] = s.next
	s.carts[customerID] = []contracts.CartItem{}

	out := *order
	return &out, nil
}

func (s *MemoryStore) Orders(_ context.Context, customerID string) ([]contracts.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]contracts.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if customerID == "" || o.CustomerID == customerID {
			orders = append(orders, o)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return s.seq[orders[i].ID] < s.seq[orders[j].ID]
	})
	return orders, nil
}

func (s *MemoryStore) UpdateOrderStatus(_ context.Context, id, status string) (*contracts.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	o.Status = status
	s.orders[id] = o
	return &o, nil
}

func (s *MemoryStore) DeleteOrder(_ context.Context, orderID string) (*contracts.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, o := range s.orders {
		if o.OrderID == orderID {
			delete(s.orders, id)
			delete(s.seq, id)
			return &o, nil
		}
	}
	return nil, ErrNotFound
}

func copyItems(items []contracts.CartItem) []contracts.CartItem {
	out := make([]contracts.CartItem, len(items))
	copy(out, items)
	return out
}

var _ Store = (*MemoryStore)(nil)
