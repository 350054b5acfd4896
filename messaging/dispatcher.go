package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/glimte/shopbus/contracts"
)

// EventFunc handles one decoded envelope
type EventFunc func(ctx context.Context, env *contracts.Envelope) error

// MiddlewareFunc processes envelopes before they reach the registered EventFunc
type MiddlewareFunc func(ctx context.Context, env *contracts.Envelope, next EventFunc) error

// ShoppingOperations are the business operations bound to inbound events
type ShoppingOperations interface {
	ManageCart(ctx context.Context, userID string, product contracts.Product, qty int, remove bool) error
	UpdateOrderStatus(ctx context.Context, id, status string) error
	DeleteOrder(ctx context.Context, orderID string) error
}

// Dispatcher routes envelopes to handlers by event kind
type Dispatcher struct {
	handlers   map[contracts.EventKind]EventFunc
	mu         sync.RWMutex
	logger     *slog.Logger
	middleware []MiddlewareFunc
}

// DispatcherOption configures the Dispatcher
type DispatcherOption func(*Dispatcher)

// WithDispatcherLogger sets the logger
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithMiddleware adds middleware to the dispatcher
func WithMiddleware(middleware ...MiddlewareFunc) DispatcherOption {
	return func(d *Dispatcher) {
		d.middleware = append(d.middleware, middleware...)
	}
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(options ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[contracts.EventKind]EventFunc),
		logger:   slog.Default(),
	}

	for _, opt := range options {
		opt(d)
	}

	return d
}

// Register binds fn to kind. Each kind has at most one handler.
func (d *Dispatcher) Register(kind contracts.EventKind, fn EventFunc) error {
	if kind == "" {
		return fmt.Errorf("event kind cannot be empty")
	}
	if fn == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.handlers[kind]; exists {
		return fmt.Errorf("handler already registered for %s", kind)
	}
	d.handlers[kind] = fn

	d.logger.Debug("registered event handler", "event", kind)
	return nil
}

// Kinds returns the registered event kinds in sorted order
func (d *Dispatcher) Kinds() []contracts.EventKind {
	d.mu.RLock()
	defer d.mu.RUnlock()

	kinds := make([]contracts.EventKind, 0, len(d.handlers))
	for k := range d.handlers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Dispatch decodes payload and runs the handler registered for its kind.
// Kinds without a handler return nil.
func (d *Dispatcher) Dispatch(ctx context.Context, payload []byte) error {
	env, err := contracts.DecodeEnvelope(payload)
	if err != nil {
		return err
	}

	d.mu.RLock()
	handler, ok := d.handlers[env.Event]
	d.mu.RUnlock()

	if !ok {
		d.logger.Debug("ignoring event without handler", "event", env.Event, "known", env.Event.Known())
		return nil
	}

	return d.chain(handler)(ctx, env)
}

// chain wraps handler so the first middleware runs outermost
func (d *Dispatcher) chain(handler EventFunc) EventFunc {
	for i := len(d.middleware) - 1; i >= 0; i-- {
		mw := d.middleware[i]
		next := handler
		handler = func(ctx context.Context, env *contracts.Envelope) error {
			return mw(ctx, env, next)
		}
	}
	return handler
}

// RegisterShopping binds the cart and order events to ops. CREATE_ORDER is
// emitted by the shopping service and has no inbound operation.
func (d *Dispatcher) RegisterShopping(ops ShoppingOperations) error {
	if ops == nil {
		return fmt.Errorf("shopping operations cannot be nil")
	}

	cart := func(remove bool) EventFunc {
		return func(ctx context.Context, env *contracts.Envelope) error {
			var data contracts.CartEventData
			if err := env.DecodeData(&data); err != nil {
				return err
			}
			return ops.ManageCart(ctx, data.UserID, data.Product, data.Qty, remove)
		}
	}

	registrations := []struct {
		kind contracts.EventKind
		fn   EventFunc
	}{
		{contracts.EventAddToCart, cart(false)},
		{contracts.EventRemoveFromCart, cart(true)},
		{contracts.EventUpdateOrder, func(ctx context.Context, env *contracts.Envelope) error {
			var data contracts.OrderEventData
			if err := env.DecodeData(&data); err != nil {
				return err
			}
			return ops.UpdateOrderStatus(ctx, data.Order.ID, data.Order.Status)
		}},
		{contracts.EventDeleteOrder, func(ctx context.Context, env *contracts.Envelope) error {
			var data contracts.OrderEventData
			if err := env.DecodeData(&data); err != nil {
				return err
			}
			return ops.DeleteOrder(ctx, data.Order.OrderID)
		}},
	}

	for _, r := range registrations {
		if err := d.Register(r.kind, r.fn); err != nil {
			return err
		}
	}
	return nil
}

// LoggingMiddleware logs every dispatched event with its outcome
func LoggingMiddleware(logger *slog.Logger) MiddlewareFunc {
	return func(ctx context.Context, env *contracts.Envelope, next EventFunc) error {
		start := time.Now()
		err := next(ctx, env)
		if err != nil {
			logger.Error("event handler failed",
				"event", env.Event,
				"duration", time.Since(start),
				"error", err)
			return err
		}
		logger.Info("event handled",
			"event", env.Event,
			"duration", time.Since(start))
		return nil
	}
}
