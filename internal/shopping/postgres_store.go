package shopping

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/glimte/shopbus/contracts"
)

// PostgresStore keeps carts and orders as jsonb documents
type PostgresStore struct {
	Pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{Pool: pool}
}

// EnsureSchema creates the tables if they are missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS carts (
  customer_id text PRIMARY KEY,
  items jsonb NOT NULL DEFAULT '[]'
);
CREATE TABLE IF NOT EXISTS orders (
  id text PRIMARY KEY,
  order_id text NOT NULL UNIQUE,
  customer_id text NOT NULL,
  payload jsonb NOT NULL,
  created_at timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS orders_customer_id_idx ON orders (customer_id);`)
	return err
}

func (s *PostgresStore) Cart(ctx context.Context, customerID string) (*Cart, error) {
	var raw []byte
	err := s.Pool.QueryRow(ctx, `SELECT items FROM carts WHERE customer_id = $1`, customerID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return &Cart{CustomerID: customerID, Items: []contracts.CartItem{}}, nil
	}
	if err != nil {
		return nil, err
	}
	items, err := decodeItems(raw)
	if err != nil {
		return nil, err
	}
	return &Cart{CustomerID: customerID, Items: items}, nil
}

func (s *PostgresStore) UpdateCart(ctx context.Context, customerID string, mutate CartMutation) (*Cart, error) {
	var cart *Cart
	err := pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		items, err := lockCart(ctx, tx, customerID)
		if err != nil {
			return err
		}
		items = mutate(items)
		if err := saveCart(ctx, tx, customerID, items); err != nil {
			return err
		}
		cart = &Cart{CustomerID: customerID, Items: items}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cart, nil
}

func (s *PostgresStore) Checkout(ctx context.Context, customerID string, build OrderBuilder) (*contracts.Order, error) {
	var order *contracts.Order
	err := pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		items, err := lockCart(ctx, tx, customerID)
		if err != nil {
			return err
		}
		o, err := build(items)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("marshal order: %w", err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO orders (id, order_id, customer_id, payload) VALUES ($1, $2, $3, $4)`,
			o.ID, o.OrderID, o.CustomerID, raw); err != nil {
			return err
		}
		if err := saveCart(ctx, tx, customerID, []contracts.CartItem{}); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *PostgresStore) Orders(ctx context.Context, customerID string) ([]contracts.Order, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if customerID == "" {
		rows, err = s.Pool.Query(ctx, `SELECT payload FROM orders ORDER BY created_at, id`)
	} else {
		rows, err = s.Pool.Query(ctx, `SELECT payload FROM orders WHERE customer_id = $1 ORDER BY created_at, id`, customerID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := []contracts.Order{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var o contracts.Order
		if err := json.Unmarshal(raw, &o); err != nil {
			return nil, fmt.Errorf("decode order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s *PostgresStore) UpdateOrderStatus(ctx context.Context, id, status string) (*contracts.Order, error) {
	var raw []byte
	err := s.Pool.QueryRow(ctx, `UPDATE orders SET payload = jsonb_set(payload, '{status}', to_jsonb($2::text))
        WHERE id = $1 RETURNING payload`, id, status).Scan(&raw)
	return scanOrder(raw, err)
}

func (s *PostgresStore) DeleteOrder(ctx context.Context, orderID string) (*contracts.Order, error) {
	var raw []byte
	err := s.Pool.QueryRow(ctx, `DELETE FROM orders WHERE order_id = $1 RETURNING payload`, orderID).Scan(&raw)
	return scanOrder(raw, err)
}

// lockCart makes sure the cart row exists and locks it for the transaction
func lockCart(ctx context.Context, tx pgx.Tx, customerID string) ([]contracts.CartItem, error) {
	if _, err := tx.Exec(ctx, `INSERT INTO carts (customer_id) VALUES ($1) ON CONFLICT (customer_id) DO NOTHING`, customerID); err != nil {
		return nil, err
	}
	var raw []byte
	if err := tx.QueryRow(ctx, `SELECT items FROM carts WHERE customer_id = $1 FOR UPDATE`, customerID).Scan(&raw); err != nil {
		return nil, err
	}
	return decodeItems(raw)
}

func saveCart(ctx context.Context, tx pgx.Tx, customerID string, items []contracts.CartItem) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	_, err = tx.Exec(ctx, `UPDATE carts SET items = $2 WHERE customer_id = $1`, customerID, raw)
	return err
}

func decodeItems(raw []byte) ([]contracts.CartItem, error) {
	items := []contracts.CartItem{}
	if len(raw) == 0 {
		return items, nil
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	return items, nil
}

func scanOrder(raw []byte, err error) (*contracts.Order, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var o contracts.Order
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	return &o, nil
}

var _ Store = (*PostgresStore)(nil)
