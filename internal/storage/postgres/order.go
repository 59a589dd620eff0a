package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/orvelix/internal/domain/order"
)

const orderColumns = `id, session_id, items, subtotal, shipping, tax, total,
	payment_method, payment_ref, amount_paid, status, created_at`

const (
	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderByRefSQL = `SELECT ` + orderColumns + ` FROM orders WHERE payment_ref = $1`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		ORDER BY created_at DESC, id
		LIMIT $1`

	updateOrderStatusSQL = `UPDATE orders SET status = $2 WHERE id = $1
		RETURNING ` + orderColumns

	paymentRefsSQL = `SELECT payment_ref FROM orders`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. The order items are serialized to JSON for
// storage in the JSONB column.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return errors.Wrap(err, "marshal order items")
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.SessionID, itemsJSON, o.Subtotal, o.Shipping, o.Tax, o.Total,
		o.PaymentMethod, o.PaymentRef, o.AmountPaid, string(o.Status), o.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return order.ErrDuplicatePaymentRef
		}
		return errors.Wrapf(err, "create order %q", o.ID)
	}
	return nil
}

// Get returns the order with id.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	return r.one(ctx, getOrderSQL, id)
}

// GetByPaymentRef returns the order paid with ref.
func (r *OrderRepository) GetByPaymentRef(ctx context.Context, ref string) (*order.Order, error) {
	return r.one(ctx, getOrderByRefSQL, ref)
}

// List returns at most limit orders, newest first.
func (r *OrderRepository) List(ctx context.Context, limit int) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersSQL, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return pgx.CollectRows(rows, scanOrder)
}

// UpdateStatus sets the status of the order with id and returns the result.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status order.Status) (*order.Order, error) {
	return r.one(ctx, updateOrderStatusSQL, id, string(status))
}

// PaymentRefs returns the payment reference of every stored order.
func (r *OrderRepository) PaymentRefs(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, paymentRefsSQL)
	if err != nil {
		return nil, errors.Wrap(err, "list payment refs")
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *OrderRepository) one(ctx context.Context, sql string, args ...any) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query order")
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrap(err, "scan order")
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o         order.Order
		itemsJSON []byte
		status    string
	)
	if err := row.Scan(
		&o.ID, &o.SessionID, &itemsJSON, &o.Subtotal, &o.Shipping, &o.Tax, &o.Total,
		&o.PaymentMethod, &o.PaymentRef, &o.AmountPaid, &status, &o.CreatedAt,
	); err != nil {
		return o, err
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return o, errors.Wrapf(err, "unmarshal items of order %q", o.ID)
	}
	o.Status = order.Status(status)
	o.CreatedAt = o.CreatedAt.UTC()
	return o, nil
}
