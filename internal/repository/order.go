package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/karim1556/ecom-core/internal/domain/coupon"
	"github.com/karim1556/ecom-core/internal/domain/order"
	"github.com/karim1556/ecom-core/internal/domain/product"
)

const (
	orderColumns = `id, user_id, lines, subtotal, shipping, tax, discount,
		coupon_id, coupon_code, total, status, address, created_at, updated_at`

	createOrderSQL = `INSERT INTO orders
		(id, user_id, lines, subtotal, shipping, tax, discount, coupon_id, coupon_code, total, status, address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	updateOrderStatusSQL = `UPDATE orders SET status = $2, updated_at = now()
		WHERE id = $1 AND status = ANY($3)
		RETURNING ` + orderColumns

	orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`

	// Fulfillment statements, all run inside one transaction.
	completeOrderSQL = `UPDATE orders SET status = 'completed', updated_at = now()
		WHERE id = $1 AND status IN ('pending', 'processing')`

	getTrackStockSQL = `SELECT track_stock FROM products WHERE id = $1`

	decrementStockSQL = `UPDATE products SET stock_quantity = stock_quantity - $2
		WHERE id = $1 AND stock_quantity >= $2
		RETURNING stock_quantity, low_stock_threshold`
)

var (
	_ order.Repository = (*OrderRepository)(nil)
	_ order.Fulfiller  = (*OrderRepository)(nil)
)

// OrderRepository implements order.Repository and order.Fulfiller backed by
// PostgreSQL. Order lines and the shipping address live in JSONB columns.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order with its lines in a single insert.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	linesJSON, err := json.Marshal(o.Lines)
	if err != nil {
		return fmt.Errorf("marshaling order lines: %w", err)
	}
	addressJSON, err := json.Marshal(o.Address)
	if err != nil {
		return fmt.Errorf("marshaling order address: %w", err)
	}

	err = r.pool.QueryRow(ctx, createOrderSQL,
		o.ID, o.UserID, linesJSON, o.Subtotal, o.Shipping, o.Tax, o.Discount,
		o.CouponID, o.CouponCode, o.Total, string(o.Status), addressJSON,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// GetByID returns a single order by its identifier.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// UpdateStatus conditionally moves an order between statuses. Zero affected
// rows is mapped to order.ErrStaleStatus (or ErrNotFound for a missing id).
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from []order.Status, to order.Status) (*order.Order, error) {
	fromStrs := make([]string, len(from))
	for i, s := range from {
		fromStrs[i] = string(s)
	}

	rows, err := r.pool.Query(ctx, updateOrderStatusSQL, id, string(to), fromStrs)
	if err != nil {
		return nil, fmt.Errorf("updating status of order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err == nil {
		return &o, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("updating status of order %q: %w", id, err)
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, orderExistsSQL, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("checking order %q: %w", id, err)
	}
	if !exists {
		return nil, order.ErrNotFound
	}
	return nil, order.ErrStaleStatus
}

// Fulfill commits the completed transition in one transaction: the status
// flip, a conditional stock decrement per tracked line, and the coupon usage
// increment. Any rejected statement aborts the transaction, leaving the
// order, stock, and coupon untouched.
//
// The status flip is itself conditional on the prior status, so a concurrent
// or retried completion matches zero rows and returns order.ErrStaleStatus
// instead of decrementing twice.
func (r *OrderRepository) Fulfill(ctx context.Context, o *order.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning fulfillment of order %q: %w", o.ID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, completeOrderSQL, o.ID)
	if err != nil {
		return fmt.Errorf("completing order %q: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrStaleStatus
	}

	for _, line := range o.Lines {
		if err := r.decrementLine(ctx, tx, line); err != nil {
			return err
		}
	}

	if o.CouponID != "" {
		var used int
		err := tx.QueryRow(ctx, incrementUsageSQL, o.CouponID).Scan(&used)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return coupon.ErrUsageLimitReached
			}
			return fmt.Errorf("incrementing usage for coupon %q: %w", o.CouponID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing fulfillment of order %q: %w", o.ID, err)
	}
	return nil
}

// decrementLine subtracts a line's quantity from tracked stock. Untracked
// products are skipped entirely.
func (r *OrderRepository) decrementLine(ctx context.Context, tx pgx.Tx, line order.Line) error {
	var tracked bool
	err := tx.QueryRow(ctx, getTrackStockSQL, line.ProductID).Scan(&tracked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return product.ErrNotFound
		}
		return fmt.Errorf("checking product %q: %w", line.ProductID, err)
	}
	if !tracked {
		return nil
	}

	var qty, threshold int
	err = tx.QueryRow(ctx, decrementStockSQL, line.ProductID, line.Quantity).Scan(&qty, &threshold)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &product.InsufficientStockError{ProductID: line.ProductID, Requested: line.Quantity}
		}
		return fmt.Errorf("decrementing stock for %q: %w", line.ProductID, err)
	}

	if qty <= threshold {
		zctx.From(ctx).Warn("product low on stock",
			zap.String("product_id", line.ProductID),
			zap.Int("quantity", qty),
			zap.Int("threshold", threshold),
		)
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o           order.Order
		linesJSON   []byte
		addressJSON []byte
		status      string
	)
	err := row.Scan(
		&o.ID, &o.UserID, &linesJSON, &o.Subtotal, &o.Shipping, &o.Tax, &o.Discount,
		&o.CouponID, &o.CouponCode, &o.Total, &status, &addressJSON,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}
	o.Status = order.Status(status)
	if err := json.Unmarshal(linesJSON, &o.Lines); err != nil {
		return o, fmt.Errorf("unmarshaling order lines: %w", err)
	}
	if err := json.Unmarshal(addressJSON, &o.Address); err != nil {
		return o, fmt.Errorf("unmarshaling order address: %w", err)
	}
	return o, nil
}
