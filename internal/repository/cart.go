package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/karim1556/ecom-core/internal/domain/cart"
)

const (
	listCartLinesSQL = `SELECT user_id, product_id, quantity FROM cart_lines
		WHERE user_id = $1 ORDER BY created_at`

	// Repeat adds fold into the existing line.
	upsertCartLineSQL = `INSERT INTO cart_lines (user_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, product_id)
		DO UPDATE SET quantity = cart_lines.quantity + EXCLUDED.quantity, updated_at = now()`

	setCartQuantitySQL = `UPDATE cart_lines SET quantity = $3, updated_at = now()
		WHERE user_id = $1 AND product_id = $2`

	removeCartLineSQL = `DELETE FROM cart_lines WHERE user_id = $1 AND product_id = $2`

	clearCartSQL = `DELETE FROM cart_lines WHERE user_id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL. The table
// keys on (user_id, product_id), so a user holds at most one line per product.
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// ListByUser returns the user's cart lines in insertion order.
func (r *CartRepository) ListByUser(ctx context.Context, userID string) ([]cart.Line, error) {
	rows, err := r.pool.Query(ctx, listCartLinesSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("listing cart lines for %q: %w", userID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Line, error) {
		var l cart.Line
		err := row.Scan(&l.UserID, &l.ProductID, &l.Quantity)
		return l, err
	})
}

// Add inserts a line or folds the quantity into an existing one.
func (r *CartRepository) Add(ctx context.Context, line cart.Line) error {
	_, err := r.pool.Exec(ctx, upsertCartLineSQL, line.UserID, line.ProductID, line.Quantity)
	if err != nil {
		return fmt.Errorf("adding cart line for %q/%q: %w", line.UserID, line.ProductID, err)
	}
	return nil
}

// SetQuantity replaces a line's quantity.
func (r *CartRepository) SetQuantity(ctx context.Context, userID, productID string, qty int) error {
	tag, err := r.pool.Exec(ctx, setCartQuantitySQL, userID, productID, qty)
	if err != nil {
		return fmt.Errorf("setting cart quantity for %q/%q: %w", userID, productID, err)
	}
	if tag.RowsAffected() == 0 {
		return cart.ErrLineNotFound
	}
	return nil
}

// Remove deletes a single line.
func (r *CartRepository) Remove(ctx context.Context, userID, productID string) error {
	_, err := r.pool.Exec(ctx, removeCartLineSQL, userID, productID)
	if err != nil {
		return fmt.Errorf("removing cart line for %q/%q: %w", userID, productID, err)
	}
	return nil
}

// Clear deletes all of the user's cart lines.
func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, clearCartSQL, userID)
	if err != nil {
		return fmt.Errorf("clearing cart for %q: %w", userID, err)
	}
	return nil
}
