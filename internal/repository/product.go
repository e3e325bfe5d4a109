package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/karim1556/ecom-core/internal/domain/product"
)

const (
	productColumns = `id, name, price, discount_percent, category, stock_quantity, low_stock_threshold, track_stock`

	listProductsSQL = `SELECT ` + productColumns + ` FROM products ORDER BY id`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	getStockSQL = `SELECT stock_quantity, track_stock, low_stock_threshold FROM products WHERE id = $1`

	addStockSQL = `UPDATE products SET stock_quantity = stock_quantity + $2
		WHERE id = $1 RETURNING stock_quantity`

	// Conditional decrement: zero affected rows means the guard rejected the
	// subtraction, so concurrent callers can never drive the quantity negative.
	subtractStockSQL = `UPDATE products SET stock_quantity = stock_quantity - $2
		WHERE id = $1 AND stock_quantity >= $2 RETURNING stock_quantity`

	productExistsSQL = `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// List returns all products from the catalog ordered by ID.
func (r *ProductRepository) List(ctx context.Context) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, listProductsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// GetStock returns the current inventory snapshot for a product.
func (r *ProductRepository) GetStock(ctx context.Context, id string) (*product.Stock, error) {
	var s product.Stock
	err := r.pool.QueryRow(ctx, getStockSQL, id).Scan(&s.Quantity, &s.Tracked, &s.Threshold)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting stock for %q: %w", id, err)
	}
	return &s, nil
}

// AdjustStock applies a single atomic conditional update to the stored
// quantity. A rejected subtraction is mapped to *InsufficientStockError; a
// missing product to product.ErrNotFound.
func (r *ProductRepository) AdjustStock(ctx context.Context, id string, qty int, op product.StockOp) (int, error) {
	if qty <= 0 {
		return 0, errors.Errorf("adjust quantity must be positive, got %d", qty)
	}

	query := addStockSQL
	if op == product.StockSubtract {
		query = subtractStockSQL
	}

	var newQty int
	err := r.pool.QueryRow(ctx, query, id, qty).Scan(&newQty)
	if err == nil {
		return newQty, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("adjusting stock for %q: %w", id, err)
	}

	// Zero rows: either the product is missing or the guard rejected the
	// subtraction. Distinguish so callers get the right error kind.
	var exists bool
	if err := r.pool.QueryRow(ctx, productExistsSQL, id).Scan(&exists); err != nil {
		return 0, fmt.Errorf("checking product %q: %w", id, err)
	}
	if !exists {
		return 0, product.ErrNotFound
	}
	return 0, &product.InsufficientStockError{ProductID: id, Requested: qty}
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var p product.Product
	err := row.Scan(
		&p.ID, &p.Name, &p.Price, &p.DiscountPercent, &p.Category,
		&p.StockQuantity, &p.LowStockThreshold, &p.TrackStock,
	)
	return p, err
}
