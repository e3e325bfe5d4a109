package product

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// InsufficientStockError indicates a stock subtraction would drive a tracked
// product's quantity below zero.
type InsufficientStockError struct {
	ProductID string
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s (requested %d)", e.ProductID, e.Requested)
}

// DefaultLowStockThreshold is used when a product has no explicit threshold.
const DefaultLowStockThreshold = 5

// Product represents a catalog item available for purchase.
type Product struct {
	ID                string
	Name              string
	Price             decimal.Decimal
	DiscountPercent   decimal.Decimal
	Category          string
	StockQuantity     int
	LowStockThreshold int
	TrackStock        bool
}

var hundred = decimal.NewFromInt(100)

// EffectivePrice returns the unit price after the product-level discount:
// price * (1 - discount_percent/100), rounded to 2 decimal places.
// A zero discount percent leaves the price untouched.
func (p Product) EffectivePrice() decimal.Decimal {
	if p.DiscountPercent.IsZero() {
		return p.Price
	}
	factor := hundred.Sub(p.DiscountPercent).Div(hundred)
	return p.Price.Mul(factor).Round(2)
}

// StockOp selects the direction of a stock adjustment.
type StockOp string

const (
	StockAdd      StockOp = "add"
	StockSubtract StockOp = "subtract"
)

// Stock is a read-only snapshot of a product's inventory state.
type Stock struct {
	Quantity  int
	Tracked   bool
	Threshold int
}

// Low reports whether the tracked quantity has fallen to or below the
// low-stock threshold.
func (s Stock) Low() bool {
	return s.Tracked && s.Quantity <= s.Threshold
}

// Repository defines catalog reads and the single atomic stock mutation.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	GetStock(ctx context.Context, id string) (*Stock, error)

	// AdjustStock applies a single atomic conditional update to the stored
	// quantity and returns the new value. Subtractions that would drive a
	// tracked quantity negative fail with *InsufficientStockError and leave
	// the row unchanged. Untracked products accept any subtraction.
	AdjustStock(ctx context.Context, id string, qty int, op StockOp) (int, error)
}
