package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/karim1556/ecom-core/internal/domain/product"
)

// Sentinel errors for cart operations.
var (
	ErrEmptyCart       = errors.New("cart is empty")
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
	ErrLineNotFound    = errors.New("cart line not found")
)

// Line is a single (user, product) entry in a cart.
type Line struct {
	UserID    string
	ProductID string
	Quantity  int
}

// Repository defines persistence for cart lines. Implementations keep at
// most one line per (user, product) pair.
type Repository interface {
	ListByUser(ctx context.Context, userID string) ([]Line, error)
	// Add inserts a line or increases the quantity of an existing one.
	Add(ctx context.Context, line Line) error
	// SetQuantity replaces a line's quantity. Callers pass qty >= 1; lines
	// are removed via Remove, not by setting zero.
	SetQuantity(ctx context.Context, userID, productID string, qty int) error
	Remove(ctx context.Context, userID, productID string) error
	Clear(ctx context.Context, userID string) error
}

// PricedLine is a cart line joined with its product and priced at the
// product's current effective unit price.
type PricedLine struct {
	Product   product.Product
	Quantity  int
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

// PricedCart is a cart priced against the current catalog.
type PricedCart struct {
	UserID   string
	Lines    []PricedLine
	Subtotal decimal.Decimal
}

// Service exposes the cart aggregate: line mutations plus pricing against
// the product catalog.
type Service struct {
	lines    Repository
	products product.Repository
}

// NewService creates a cart Service.
func NewService(lines Repository, products product.Repository) *Service {
	return &Service{lines: lines, products: products}
}

// AddItem adds qty of a product to the user's cart, creating the line or
// increasing an existing one. The product must exist.
func (s *Service) AddItem(ctx context.Context, userID, productID string, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if _, err := s.products.GetByID(ctx, productID); err != nil {
		return errors.Wrap(err, "check product")
	}
	if err := s.lines.Add(ctx, Line{UserID: userID, ProductID: productID, Quantity: qty}); err != nil {
		return errors.Wrap(err, "add cart line")
	}
	return nil
}

// UpdateItem sets the quantity of an existing line. A quantity of zero or
// less removes the line.
func (s *Service) UpdateItem(ctx context.Context, userID, productID string, qty int) error {
	if qty <= 0 {
		return s.RemoveItem(ctx, userID, productID)
	}
	if err := s.lines.SetQuantity(ctx, userID, productID, qty); err != nil {
		return errors.Wrap(err, "set cart quantity")
	}
	return nil
}

// RemoveItem deletes a line from the user's cart.
func (s *Service) RemoveItem(ctx context.Context, userID, productID string) error {
	if err := s.lines.Remove(ctx, userID, productID); err != nil {
		return errors.Wrap(err, "remove cart line")
	}
	return nil
}

// Get returns the user's cart priced at current catalog prices, including
// product-level discounts. The subtotal is the sum of all line totals.
func (s *Service) Get(ctx context.Context, userID string) (*PricedCart, error) {
	lines, err := s.lines.ListByUser(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list cart lines")
	}
	return s.price(ctx, userID, lines)
}

func (s *Service) price(ctx context.Context, userID string, lines []Line) (*PricedCart, error) {
	priced := &PricedCart{UserID: userID, Subtotal: decimal.Zero}
	if len(lines) == 0 {
		return priced, nil
	}

	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	priced.Lines = make([]PricedLine, 0, len(lines))
	for _, l := range lines {
		p, ok := byID[l.ProductID]
		if !ok {
			// Product removed from the catalog after it was carted;
			// skip the line rather than failing the whole cart read.
			continue
		}
		unit := p.EffectivePrice()
		lineTotal := unit.Mul(decimal.NewFromInt(int64(l.Quantity)))
		priced.Lines = append(priced.Lines, PricedLine{
			Product:   p,
			Quantity:  l.Quantity,
			UnitPrice: unit,
			LineTotal: lineTotal,
		})
		priced.Subtotal = priced.Subtotal.Add(lineTotal)
	}
	priced.Subtotal = priced.Subtotal.Round(2)
	return priced, nil
}
