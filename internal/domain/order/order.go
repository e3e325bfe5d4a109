package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested order does not exist.
var ErrNotFound = errors.New("order not found")

// Status is an order's position in the fulfillment lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// ParseStatus validates an incoming status string.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusProcessing, StatusCompleted, StatusCancelled:
		return Status(s), nil
	default:
		return "", errors.Errorf("unknown order status: %q", s)
	}
}

// transitions is the explicit table of legal status changes. Completed and
// cancelled are terminal; completed additionally allows the identity
// transition so retried fulfillment requests are a no-op instead of an error.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusCompleted, StatusCancelled},
	StatusProcessing: {StatusCompleted, StatusCancelled},
	StatusCompleted:  {StatusCompleted},
	StatusCancelled:  {},
}

// CanTransition reports whether moving from s to next is legal.
func (s Status) CanTransition(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// InvalidTransitionError reports an illegal status change attempt.
type InvalidTransitionError struct {
	OrderID string
	From    Status
	To      Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s: invalid transition %s -> %s", e.OrderID, e.From, e.To)
}

// Line is an order line item. UnitPrice is the effective price frozen at
// checkout time; later catalog changes never touch it.
type Line struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Total returns unit price times quantity.
func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order is a placed customer order. Invariant: Total = Subtotal + Shipping +
// Tax - Discount, clamped at zero.
type Order struct {
	ID         string
	UserID     string
	Lines      []Line
	Subtotal   decimal.Decimal
	Shipping   decimal.Decimal
	Tax        decimal.Decimal
	Discount   decimal.Decimal
	CouponID   string
	CouponCode string
	Total      decimal.Decimal
	Status     Status
	Address    ShippingAddress
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ShippingAddress is the delivery destination captured with the order.
type ShippingAddress struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create persists a new order with its lines in a single transaction.
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)

	// UpdateStatus conditionally moves an order from one of the given
	// statuses to the target, returning the updated order. When the row is
	// no longer in any of the from statuses, it returns ErrStaleStatus so
	// the caller can re-read and decide.
	UpdateStatus(ctx context.Context, id string, from []Status, to Status) (*Order, error)
}

// ErrStaleStatus signals a conditional status update matched zero rows
// because a concurrent request moved the order first.
var ErrStaleStatus = errors.New("order status changed concurrently")

// Fulfiller commits the completed transition atomically: the status change,
// per-line tracked stock decrements, and the coupon usage increment either
// all persist or none do.
type Fulfiller interface {
	Fulfill(ctx context.Context, o *Order) error
}
