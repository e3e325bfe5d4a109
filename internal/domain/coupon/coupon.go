package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage applies a percentage-based discount to the
	// eligible subtotal, optionally capped by MaxDiscount.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed applies a fixed monetary discount capped at the
	// eligible subtotal.
	DiscountFixed DiscountType = "fixed"
)

// Rejection reasons returned by Evaluate and the repository, ordered the way
// validation short-circuits.
var (
	ErrNotFound          = errors.New("coupon not found")
	ErrInactive          = errors.New("coupon is inactive")
	ErrExpired           = errors.New("coupon expired")
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
	ErrMinimumNotMet     = errors.New("minimum order amount not met")
	ErrNotApplicable     = errors.New("coupon not applicable to cart items")
)

// Rule defines a coupon's discount behaviour and eligibility constraints.
// At most one of Products and Categories restricts eligibility; both empty
// means the coupon applies to every cart line.
type Rule struct {
	ID             string
	Code           string
	DiscountType   DiscountType
	Value          decimal.Decimal
	MinOrderAmount decimal.Decimal // zero means no minimum
	MaxDiscount    decimal.Decimal // zero means no cap; meaningful for percentage
	UsageLimit     int             // zero means unlimited
	UsedCount      int
	Active         bool
	ExpiresAt      *time.Time
	Products       []string
	Categories     []string
}

// Restricted reports whether the rule carries a product or category
// eligibility restriction.
func (r *Rule) Restricted() bool {
	return len(r.Products) > 0 || len(r.Categories) > 0
}

// Discount holds the computed discount for a coupon application.
type Discount struct {
	CouponID string
	Code     string
	Amount   decimal.Decimal
}

// Item represents a priced cart line for discount calculation purposes.
type Item struct {
	ProductID string
	Category  string
	UnitPrice decimal.Decimal
	Quantity  int
}

// CanonicalCode returns the stored form of a coupon code: trimmed and
// upper-cased. Lookups are case-insensitive.
func CanonicalCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Repository provides lookup and the atomic usage mutation for coupon rules.
type Repository interface {
	// FindByCode matches codes case-insensitively. Returns ErrNotFound
	// when no coupon exists for the code.
	FindByCode(ctx context.Context, code string) (*Rule, error)

	// IncrementUsage applies a single atomic conditional increment guarded
	// by used_count < usage_limit (or an unset limit) and returns the new
	// count. Fails with ErrUsageLimitReached when the guard rejects the
	// update, so two concurrent redemptions cannot both pass the last slot.
	IncrementUsage(ctx context.Context, couponID string) (int, error)
}
