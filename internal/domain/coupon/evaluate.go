package coupon

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Evaluate checks a coupon rule against priced cart items and computes the
// discount. It is pure: it never mutates the rule or touches storage, so the
// caller decides when (if ever) the usage counter moves.
//
// Validation short-circuits in a fixed order: active, expiry, usage limit,
// minimum order amount, eligibility. The discount is computed over the
// eligible portion of the cart only: when the rule restricts by product or
// category, lines outside the restriction contribute nothing.
func Evaluate(rule *Rule, items []Item, subtotal decimal.Decimal, now time.Time) (*Discount, error) {
	if !rule.Active {
		return nil, ErrInactive
	}
	if rule.ExpiresAt != nil && !now.Before(*rule.ExpiresAt) {
		return nil, ErrExpired
	}
	if rule.UsageLimit > 0 && rule.UsedCount >= rule.UsageLimit {
		return nil, ErrUsageLimitReached
	}
	if !rule.MinOrderAmount.IsZero() && subtotal.LessThan(rule.MinOrderAmount) {
		return nil, ErrMinimumNotMet
	}

	eligible := eligibleSubtotal(rule, items, subtotal)
	if rule.Restricted() && eligible.IsZero() {
		return nil, ErrNotApplicable
	}

	amount, err := discountFor(rule, eligible)
	if err != nil {
		return nil, err
	}

	return &Discount{
		CouponID: rule.ID,
		Code:     rule.Code,
		Amount:   amount.Round(2),
	}, nil
}

// discountFor dispatches on the rule's discount type over the eligible
// subtotal. Each variant has its own evaluation function.
func discountFor(rule *Rule, eligible decimal.Decimal) (decimal.Decimal, error) {
	switch rule.DiscountType {
	case DiscountPercentage:
		return applyPercentage(rule, eligible), nil
	case DiscountFixed:
		return applyFixed(rule, eligible), nil
	default:
		return decimal.Zero, errors.Errorf("unsupported discount type: %q", rule.DiscountType)
	}
}

func applyPercentage(rule *Rule, eligible decimal.Decimal) decimal.Decimal {
	amount := eligible.Mul(rule.Value).Div(hundred)
	if !rule.MaxDiscount.IsZero() {
		amount = decimal.Min(amount, rule.MaxDiscount)
	}
	return floorAtZero(amount)
}

func applyFixed(rule *Rule, eligible decimal.Decimal) decimal.Decimal {
	return floorAtZero(decimal.Min(rule.Value, eligible))
}

// eligibleSubtotal returns the cart value the discount applies to. An
// unrestricted rule covers the full subtotal; a restricted one only the
// lines matching the allow-list.
func eligibleSubtotal(rule *Rule, items []Item, subtotal decimal.Decimal) decimal.Decimal {
	if !rule.Restricted() {
		return subtotal
	}

	sum := decimal.Zero
	for _, item := range items {
		if lineEligible(rule, item) {
			line := item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))
			sum = sum.Add(line)
		}
	}
	return sum
}

func lineEligible(rule *Rule, item Item) bool {
	for _, id := range rule.Products {
		if id == item.ProductID {
			return true
		}
	}
	for _, c := range rule.Categories {
		if c == item.Category {
			return true
		}
	}
	return false
}

func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
