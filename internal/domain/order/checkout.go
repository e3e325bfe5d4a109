package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/karim1556/ecom-core/internal/domain/cart"
	"github.com/karim1556/ecom-core/internal/domain/coupon"
	"github.com/karim1556/ecom-core/internal/domain/product"
)

// OutOfStockError is the advisory checkout-time rejection for a line whose
// tracked stock cannot cover the requested quantity. The authoritative check
// is the conditional decrement at fulfillment time.
type OutOfStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("product %s out of stock (requested %d, available %d)",
		e.ProductID, e.Requested, e.Available)
}

// PricingConfig carries the storefront's shipping and tax parameters.
type PricingConfig struct {
	// ShippingFee is the flat fee charged below the free-shipping threshold.
	ShippingFee decimal.Decimal
	// FreeShippingOver waives the fee once the subtotal exceeds it.
	FreeShippingOver decimal.Decimal
	// TaxPercent is applied to the subtotal.
	TaxPercent decimal.Decimal
}

// CheckoutRequest holds the input for placing an order. The cart lines come
// from the user's stored cart, not the request.
type CheckoutRequest struct {
	UserID     string
	CouponCode string
	Address    ShippingAddress
}

// CheckoutResult holds the order id and computed totals of a placed order.
type CheckoutResult struct {
	Order    *Order
	Subtotal decimal.Decimal
	Shipping decimal.Decimal
	Tax      decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

// CheckoutService orchestrates order placement: cart pricing, advisory stock
// validation, coupon evaluation, total computation, and order persistence.
// It mutates neither stock nor coupon usage; both are deferred to the
// completed transition so abandoned orders cost nothing.
type CheckoutService struct {
	carts    *cart.Service
	cartRepo cart.Repository
	products product.Repository
	coupons  coupon.Repository
	orders   Repository
	pricing  PricingConfig
	now      func() time.Time
}

// NewCheckoutService creates a CheckoutService with the required domain
// dependencies.
func NewCheckoutService(
	carts *cart.Service,
	cartRepo cart.Repository,
	products product.Repository,
	coupons coupon.Repository,
	orders Repository,
	pricing PricingConfig,
) *CheckoutService {
	return &CheckoutService{
		carts:    carts,
		cartRepo: cartRepo,
		products: products,
		coupons:  coupons,
		orders:   orders,
		pricing:  pricing,
		now:      time.Now,
	}
}

// Checkout places an order from the user's current cart. Any failure aborts
// the whole operation with no order persisted. On success the order is
// created with status pending and the cart is cleared.
func (s *CheckoutService) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	priced, err := s.carts.Get(ctx, req.UserID)
	if err != nil {
		return nil, errors.Wrap(err, "price cart")
	}
	if len(priced.Lines) == 0 {
		return nil, cart.ErrEmptyCart
	}

	// Advisory stock check. Non-atomic relative to other requests; a fast
	// user-facing rejection only. Fulfillment re-checks authoritatively.
	for _, line := range priced.Lines {
		stock, err := s.products.GetStock(ctx, line.Product.ID)
		if err != nil {
			return nil, errors.Wrapf(err, "check stock for %s", line.Product.ID)
		}
		if stock.Tracked && stock.Quantity < line.Quantity {
			return nil, &OutOfStockError{
				ProductID: line.Product.ID,
				Requested: line.Quantity,
				Available: stock.Quantity,
			}
		}
	}

	subtotal := priced.Subtotal

	// Coupon: any evaluator rejection aborts checkout, never a silent
	// fallback to full price.
	discountAmount := decimal.Zero
	var couponID, couponCode string
	if req.CouponCode != "" {
		rule, err := s.coupons.FindByCode(ctx, req.CouponCode)
		if err != nil {
			return nil, err
		}
		items := make([]coupon.Item, len(priced.Lines))
		for i, line := range priced.Lines {
			items[i] = coupon.Item{
				ProductID: line.Product.ID,
				Category:  line.Product.Category,
				UnitPrice: line.UnitPrice,
				Quantity:  line.Quantity,
			}
		}
		discount, err := coupon.Evaluate(rule, items, subtotal, s.now())
		if err != nil {
			return nil, err
		}
		discountAmount = discount.Amount
		couponID = discount.CouponID
		couponCode = discount.Code
	}

	shipping := s.shippingFor(subtotal)
	tax := subtotal.Mul(s.pricing.TaxPercent).Div(decimal.NewFromInt(100)).Round(2)

	// Total = subtotal + shipping + tax - discount, clamped at zero.
	total := subtotal.Add(shipping).Add(tax).Sub(discountAmount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	total = total.Round(2)

	// Freeze effective unit prices into the order lines.
	lines := make([]Line, len(priced.Lines))
	for i, line := range priced.Lines {
		lines[i] = Line{
			ProductID: line.Product.ID,
			Name:      line.Product.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		}
	}

	o := &Order{
		ID:         uuid.New().String(),
		UserID:     req.UserID,
		Lines:      lines,
		Subtotal:   subtotal,
		Shipping:   shipping,
		Tax:        tax,
		Discount:   discountAmount,
		CouponID:   couponID,
		CouponCode: couponCode,
		Total:      total,
		Status:     StatusPending,
		Address:    req.Address,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	// The order is the durable outcome. A failed cart clear leaves stale
	// lines the user can fix, so it must not fail the placed order.
	if err := s.cartRepo.Clear(ctx, req.UserID); err != nil {
		zctx.From(ctx).Warn("clear cart after checkout",
			zap.String("user_id", req.UserID),
			zap.String("order_id", o.ID),
			zap.Error(err),
		)
	}

	return &CheckoutResult{
		Order:    o,
		Subtotal: subtotal,
		Shipping: shipping,
		Tax:      tax,
		Discount: discountAmount,
		Total:    total,
	}, nil
}

func (s *CheckoutService) shippingFor(subtotal decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(s.pricing.FreeShippingOver) {
		return decimal.Zero
	}
	return s.pricing.ShippingFee
}
