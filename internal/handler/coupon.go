package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/karim1556/ecom-core/internal/domain/coupon"
)

// validateCouponRequest checks a code against a cart snapshot without
// consuming a use.
type validateCouponRequest struct {
	Code      string             `json:"code"`
	CartTotal float64            `json:"cartTotal"`
	CartItems []validateCartItem `json:"cartItems"`
}

type validateCartItem struct {
	ID       string  `json:"id"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
	Category string  `json:"category,omitempty"`
}

type validateCouponResponse struct {
	Valid  bool            `json:"valid"`
	Coupon *validateCoupon `json:"coupon,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type validateCoupon struct {
	ID             string  `json:"id"`
	Code           string  `json:"code"`
	DiscountAmount float64 `json:"discountAmount"`
}

// ValidateCoupon runs the pure coupon evaluation against the supplied cart
// snapshot. It never increments the usage counter; rejections come back as
// valid=false with the reason, not as an HTTP error.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req validateCouponRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Code == "" {
		writeError(w, r, http.StatusBadRequest, "code required")
		return
	}

	rule, err := h.coupons.FindByCode(r.Context(), req.Code)
	if err != nil {
		if errors.Is(err, coupon.ErrNotFound) {
			writeJSON(w, r, http.StatusOK, validateCouponResponse{Valid: false, Error: err.Error()})
			return
		}
		respondDomainError(w, r, err)
		return
	}

	items := make([]coupon.Item, len(req.CartItems))
	subtotal := decimal.Zero
	for i, it := range req.CartItems {
		price := decimal.NewFromFloat(it.Price)
		items[i] = coupon.Item{
			ProductID: it.ID,
			Category:  it.Category,
			UnitPrice: price,
			Quantity:  it.Quantity,
		}
		subtotal = subtotal.Add(price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	// Trust the client's stated total when it is present; the items are
	// only needed for eligibility restrictions.
	if req.CartTotal > 0 {
		subtotal = decimal.NewFromFloat(req.CartTotal)
	}

	discount, err := coupon.Evaluate(rule, items, subtotal, time.Now())
	if err != nil {
		writeJSON(w, r, http.StatusOK, validateCouponResponse{Valid: false, Error: err.Error()})
		return
	}

	writeJSON(w, r, http.StatusOK, validateCouponResponse{
		Valid: true,
		Coupon: &validateCoupon{
			ID:             discount.CouponID,
			Code:           discount.Code,
			DiscountAmount: discount.Amount.InexactFloat64(),
		},
	})
}
