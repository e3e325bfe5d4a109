package handler

import (
	"net/http"

	"github.com/karim1556/ecom-core/internal/domain/order"
)

// checkoutRequest places an order from the user's stored cart.
type checkoutRequest struct {
	UserID          string          `json:"userId"`
	CouponCode      string          `json:"couponCode,omitempty"`
	ShippingAddress shippingAddress `json:"shippingAddress"`
}

type shippingAddress struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// checkoutResponse returns the order id and the computed totals.
type checkoutResponse struct {
	OrderID  string  `json:"orderId"`
	Subtotal float64 `json:"subtotal"`
	Shipping float64 `json:"shipping"`
	Tax      float64 `json:"tax"`
	Discount float64 `json:"discount"`
	Total    float64 `json:"total"`
}

// Checkout places an order from the user's current cart, applying the
// optional coupon. Failures abort with no order created.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserID == "" {
		writeError(w, r, http.StatusBadRequest, "userId required")
		return
	}

	result, err := h.checkout.Checkout(r.Context(), order.CheckoutRequest{
		UserID:     req.UserID,
		CouponCode: req.CouponCode,
		Address: order.ShippingAddress{
			Name:       req.ShippingAddress.Name,
			Line1:      req.ShippingAddress.Line1,
			Line2:      req.ShippingAddress.Line2,
			City:       req.ShippingAddress.City,
			State:      req.ShippingAddress.State,
			PostalCode: req.ShippingAddress.PostalCode,
			Country:    req.ShippingAddress.Country,
		},
	})
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, checkoutResponse{
		OrderID:  result.Order.ID,
		Subtotal: result.Subtotal.InexactFloat64(),
		Shipping: result.Shipping.InexactFloat64(),
		Tax:      result.Tax.InexactFloat64(),
		Discount: result.Discount.InexactFloat64(),
		Total:    result.Total.InexactFloat64(),
	})
}
