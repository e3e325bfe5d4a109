package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/karim1556/ecom-core/internal/domain/order"
)

// orderLineResponse is an order line with its frozen unit price.
type orderLineResponse struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

// orderResponse is the full order view.
type orderResponse struct {
	ID         string              `json:"id"`
	UserID     string              `json:"userId"`
	Lines      []orderLineResponse `json:"lines"`
	Subtotal   float64             `json:"subtotal"`
	Shipping   float64             `json:"shipping"`
	Tax        float64             `json:"tax"`
	Discount   float64             `json:"discount"`
	CouponCode string              `json:"couponCode,omitempty"`
	Total      float64             `json:"total"`
	Status     string              `json:"status"`
	CreatedAt  string              `json:"createdAt"`
	UpdatedAt  string              `json:"updatedAt"`
}

func toOrderResponse(o *order.Order) orderResponse {
	lines := make([]orderLineResponse, len(o.Lines))
	for i, l := range o.Lines {
		lines[i] = orderLineResponse{
			ProductID: l.ProductID,
			Name:      l.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice.InexactFloat64(),
		}
	}
	return orderResponse{
		ID:         o.ID,
		UserID:     o.UserID,
		Lines:      lines,
		Subtotal:   o.Subtotal.InexactFloat64(),
		Shipping:   o.Shipping.InexactFloat64(),
		Tax:        o.Tax.InexactFloat64(),
		Discount:   o.Discount.InexactFloat64(),
		CouponCode: o.CouponCode,
		Total:      o.Total.InexactFloat64(),
		Status:     string(o.Status),
		CreatedAt:  o.CreatedAt.Format(timeFormat),
		UpdatedAt:  o.UpdatedAt.Format(timeFormat),
	}
}

const timeFormat = "2006-01-02T15:04:05Z07:00"

// GetOrder returns a single order by ID.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetByID(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toOrderResponse(o))
}

// transitionOrderRequest is the admin status-change input.
type transitionOrderRequest struct {
	Status string `json:"status"`
}

// TransitionOrder moves an order through its lifecycle. The first transition
// into completed decrements tracked stock and consumes the coupon use;
// re-sending completed is a no-op.
func (h *Handler) TransitionOrder(w http.ResponseWriter, r *http.Request) {
	var req transitionOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	to, err := order.ParseStatus(req.Status)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	o, err := h.lifecycle.Transition(r.Context(), chi.URLParam(r, "orderID"), to)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toOrderResponse(o))
}
