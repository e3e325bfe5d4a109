// Package handler exposes the storefront and admin HTTP API.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/karim1556/ecom-core/internal/domain/cart"
	"github.com/karim1556/ecom-core/internal/domain/coupon"
	"github.com/karim1556/ecom-core/internal/domain/order"
	"github.com/karim1556/ecom-core/internal/domain/product"
)

// Handler wires the domain services to HTTP routes.
type Handler struct {
	products  product.Repository
	coupons   coupon.Repository
	carts     *cart.Service
	checkout  *order.CheckoutService
	lifecycle *order.Lifecycle
	orders    order.Repository
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	products product.Repository,
	coupons coupon.Repository,
	carts *cart.Service,
	checkout *order.CheckoutService,
	lifecycle *order.Lifecycle,
	orders order.Repository,
) *Handler {
	return &Handler{
		products:  products,
		coupons:   coupons,
		carts:     carts,
		checkout:  checkout,
		lifecycle: lifecycle,
		orders:    orders,
	}
}

// Routes returns the API router. The admin subtree carries the API key
// requirement; storefront routes are open.
func (h *Handler) Routes(security *Security) chi.Router {
	r := chi.NewRouter()

	r.Get("/products", h.ListProducts)
	r.Get("/products/{productID}", h.GetProduct)
	r.Get("/products/{productID}/stock", h.GetStock)

	r.Route("/cart/{userID}", func(r chi.Router) {
		r.Get("/", h.GetCart)
		r.Post("/items", h.AddCartItem)
		r.Put("/items/{productID}", h.UpdateCartItem)
		r.Delete("/items/{productID}", h.RemoveCartItem)
	})

	r.Post("/checkout", h.Checkout)
	r.Post("/coupons/validate", h.ValidateCoupon)
	r.Get("/orders/{orderID}", h.GetOrder)

	r.Route("/admin", func(r chi.Router) {
		r.Use(security.RequireAPIKey)
		r.Post("/stock/adjust", h.AdjustStock)
		r.Post("/orders/{orderID}/status", h.TransitionOrder)
	})

	return r
}

// errorResponse is the JSON body for all error replies.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zctx.From(r.Context()).Error("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, r, status, errorResponse{Code: status, Message: message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}
