package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/karim1556/ecom-core/internal/domain/cart"
)

// cartLineResponse is a priced cart line.
type cartLineResponse struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
	LineTotal float64 `json:"lineTotal"`
}

// cartResponse is a priced cart.
type cartResponse struct {
	UserID   string             `json:"userId"`
	Lines    []cartLineResponse `json:"lines"`
	Subtotal float64            `json:"subtotal"`
}

func toCartResponse(c *cart.PricedCart) cartResponse {
	lines := make([]cartLineResponse, len(c.Lines))
	for i, l := range c.Lines {
		lines[i] = cartLineResponse{
			ProductID: l.Product.ID,
			Name:      l.Product.Name,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice.InexactFloat64(),
			LineTotal: l.LineTotal.InexactFloat64(),
		}
	}
	return cartResponse{UserID: c.UserID, Lines: lines, Subtotal: c.Subtotal.InexactFloat64()}
}

// GetCart returns the user's cart priced at current catalog prices.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	c, err := h.carts.Get(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toCartResponse(c))
}

// addCartItemRequest adds quantity of a product to the cart.
type addCartItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// AddCartItem creates a cart line or increases an existing one.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var req addCartItemRequest
	if !decodeBody(w, r, &req) {
		return
	}

	userID := chi.URLParam(r, "userID")
	if err := h.carts.AddItem(r.Context(), userID, req.ProductID, req.Quantity); err != nil {
		respondDomainError(w, r, err)
		return
	}
	h.respondCart(w, r, userID)
}

// updateCartItemRequest replaces a line's quantity.
type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

// UpdateCartItem sets a line's quantity; zero or less removes the line.
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	var req updateCartItemRequest
	if !decodeBody(w, r, &req) {
		return
	}

	userID := chi.URLParam(r, "userID")
	productID := chi.URLParam(r, "productID")
	if err := h.carts.UpdateItem(r.Context(), userID, productID, req.Quantity); err != nil {
		respondDomainError(w, r, err)
		return
	}
	h.respondCart(w, r, userID)
}

// RemoveCartItem deletes a line from the cart.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	productID := chi.URLParam(r, "productID")
	if err := h.carts.RemoveItem(r.Context(), userID, productID); err != nil {
		respondDomainError(w, r, err)
		return
	}
	h.respondCart(w, r, userID)
}

func (h *Handler) respondCart(w http.ResponseWriter, r *http.Request, userID string) {
	c, err := h.carts.Get(r.Context(), userID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toCartResponse(c))
}
