package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/karim1556/ecom-core/internal/domain/product"
)

// productResponse is the storefront view of a catalog item. Prices are
// plain JSON numbers; the effective price already includes the
// product-level discount.
type productResponse struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Price           float64 `json:"price"`
	DiscountPercent float64 `json:"discountPercent,omitempty"`
	EffectivePrice  float64 `json:"effectivePrice"`
	Category        string  `json:"category,omitempty"`
}

func toProductResponse(p product.Product) productResponse {
	return productResponse{
		ID:              p.ID,
		Name:            p.Name,
		Price:           p.Price.InexactFloat64(),
		DiscountPercent: p.DiscountPercent.InexactFloat64(),
		EffectivePrice:  p.EffectivePrice().InexactFloat64(),
		Category:        p.Category,
	}
}

// ListProducts returns every product in the catalog.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		respondDomainError(w, r, err)
		return
	}

	out := make([]productResponse, len(products))
	for i, p := range products {
		out[i] = toProductResponse(p)
	}
	writeJSON(w, r, http.StatusOK, out)
}

// GetProduct returns a single product by ID.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toProductResponse(*p))
}

// stockResponse reports a product's inventory snapshot.
type stockResponse struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Tracked   bool   `json:"tracked"`
	Threshold int    `json:"threshold"`
	Low       bool   `json:"low"`
}

// GetStock returns the current stock snapshot for a product.
func (h *Handler) GetStock(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "productID")
	s, err := h.products.GetStock(r.Context(), id)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, stockResponse{
		ProductID: id,
		Quantity:  s.Quantity,
		Tracked:   s.Tracked,
		Threshold: s.Threshold,
		Low:       s.Low(),
	})
}

// adjustStockRequest is the admin stock mutation input.
type adjustStockRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Operation string `json:"operation"`
}

// AdjustStock applies an atomic add or subtract to a product's stock.
func (h *Handler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	var req adjustStockRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var op product.StockOp
	switch req.Operation {
	case string(product.StockAdd):
		op = product.StockAdd
	case string(product.StockSubtract):
		op = product.StockSubtract
	default:
		writeError(w, r, http.StatusBadRequest, "operation must be \"add\" or \"subtract\"")
		return
	}
	if req.Quantity <= 0 {
		writeError(w, r, http.StatusBadRequest, "quantity must be greater than 0")
		return
	}

	newQty, err := h.products.AdjustStock(r.Context(), req.ProductID, req.Quantity, op)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"productId": req.ProductID,
		"quantity":  newQty,
	})
}
