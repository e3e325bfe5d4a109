package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/karim1556/ecom-core/internal/domain/cart"
	"github.com/karim1556/ecom-core/internal/domain/coupon"
	"github.com/karim1556/ecom-core/internal/domain/order"
	"github.com/karim1556/ecom-core/internal/domain/product"
)

// respondDomainError maps domain errors onto HTTP statuses: validation
// failures to 4xx with the reason verbatim, everything unrecognized to a
// logged generic 500.
func respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, cart.ErrEmptyCart):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, cart.ErrInvalidQuantity):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, cart.ErrLineNotFound),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, coupon.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, coupon.ErrInactive),
		errors.Is(err, coupon.ErrExpired),
		errors.Is(err, coupon.ErrUsageLimitReached),
		errors.Is(err, coupon.ErrMinimumNotMet),
		errors.Is(err, coupon.ErrNotApplicable):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	default:
		var (
			oosErr *order.OutOfStockError
			insErr *product.InsufficientStockError
			trnErr *order.InvalidTransitionError
			fulErr *order.FulfillmentError
		)
		switch {
		case errors.As(err, &oosErr):
			writeError(w, r, http.StatusConflict, oosErr.Error())
		case errors.As(err, &fulErr):
			writeError(w, r, http.StatusConflict, fulErr.Error())
		case errors.As(err, &insErr):
			writeError(w, r, http.StatusConflict, insErr.Error())
		case errors.As(err, &trnErr):
			writeError(w, r, http.StatusConflict, trnErr.Error())
		default:
			zctx.From(r.Context()).Error("request failed", zap.Error(err))
			writeError(w, r, http.StatusInternalServerError, "internal error")
		}
	}
}
