package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/clubos/internal/domain/order"
	"github.com/xenking/clubos/internal/domain/register"
	"github.com/xenking/clubos/internal/domain/scope"
)

// onboardingRequired is the message returned when the user has no tenant.
const onboardingRequired = "onboarding_required"

// writeDomainError converts domain errors to HTTP error responses.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, scope.ErrScopeNotFound):
		writeError(w, http.StatusConflict, onboardingRequired)
		return
	case errors.Is(err, scope.ErrFacilityNotInTenant):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case errors.Is(err, scope.ErrSelectionDisabled):
		writeError(w, http.StatusNotImplemented, err.Error())
		return
	case errors.Is(err, register.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "register session not found")
		return
	case errors.Is(err, register.ErrSessionAlreadyClosed):
		writeError(w, http.StatusConflict, "register session already closed")
		return
	case errors.Is(err, register.ErrInvalidClosingCash):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case errors.Is(err, order.ErrEmptyCart),
		errors.Is(err, order.ErrAmountOutOfRange),
		errors.Is(err, order.ErrTooManyCoupons):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	var priceErr *order.InvalidPriceError
	if errors.As(err, &priceErr) {
		writeError(w, http.StatusUnprocessableEntity, priceErr.Error())
		return
	}

	lg := zctx.From(r.Context())

	var headerErr *order.HeaderInsertError
	if errors.As(err, &headerErr) {
		lg.Warn("Order header not stored", zap.Error(err))
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "order could not be stored, retry")
		return
	}

	var lineErr *order.LineInsertError
	if errors.As(err, &lineErr) {
		lg.Error("Order lines not stored",
			zap.String("order_id", lineErr.OrderID),
			zap.Bool("partial", lineErr.Partial),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, func(e *jx.Encoder) {
			e.ObjStart()
			encodeErrorFields(e, http.StatusInternalServerError, "order lines could not be stored")
			e.FieldStart("orderId")
			e.Str(lineErr.OrderID)
			e.FieldStart("partial")
			e.Bool(lineErr.Partial)
			e.ObjEnd()
		})
		return
	}

	lg.Error("Request failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}
