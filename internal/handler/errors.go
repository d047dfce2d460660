package handler

import (
	"fmt"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-pricing/internal/domain/auth"
	"github.com/xenking/storefront-pricing/internal/domain/cart"
	"github.com/xenking/storefront-pricing/internal/domain/checkout"
	"github.com/xenking/storefront-pricing/internal/domain/promotion"
	"github.com/xenking/storefront-pricing/pkg/httpmiddleware"
)

// requestError reports a malformed request body or parameter.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

// sentinels maps business sentinels to their HTTP status. The sentinel text
// is the response message, so wrapping context added by services stays out
// of responses.
var sentinels = []struct {
	err    error
	status int
}{
	{auth.ErrUnauthorized, http.StatusUnauthorized},
	{auth.ErrForbidden, http.StatusForbidden},
	{promotion.ErrNotFound, http.StatusNotFound},
	{checkout.ErrCartNotFound, http.StatusNotFound},
	{cart.ErrNotFound, http.StatusNotFound},
	{promotion.ErrInvalidOrExpired, http.StatusBadRequest},
	{checkout.ErrNoItemsToCheckout, http.StatusBadRequest},
	{checkout.ErrPromoCodeRequired, http.StatusBadRequest},
	{promotion.ErrPerUserLimitReached, http.StatusConflict},
	{promotion.ErrDuplicateCode, http.StatusConflict},
}

// classify returns the HTTP status and client message for err. Unknown
// errors map to 500 with a generic message.
func classify(err error) (int, string) {
	var (
		reqErr     *requestError
		lookupErr  *checkout.LookupError
		belowMin   *promotion.BelowMinimumOrderError
		invalid    *promotion.ValidationError
		noProduct  *checkout.ProductNotFoundError
		invalidQty *checkout.InvalidQuantityError
	)
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest, reqErr.Error()
	case errors.As(err, &lookupErr):
		return http.StatusServiceUnavailable, string(lookupErr.Source) + " temporarily unavailable"
	case errors.As(err, &belowMin):
		return http.StatusBadRequest, belowMin.Error()
	case errors.As(err, &invalid):
		return http.StatusBadRequest, invalid.Error()
	case errors.As(err, &noProduct):
		return http.StatusUnprocessableEntity, noProduct.Error()
	case errors.As(err, &invalidQty):
		return http.StatusUnprocessableEntity, invalidQty.Error()
	}
	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return s.status, s.err.Error()
		}
	}
	return http.StatusInternalServerError, "internal server error"
}

// writeError classifies err, logs server side failures and writes the
// {code, message} body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := classify(err)

	lg := zctx.From(r.Context())
	switch {
	case status == http.StatusServiceUnavailable:
		lg.Warn("Dependency unavailable", zap.Error(err))
	case status >= http.StatusInternalServerError:
		lg.Error("Request failed", zap.Error(err))
	case status == http.StatusUnauthorized:
		lg.Debug("Unauthenticated request", zap.Error(err))
	}
	httpmiddleware.WriteError(w, status, msg)
}
