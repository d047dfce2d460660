package httpmiddleware

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RouteContext installs an empty chi routing context before the router runs.
// chi fills the existing context instead of allocating its own, so outer
// middleware can read the matched pattern once the handler returns.
func RouteContext() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if chi.RouteContext(r.Context()) != nil {
				next.ServeHTTP(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), chi.RouteCtxKey, chi.NewRouteContext())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RoutePattern returns the chi pattern matched for r, e.g.
// "/api/promotions/{promoId}". Unrouted requests yield "".
func RoutePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return ""
	}
	return rctx.RoutePattern()
}
