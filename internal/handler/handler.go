// Package handler exposes the pricing engine over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront-pricing/internal/domain/auth"
	"github.com/xenking/storefront-pricing/internal/domain/checkout"
	"github.com/xenking/storefront-pricing/internal/domain/order"
	"github.com/xenking/storefront-pricing/internal/domain/promotion"
	"github.com/xenking/storefront-pricing/pkg/httpmiddleware"
)

// CheckoutService prices checkouts and promotion applications.
type CheckoutService interface {
	Checkout(ctx context.Context, req checkout.CheckoutRequest) (*checkout.Quote, error)
	Summary(ctx context.Context, userID, shippingOption string) (*checkout.Quote, error)
	ApplyPromotion(ctx context.Context, req checkout.ApplyRequest) (*checkout.Application, error)
}

// PromotionService lists and administers promotions.
type PromotionService interface {
	List(ctx context.Context, caller auth.Identity, all bool) ([]promotion.Promotion, error)
	Create(ctx context.Context, caller auth.Identity, f promotion.Fields) (*promotion.Promotion, error)
	Update(ctx context.Context, caller auth.Identity, id string, f promotion.Fields) (*promotion.Promotion, error)
	Delete(ctx context.Context, caller auth.Identity, id string) error
}

// OrderService confirms orders.
type OrderService interface {
	Confirm(ctx context.Context, req order.ConfirmRequest) (*order.Order, error)
}

var (
	_ CheckoutService  = (*checkout.Service)(nil)
	_ PromotionService = (*promotion.Service)(nil)
	_ OrderService     = (*order.Service)(nil)
)

// Handler serves the /api routes.
type Handler struct {
	checkout   CheckoutService
	promotions PromotionService
	orders     OrderService
	security   *SecurityHandler
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	checkouts CheckoutService,
	promotions PromotionService,
	orders OrderService,
	security *SecurityHandler,
) *Handler {
	return &Handler{
		checkout:   checkouts,
		promotions: promotions,
		orders:     orders,
		security:   security,
	}
}

// Mount registers the API under /api on r.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.With(h.security.Optional).Get("/promotions", h.ListPromotions)

		r.Group(func(r chi.Router) {
			r.Use(h.security.Require)

			r.Post("/checkout", h.Checkout)
			r.Get("/checkout/summary", h.CheckoutSummary)

			r.Post("/promotions/apply", h.ApplyPromotion)
			r.Post("/promotions", h.CreatePromotion)
			r.Put("/promotions/{promoId}", h.UpdatePromotion)
			r.Delete("/promotions/{promoId}", h.DeletePromotion)

			r.Post("/orders", h.ConfirmOrder)
		})
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpmiddleware.WriteError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpmiddleware.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

// caller returns the identity installed by the security middleware.
func caller(r *http.Request) auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}

// Checkout handles POST /api/checkout.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	body, err := decodeOrderBody(data)
	if err != nil {
		writeError(w, r, err)
		return
	}

	q, err := h.checkout.Checkout(r.Context(), checkout.CheckoutRequest{
		UserID:         caller(r).UserID,
		Items:          body.Items,
		AddressID:      body.AddressID,
		PaymentMethod:  body.PaymentMethod,
		ShippingOption: body.ShippingOption,
		PromoCode:      body.PromoCode,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeQuote(e, q) })
}

// CheckoutSummary handles GET /api/checkout/summary.
func (h *Handler) CheckoutSummary(w http.ResponseWriter, r *http.Request) {
	q, err := h.checkout.Summary(r.Context(), caller(r).UserID, r.URL.Query().Get("shippingOption"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCartSummary(e, q) })
}

// ConfirmOrder handles POST /api/orders.
func (h *Handler) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	body, err := decodeOrderBody(data)
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.Confirm(r.Context(), order.ConfirmRequest{
		UserID:         caller(r).UserID,
		Items:          body.Items,
		AddressID:      body.AddressID,
		PaymentMethod:  body.PaymentMethod,
		ShippingOption: body.ShippingOption,
		PromoCode:      body.PromoCode,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
}
