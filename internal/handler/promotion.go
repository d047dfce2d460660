package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/storefront-pricing/internal/domain/checkout"
)

// ListPromotions handles GET /api/promotions. Administrators may pass
// ?all=1 to include inactive and out-of-window promotions.
func (h *Handler) ListPromotions(w http.ResponseWriter, r *http.Request) {
	all := r.URL.Query().Get("all") == "1"

	promos, err := h.promotions.List(r.Context(), caller(r), all)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Arr(func(e *jx.Encoder) {
			for i := range promos {
				encodePromotion(e, &promos[i])
			}
		})
	})
}

// ApplyPromotion handles POST /api/promotions/apply.
func (h *Handler) ApplyPromotion(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	body, err := decodeApplyBody(data)
	if err != nil {
		writeError(w, r, err)
		return
	}

	app, err := h.checkout.ApplyPromotion(r.Context(), checkout.ApplyRequest{
		UserID:    caller(r).UserID,
		PromoCode: body.PromoCode,
		CartID:    body.CartID,
		Items:     body.Items,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeApplication(e, app) })
}

// CreatePromotion handles POST /api/promotions.
func (h *Handler) CreatePromotion(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	fields, err := decodePromotionFields(data)
	if err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.promotions.Create(r.Context(), caller(r), fields)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodePromotion(e, p) })
}

// UpdatePromotion handles PUT /api/promotions/{promoId}. Omitted fields keep
// their current values.
func (h *Handler) UpdatePromotion(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	fields, err := decodePromotionFields(data)
	if err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.promotions.Update(r.Context(), caller(r), chi.URLParam(r, "promoId"), fields)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodePromotion(e, p) })
}

// DeletePromotion handles DELETE /api/promotions/{promoId}.
func (h *Handler) DeletePromotion(w http.ResponseWriter, r *http.Request) {
	if err := h.promotions.Delete(r.Context(), caller(r), chi.URLParam(r, "promoId")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("message", func(e *jx.Encoder) { e.Str("Promotion deleted") })
		})
	})
}
