package handler

import (
	"log/slog"
	"net/http"
)

// CreateCheckoutRequest is the optional body of POST /checkout.
type CreateCheckoutRequest struct {
	DiscountCode string `json:"discount_code,omitempty"`
}

// handleCreateCheckout creates a checkout session for the current cart.
// The cart is left untouched whether or not checkout succeeds.
// POST /checkout
func (h *Handler) handleCreateCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateCheckoutRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			h.writeError(w, err)
			return
		}
	}

	result, err := h.checkout.CreateCheckout(ctx, req.DiscountCode)
	if err != nil {
		h.logger.InfoContext(ctx, "checkout not started", slog.String("error", err.Error()))
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, result)
}
