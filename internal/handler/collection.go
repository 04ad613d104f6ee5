package handler

import (
	"net/http"

	"storefront-sync/internal/collection"
	"storefront-sync/internal/model"
)

// AddItemRequest is the body of POST /cart/items, POST /wishlist/items and
// POST /wishlist/toggle. Quantity is ignored for the wishlist.
type AddItemRequest struct {
	ProductID string                 `json:"product_id"`
	VariantID string                 `json:"variant_id,omitempty"`
	Quantity  int                    `json:"quantity,omitempty"`
	Product   *model.ProductSnapshot `json:"product,omitempty"`
	Variant   *model.VariantSnapshot `json:"variant,omitempty"`
}

func (r AddItemRequest) input() collection.AddInput {
	return collection.AddInput{
		ProductID: r.ProductID,
		VariantID: r.VariantID,
		Quantity:  r.Quantity,
		Product:   r.Product,
		Variant:   r.Variant,
	}
}

// UpdateQuantityRequest is the body of PATCH /cart/items/{id}.
type UpdateQuantityRequest struct {
	Quantity *int `json:"quantity"`
}

// ToggleResponse reports whether the item is in the wishlist after a toggle.
type ToggleResponse struct {
	InWishlist bool           `json:"in_wishlist"`
	Wishlist   model.Snapshot `json:"wishlist"`
}

// ContainsResponse reports whether a product and variant are in a collection.
type ContainsResponse struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Contains  bool   `json:"contains"`
}

// handleGetCollection returns the snapshot of a collection.
// GET /cart, GET /wishlist
func (h *Handler) handleGetCollection(c Collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.writeJSON(w, http.StatusOK, c.Snapshot())
	}
}

// handleAddItem adds an item, merging with an existing entry of the same
// product and variant.
// POST /cart/items, POST /wishlist/items
func (h *Handler) handleAddItem(c Collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddItemRequest
		if err := decodeJSON(r, &req); err != nil {
			h.writeError(w, err)
			return
		}

		item, err := c.Add(r.Context(), req.input())
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusCreated, item)
	}
}

// handleUpdateQuantity sets a cart item's quantity. Zero or less removes it.
// PATCH /cart/items/{id}
func (h *Handler) handleUpdateQuantity(w http.ResponseWriter, r *http.Request) {
	itemID := r.PathValue("id")

	var req UpdateQuantityRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Quantity == nil {
		h.writeError(w, model.NewValidationError("quantity", "required"))
		return
	}

	if err := h.cart.UpdateQuantity(r.Context(), itemID, *req.Quantity); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.cart.Snapshot())
}

// handleRemoveItem removes one item.
// DELETE /cart/items/{id}, DELETE /wishlist/items/{id}
func (h *Handler) handleRemoveItem(c Collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := c.Remove(r.Context(), r.PathValue("id")); err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, c.Snapshot())
	}
}

// handleClear empties a collection.
// DELETE /cart, DELETE /wishlist
func (h *Handler) handleClear(c Collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := c.Clear(r.Context()); err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, c.Snapshot())
	}
}

// handleRefresh re-reads the authoritative list.
// POST /cart/refresh, POST /wishlist/refresh
func (h *Handler) handleRefresh(c Collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := c.Refresh(r.Context()); err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, c.Snapshot())
	}
}

// handleContains looks up one product and variant.
// GET /cart/contains?product_id=&variant_id=, GET /wishlist/contains?...
func (h *Handler) handleContains(c Collection) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		productID, variantID := q.Get("product_id"), q.Get("variant_id")
		if productID == "" {
			h.writeError(w, model.NewValidationError("product_id", "required"))
			return
		}
		h.writeJSON(w, http.StatusOK, ContainsResponse{
			ProductID: productID,
			VariantID: variantID,
			Contains:  c.Contains(productID, variantID),
		})
	}
}

// handleToggle adds the item to the wishlist, or removes it if present.
// POST /wishlist/toggle
func (h *Handler) handleToggle(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	in, err := h.wishlist.Toggle(r.Context(), req.input())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, ToggleResponse{InWishlist: in, Wishlist: h.wishlist.Snapshot()})
}
