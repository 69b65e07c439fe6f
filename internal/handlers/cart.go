package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/freshbasket/freshbasket/internal/models"
)

type cartRequest struct {
	Items []struct {
		ProductID string  `json:"productId"`
		Quantity  float64 `json:"quantity"`
	} `json:"items"`
}

func (h *Handlers) GetCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.carts.GetCart(r.Context(), requesterFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// ReplaceCart overwrites the caller's cart with the submitted items.
func (h *Handlers) ReplaceCart(w http.ResponseWriter, r *http.Request) {
	var req cartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	items := make([]models.CartItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, models.CartItem{ProductID: item.ProductID, Quantity: item.Quantity})
	}

	view, err := h.carts.ReplaceCart(r.Context(), requesterFrom(r), items)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	view, err := h.carts.RemoveItem(r.Context(), requesterFrom(r), mux.Vars(r)["productId"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handlers) ClearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.ClearCart(r.Context(), requesterFrom(r)); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Cart cleared")
}
