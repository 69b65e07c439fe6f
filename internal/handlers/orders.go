package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/freshbasket/freshbasket/internal/models"
	"github.com/freshbasket/freshbasket/internal/services"
)

type orderResponse struct {
	Message string        `json:"message"`
	Order   *models.Order `json:"order"`
}

type placeOrderLine struct {
	ID        string  `json:"_id"`
	ProductID string  `json:"productId"`
	Quantity  float64 `json:"quantity"`
}

type locationRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type placeOrderRequest struct {
	Cart        []placeOrderLine `json:"cart"`
	Items       []placeOrderLine `json:"items"`
	Subtotal    float64          `json:"subtotal"`
	DeliveryFee float64          `json:"deliveryFee"`
	Total       float64          `json:"total"`
	Location    *locationRequest `json:"location"`
	Address     string           `json:"address"`
}

func (req placeOrderRequest) toInput() services.PlaceOrderInput {
	lines := req.Cart
	if len(lines) == 0 {
		lines = req.Items
	}
	input := services.PlaceOrderInput{
		Items:       make([]services.OrderItemInput, 0, len(lines)),
		Subtotal:    req.Subtotal,
		DeliveryFee: req.DeliveryFee,
		Total:       req.Total,
		Address:     req.Address,
	}
	for _, line := range lines {
		productID := line.ProductID
		if productID == "" {
			productID = line.ID
		}
		input.Items = append(input.Items, services.OrderItemInput{ProductID: productID, Quantity: line.Quantity})
	}
	if req.Location != nil {
		input.Location = &services.LocationInput{Latitude: req.Location.Latitude, Longitude: req.Location.Longitude}
	}
	return input
}

// PlaceOrder handles POST /api/orders.
func (h *Handlers) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	order, err := h.orders.PlaceOrder(r.Context(), requesterFrom(r), req.toInput())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, orderResponse{Message: "Order placed successfully", Order: order})
}

func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.CancelOrder(r.Context(), requesterFrom(r), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse{Message: "Order cancelled", Order: order})
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handlers) SetOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	order, err := h.orders.SetStatus(r.Context(), requesterFrom(r), mux.Vars(r)["id"], strings.TrimSpace(req.Status))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse{Message: "Order status updated", Order: order})
}

type deliveryTimeRequest struct {
	DeliveryTime string `json:"deliveryTime"`
}

func (h *Handlers) SetOrderDeliveryTime(w http.ResponseWriter, r *http.Request) {
	var req deliveryTimeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	at, err := time.Parse(time.RFC3339, strings.TrimSpace(req.DeliveryTime))
	if err != nil {
		h.writeError(w, r, fmt.Errorf("%w: deliveryTime must be an RFC 3339 timestamp", services.ErrValidation))
		return
	}

	order, err := h.orders.SetDeliveryTime(r.Context(), requesterFrom(r), mux.Vars(r)["id"], at)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse{Message: "Delivery time updated", Order: order})
}

type archiveResponse struct {
	Message  string `json:"message"`
	Archived int64  `json:"archived"`
}

// ClearHistory archives every delivered or cancelled order.
func (h *Handlers) ClearHistory(w http.ResponseWriter, r *http.Request) {
	count, err := h.orders.ArchiveTerminalOrders(r.Context(), requesterFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, archiveResponse{
		Message:  fmt.Sprintf("Archived %d orders", count),
		Archived: count,
	})
}

func (h *Handlers) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.DeleteOrder(r.Context(), requesterFrom(r), mux.Vars(r)["id"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Order deleted")
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), requesterFrom(r), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orderResponse{Message: "Order fetched", Order: order})
}

// ListOrders serves the admin view. Archived orders are hidden unless
// archived=true or includeArchived=true is passed.
func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	query := services.ListOrdersQuery{}
	values := r.URL.Query()

	if raw := values.Get("archived"); raw != "" {
		archived, err := strconv.ParseBool(raw)
		if err != nil {
			h.writeError(w, r, fmt.Errorf("%w: archived must be true or false", services.ErrValidation))
			return
		}
		query.Archived = &archived
	}
	if raw := values.Get("includeArchived"); raw != "" {
		include, err := strconv.ParseBool(raw)
		if err != nil {
			h.writeError(w, r, fmt.Errorf("%w: includeArchived must be true or false", services.ErrValidation))
			return
		}
		query.IncludeArchived = include
	}

	orders, err := h.orders.ListOrders(r.Context(), requesterFrom(r), query)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handlers) MyOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListMyOrders(r.Context(), requesterFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handlers) UsersSummary(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.orders.UsersSummary(r.Context(), requesterFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (h *Handlers) UserOrders(w http.ResponseWriter, r *http.Request) {
	archivedOnly := false
	if raw := r.URL.Query().Get("archived"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			h.writeError(w, r, fmt.Errorf("%w: archived must be true or false", services.ErrValidation))
			return
		}
		archivedOnly = parsed
	}

	orders, err := h.orders.ListOrdersForOwner(r.Context(), requesterFrom(r), mux.Vars(r)["id"], archivedOnly)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}
