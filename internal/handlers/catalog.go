package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/freshbasket/freshbasket/internal/models"
	"github.com/freshbasket/freshbasket/internal/services"
)

type productRequest struct {
	Name    *string  `json:"name"`
	Price   *float64 `json:"price"`
	InStock *bool    `json:"inStock"`
	Image   *string  `json:"image"`
}

func (req productRequest) toInput() services.ProductInput {
	return services.ProductInput{Name: req.Name, Price: req.Price, InStock: req.InStock, Image: req.Image}
}

type productResponse struct {
	Message string          `json:"message"`
	Product *models.Product `json:"product"`
}

func (h *Handlers) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListProducts(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *Handlers) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.GetProduct(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

func (h *Handlers) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	product, err := h.catalog.CreateProduct(r.Context(), requesterFrom(r), req.toInput())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, productResponse{Message: "Product created", Product: product})
}

// UpdateProduct applies a partial update; omitted fields are left unchanged.
func (h *Handlers) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	product, err := h.catalog.UpdateProduct(r.Context(), requesterFrom(r), mux.Vars(r)["id"], req.toInput())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, productResponse{Message: "Product updated", Product: product})
}

func (h *Handlers) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.catalog.DeleteProduct(r.Context(), requesterFrom(r), mux.Vars(r)["id"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Product deleted")
}
