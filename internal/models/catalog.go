package models

import "time"

type Product struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	InStock   bool      `json:"inStock"`
	Image     string    `json:"image,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type CartItem struct {
	ProductID string  `json:"productId"`
	Quantity  float64 `json:"quantity"`
}

// Cart is replaced wholesale on save; there is at most one per owner.
type Cart struct {
	OwnerID   string     `json:"ownerId"`
	Items     []CartItem `json:"items"`
	UpdatedAt time.Time  `json:"updatedAt"`
}
