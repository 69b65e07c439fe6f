package catalog

import (
	"testing"

	"github.com/freshbasket/freshbasket/internal/models"
)

func TestValidator_ValidateProduct(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		product *models.Product
		wantErr bool
	}{
		{
			name:    "valid product",
			product: &models.Product{Name: "Tomatoes", Price: 40, InStock: true, Image: "/uploads/tomatoes.jpg"},
		},
		{
			name:    "free product without image",
			product: &models.Product{Name: "Sample", Price: 0},
		},
		{
			name:    "missing name",
			product: &models.Product{Name: "   ", Price: 10},
			wantErr: true,
		},
		{
			name:    "negative price",
			product: &models.Product{Name: "Onions", Price: -1},
			wantErr: true,
		},
		{
			name:    "external image url",
			product: &models.Product{Name: "Onions", Price: 10, Image: "https://example.com/onion.png"},
			wantErr: true,
		},
		{
			name:    "bare uploads directory",
			product: &models.Product{Name: "Onions", Price: 10, Image: "/uploads/"},
			wantErr: true,
		},
		{
			name:    "nil product",
			wantErr: true,
		},
	}

	validator := NewValidator()
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := validator.ValidateProduct(tt.product)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateProduct() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidator_ValidateCartItems(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		items   []models.CartItem
		wantErr bool
	}{
		{name: "empty cart", items: nil},
		{name: "fractional quantity", items: []models.CartItem{{ProductID: "p1", Quantity: 0.25}}},
		{name: "zero quantity", items: []models.CartItem{{ProductID: "p1", Quantity: 0}}, wantErr: true},
		{name: "missing product", items: []models.CartItem{{Quantity: 1}}, wantErr: true},
		{name: "repeated product", items: []models.CartItem{{ProductID: "p1", Quantity: 1}, {ProductID: "p1", Quantity: 2}}},
	}

	validator := NewValidator()
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := validator.ValidateCartItems(tt.items)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateCartItems() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMergeCartItems(t *testing.T) {
	t.Parallel()

	merged := MergeCartItems([]models.CartItem{
		{ProductID: "onion", Quantity: 1},
		{ProductID: "milk", Quantity: 2},
		{ProductID: "onion", Quantity: 0.5},
	})
	if len(merged) != 2 {
		t.Fatalf("expected 2 lines, got %+v", merged)
	}
	if merged[0].ProductID != "onion" || merged[0].Quantity != 1.5 {
		t.Fatalf("unexpected first line: %+v", merged[0])
	}
	if merged[1].ProductID != "milk" || merged[1].Quantity != 2 {
		t.Fatalf("unexpected second line: %+v", merged[1])
	}
	if got := MergeCartItems(nil); len(got) != 0 {
		t.Fatalf("expected empty result, got %+v", got)
	}
}
