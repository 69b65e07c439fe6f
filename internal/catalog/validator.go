// Package catalog provides product validation and cart pricing.
package catalog

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/freshbasket/freshbasket/internal/models"
)

const maxProductNameLength = 120

type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

var uploadPathRegex = regexp.MustCompile(`^/uploads/.+$`)

// IsValidImagePath reports whether path points into the uploads directory.
func IsValidImagePath(path string) bool {
	return uploadPathRegex.MatchString(path)
}

func (v *Validator) ValidateProduct(product *models.Product) error {
	if product == nil {
		return fmt.Errorf("product is required")
	}

	name := strings.TrimSpace(product.Name)
	if name == "" {
		return fmt.Errorf("product name is required")
	}
	if len(name) > maxProductNameLength {
		return fmt.Errorf("product name must be at most %d characters", maxProductNameLength)
	}

	if math.IsNaN(product.Price) || math.IsInf(product.Price, 0) || product.Price < 0 {
		return fmt.Errorf("product price must be zero or positive")
	}

	if image := strings.TrimSpace(product.Image); image != "" && !IsValidImagePath(image) {
		return fmt.Errorf("image must be a path under /uploads/")
	}

	return nil
}

// ValidateCartItems checks the quantities a customer may store in a cart.
func (v *Validator) ValidateCartItems(items []models.CartItem) error {
	for i, item := range items {
		if strings.TrimSpace(item.ProductID) == "" {
			return fmt.Errorf("item %d is missing a product", i+1)
		}
		if math.IsNaN(item.Quantity) || math.IsInf(item.Quantity, 0) || item.Quantity <= 0 {
			return fmt.Errorf("item %d must have a positive quantity", i+1)
		}
	}
	return nil
}

// MergeCartItems folds repeated lines for the same product into one,
// summing quantities and keeping first-seen order.
func MergeCartItems(items []models.CartItem) []models.CartItem {
	merged := make([]models.CartItem, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged
}
