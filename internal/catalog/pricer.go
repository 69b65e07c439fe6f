package catalog

import (
	"math"

	"github.com/freshbasket/freshbasket/internal/models"
)

// Pricer totals cart lines in the smallest currency unit to avoid float drift.
type Pricer struct {
	deliveryFee     float64
	freeDeliveryMin float64
}

func NewPricer(deliveryFee, freeDeliveryMin float64) *Pricer {
	return &Pricer{deliveryFee: deliveryFee, freeDeliveryMin: freeDeliveryMin}
}

func (p *Pricer) LineTotal(price, quantity float64) float64 {
	return fromPaise(toPaise(price * quantity))
}

func (p *Pricer) Subtotal(lines []models.LineItem) float64 {
	var paise int64
	for _, line := range lines {
		paise += toPaise(line.Price * line.Quantity)
	}
	return fromPaise(paise)
}

// DeliveryFee is waived once the subtotal reaches the free delivery minimum.
// An empty cart has no fee.
func (p *Pricer) DeliveryFee(subtotal float64) float64 {
	if subtotal <= 0 {
		return 0
	}
	if p.freeDeliveryMin > 0 && subtotal >= p.freeDeliveryMin {
		return 0
	}
	return p.deliveryFee
}

func toPaise(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func fromPaise(paise int64) float64 {
	return float64(paise) / 100
}

func (p *Pricer) Total(subtotal, deliveryFee float64) float64 {
	return fromPaise(toPaise(subtotal) + toPaise(deliveryFee))
}
