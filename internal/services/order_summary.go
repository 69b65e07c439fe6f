package services

import (
	"sort"

	"github.com/freshbasket/freshbasket/internal/models"
)

// SummarizeByOwner groups orders by owner. Spending counts delivered orders
// only, and the average is over delivered orders. The result is ordered by
// total spent, highest first, then by owner id.
func SummarizeByOwner(orders []*models.Order) []models.OwnerSummary {
	byOwner := make(map[string]*models.OwnerSummary)
	spentPaise := make(map[string]int64)

	for _, order := range orders {
		if order == nil {
			continue
		}
		summary, ok := byOwner[order.OwnerID]
		if !ok {
			summary = &models.OwnerSummary{OwnerID: order.OwnerID}
			byOwner[order.OwnerID] = summary
		}
		summary.TotalOrders++
		switch order.Status {
		case models.StatusDelivered:
			summary.DeliveredOrders++
			spentPaise[order.OwnerID] += toPaise(order.Total)
		case models.StatusCancelled:
			summary.CancelledOrders++
		}
	}

	summaries := make([]models.OwnerSummary, 0, len(byOwner))
	for ownerID, summary := range byOwner {
		summary.TotalSpent = float64(spentPaise[ownerID]) / 100
		if summary.DeliveredOrders > 0 {
			summary.AvgOrderValue = summary.TotalSpent / float64(summary.DeliveredOrders)
		}
		summaries = append(summaries, *summary)
	}

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].TotalSpent != summaries[j].TotalSpent {
			return summaries[i].TotalSpent > summaries[j].TotalSpent
		}
		return summaries[i].OwnerID < summaries[j].OwnerID
	})
	return summaries
}
