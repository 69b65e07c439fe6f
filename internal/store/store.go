// Package store holds the contracts shared by the persistence backends.
package store

import (
	"errors"
	"time"

	"github.com/freshbasket/freshbasket/internal/models"
)

var (
	ErrNotFound = errors.New("record not found")
	// ErrStatusConflict means a guarded status update matched no record.
	ErrStatusConflict = errors.New("order status changed concurrently")
	ErrDuplicate      = errors.New("record already exists")
)

// OrderFilter narrows an order listing. Zero values match everything.
type OrderFilter struct {
	OwnerID  string
	Archived *bool
}

// TransitionGuard constrains a status update so the check and the write
// happen as one atomic operation in the backend.
type TransitionGuard struct {
	From []models.OrderStatus
	// OwnerID, when set, must match the order owner.
	OwnerID string
	// CreatedAfter, when set, is the earliest creation time still allowed.
	CreatedAfter time.Time
}

// Matches evaluates the guard against an in-memory order.
func (g TransitionGuard) Matches(order *models.Order) bool {
	if order == nil {
		return false
	}
	if g.OwnerID != "" && order.OwnerID != g.OwnerID {
		return false
	}
	if !g.CreatedAfter.IsZero() && order.CreatedAt.Before(g.CreatedAfter) {
		return false
	}
	for _, status := range g.From {
		if order.Status == status {
			return true
		}
	}
	return false
}

// TerminalStatuses are the statuses eligible for archiving.
var TerminalStatuses = []models.OrderStatus{models.StatusDelivered, models.StatusCancelled}

func StatusStrings(statuses []models.OrderStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, string(status))
	}
	return out
}
