package services

import (
	"fmt"
	"time"

	"github.com/freshbasket/freshbasket/internal/models"
	"github.com/freshbasket/freshbasket/internal/store"
)

// DefaultCancellationWindow is how long after placement an owner may cancel.
const DefaultCancellationWindow = 3 * time.Minute

// canTransition reports whether an administrator may move an order from one
// status to another. Terminal statuses never change and a status never
// transitions to itself.
func canTransition(from, to models.OrderStatus) bool {
	if from.IsTerminal() {
		return false
	}
	if from == to {
		return false
	}
	_, ok := models.ParseOrderStatus(string(to))
	return ok
}

// canceller decides whether a requester may cancel an order and returns the
// guard the store must re-check atomically while writing.
type canceller interface {
	authorizeCancel(order *models.Order, now time.Time) (store.TransitionGuard, error)
	// explainConflict classifies a cancel that lost a race with another writer.
	explainConflict(order *models.Order, now time.Time) error
}

func cancellerFor(requester models.Identity, window time.Duration) (canceller, error) {
	switch requester.Role {
	case models.RoleAdmin:
		return adminCanceller{}, nil
	case models.RoleUser:
		if requester.ID == "" {
			return nil, fmt.Errorf("%w: requester id is required", ErrUnauthenticated)
		}
		return ownerCanceller{ownerID: requester.ID, window: window}, nil
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrForbidden, requester.Role)
	}
}

type ownerCanceller struct {
	ownerID string
	window  time.Duration
}

func (c ownerCanceller) authorizeCancel(order *models.Order, now time.Time) (store.TransitionGuard, error) {
	if order.OwnerID != c.ownerID {
		return store.TransitionGuard{}, fmt.Errorf("%w: order belongs to another user", ErrForbidden)
	}
	if order.Status != models.StatusProcessing {
		return store.TransitionGuard{}, fmt.Errorf("%w: order is %s", ErrInvalidState, order.Status)
	}
	if now.Sub(order.CreatedAt) > c.window {
		return store.TransitionGuard{}, fmt.Errorf("%w: orders can only be cancelled within %s of placement", ErrWindowExpired, c.window)
	}
	return store.TransitionGuard{
		From:         []models.OrderStatus{models.StatusProcessing},
		OwnerID:      c.ownerID,
		CreatedAfter: now.Add(-c.window),
	}, nil
}

func (c ownerCanceller) explainConflict(order *models.Order, now time.Time) error {
	if _, err := c.authorizeCancel(order, now); err != nil {
		return err
	}
	return fmt.Errorf("%w: order changed while cancelling", ErrInvalidState)
}

// adminCanceller may cancel any order that has not reached a terminal status.
type adminCanceller struct{}

func (adminCanceller) authorizeCancel(order *models.Order, _ time.Time) (store.TransitionGuard, error) {
	if order.Status.IsTerminal() {
		return store.TransitionGuard{}, fmt.Errorf("%w: order is %s", ErrInvalidState, order.Status)
	}
	return store.TransitionGuard{
		From: []models.OrderStatus{models.StatusProcessing, models.StatusOutForDelivery},
	}, nil
}

func (a adminCanceller) explainConflict(order *models.Order, now time.Time) error {
	if _, err := a.authorizeCancel(order, now); err != nil {
		return err
	}
	return fmt.Errorf("%w: order changed while cancelling", ErrInvalidState)
}

func requireAdmin(requester models.Identity) error {
	if requester.ID == "" {
		return ErrUnauthenticated
	}
	if !requester.IsAdmin() {
		return fmt.Errorf("%w: administrator role required", ErrForbidden)
	}
	return nil
}

func requireUser(requester models.Identity) error {
	if requester.ID == "" {
		return ErrUnauthenticated
	}
	if requester.Role != models.RoleUser {
		return fmt.Errorf("%w: customer account required", ErrForbidden)
	}
	return nil
}
