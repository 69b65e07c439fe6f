package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/freshbasket/freshbasket/internal/store"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidState      = errors.New("order is no longer processing")
	ErrWindowExpired     = errors.New("cancellation window expired")
	ErrInvalidStatus     = errors.New("invalid order status")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrStorage           = errors.New("storage unavailable")
	ErrUnauthenticated   = errors.New("not authenticated")
	ErrOTPInvalid        = errors.New("invalid or expired otp")
	ErrRateLimited       = errors.New("too many requests")
	ErrConflict          = errors.New("already exists")
)

// Kind is the stable, client-facing name of an error category.
type Kind string

const (
	KindValidation        Kind = "ValidationError"
	KindNotFound          Kind = "NotFound"
	KindForbidden         Kind = "Forbidden"
	KindInvalidState      Kind = "InvalidState"
	KindWindowExpired     Kind = "WindowExpired"
	KindInvalidStatus     Kind = "InvalidStatus"
	KindInvalidTransition Kind = "InvalidTransition"
	KindStorage           Kind = "StorageError"
	KindUnauthenticated   Kind = "Unauthenticated"
	KindOTPInvalid        Kind = "OTPInvalid"
	KindRateLimited       Kind = "RateLimited"
	KindConflict          Kind = "Conflict"
	KindInternal          Kind = "Internal"
)

var errorKinds = []struct {
	err  error
	kind Kind
}{
	{ErrValidation, KindValidation},
	{ErrNotFound, KindNotFound},
	{ErrForbidden, KindForbidden},
	{ErrInvalidState, KindInvalidState},
	{ErrWindowExpired, KindWindowExpired},
	{ErrInvalidStatus, KindInvalidStatus},
	{ErrInvalidTransition, KindInvalidTransition},
	{ErrStorage, KindStorage},
	{ErrUnauthenticated, KindUnauthenticated},
	{ErrOTPInvalid, KindOTPInvalid},
	{ErrRateLimited, KindRateLimited},
	{ErrConflict, KindConflict},
}

// KindOf classifies err. Unknown errors are Internal.
func KindOf(err error) Kind {
	for _, candidate := range errorKinds {
		if errors.Is(err, candidate.err) {
			return candidate.kind
		}
	}
	return KindInternal
}

func validationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// storeError maps a backend error onto the service taxonomy.
func storeError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, op)
	case errors.Is(err, store.ErrDuplicate):
		return fmt.Errorf("%w: %s", ErrConflict, op)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
	}
}
