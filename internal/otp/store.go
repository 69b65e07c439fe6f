package otp

import (
	"context"
	"fmt"
	"time"
)

// Store persists challenges keyed by contact.
//
// ReserveAttempt atomically counts one verification attempt against the
// challenge and returns it with the updated count. It fails with ErrExpired
// when there is no challenge and with ErrTooManyAttempts once limit attempts
// have already been reserved, so no more than limit guesses are ever compared.
type Store interface {
	Set(ctx context.Context, key string, challenge *Challenge, ttl time.Duration) error
	ReserveAttempt(ctx context.Context, key string, limit int) (*Challenge, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

type Config struct {
	Provider              string
	RedisConnectionString string
}

func NewStore(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Provider {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(ctx, cfg.RedisConnectionString)
	default:
		return nil, fmt.Errorf("unsupported otp store provider: %s", cfg.Provider)
	}
}
