// Package otp issues and verifies one-time login codes.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

const (
	DefaultTTL         = 5 * time.Minute
	DefaultLength      = 4
	DefaultMaxAttempts = 5
)

var (
	ErrInvalidCode     = errors.New("invalid otp")
	ErrExpired         = errors.New("otp expired or not requested")
	ErrTooManyAttempts = errors.New("too many otp attempts")
)

// Challenge is what is stored between issuing and verifying a code. Only a
// hash of the code is kept.
type Challenge struct {
	CodeHash  string    `json:"code_hash"`
	Attempts  int       `json:"attempts"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Manager struct {
	store       Store
	ttl         time.Duration
	length      int
	maxAttempts int
	now         func() time.Time
	generate    func(length int) (string, error)
}

type Options struct {
	TTL         time.Duration
	Length      int
	MaxAttempts int
}

func NewManager(store Store, opts Options) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("otp store is required")
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Length <= 0 {
		opts.Length = DefaultLength
	}
	if opts.Length > 10 {
		return nil, fmt.Errorf("otp length must be at most 10 digits")
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	return &Manager{
		store:       store,
		ttl:         opts.TTL,
		length:      opts.Length,
		maxAttempts: opts.MaxAttempts,
		now:         time.Now,
		generate:    randomDigits,
	}, nil
}

func (m *Manager) Close() error {
	return m.store.Close()
}

func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue creates a fresh code for contact, replacing any outstanding one.
func (m *Manager) Issue(ctx context.Context, contact string) (string, time.Time, error) {
	code, err := m.generate(m.length)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate otp: %w", err)
	}
	expiresAt := m.now().Add(m.ttl)
	challenge := &Challenge{
		CodeHash:  hashCode(contact, code),
		ExpiresAt: expiresAt,
	}
	if err := m.store.Set(ctx, contactKey(contact), challenge, m.ttl); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to store otp: %w", err)
	}
	return code, expiresAt, nil
}

// Verify consumes the code on success. Every call reserves one attempt
// before the code is compared, and the challenge is discarded when the last
// reserved attempt fails.
func (m *Manager) Verify(ctx context.Context, contact, code string) error {
	key := contactKey(contact)
	challenge, err := m.store.ReserveAttempt(ctx, key, m.maxAttempts)
	if errors.Is(err, ErrExpired) || errors.Is(err, ErrTooManyAttempts) {
		return err
	}
	if err != nil {
		return fmt.Errorf("failed to load otp: %w", err)
	}
	if m.now().After(challenge.ExpiresAt) {
		return ErrExpired
	}

	expected := []byte(challenge.CodeHash)
	actual := []byte(hashCode(contact, strings.TrimSpace(code)))
	if subtle.ConstantTimeCompare(expected, actual) == 1 {
		if err := m.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to consume otp: %w", err)
		}
		return nil
	}

	if challenge.Attempts >= m.maxAttempts {
		if err := m.store.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to discard otp: %w", err)
		}
		return ErrTooManyAttempts
	}
	return ErrInvalidCode
}

func contactKey(contact string) string {
	return strings.ToLower(strings.TrimSpace(contact))
}

func hashCode(contact, code string) string {
	sum := sha256.Sum256([]byte(contactKey(contact) + ":" + code))
	return hex.EncodeToString(sum[:])
}

func randomDigits(length int) (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", length, n), nil
}
