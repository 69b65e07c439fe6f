package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/freshbasket/freshbasket/internal/models"
)

var testSecret = strings.Repeat("s", 32)

func newTestTokenManager(t *testing.T) (*TokenManager, *time.Time) {
	t.Helper()

	manager, err := NewTokenManager(testSecret, TokenOptions{})
	if err != nil {
		t.Fatalf("NewTokenManager() error = %v", err)
	}
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	manager.now = func() time.Time { return now }
	return manager, &now
}

func TestNewTokenManager_RejectsShortSecret(t *testing.T) {
	t.Parallel()

	if _, err := NewTokenManager("short", TokenOptions{}); !errors.Is(err, ErrWeakSecret) {
		t.Fatalf("expected ErrWeakSecret, got %v", err)
	}
}

func TestTokenManager_IssueVerify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		identity models.Identity
		ttl      time.Duration
	}{
		{name: "user", identity: models.Identity{ID: "user-1", Role: models.RoleUser}, ttl: DefaultUserTTL},
		{name: "admin", identity: models.Identity{ID: "admin-1", Role: models.RoleAdmin}, ttl: DefaultAdminTTL},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			manager, now := newTestTokenManager(t)
			token, expiresAt, err := manager.Issue(tt.identity)
			if err != nil {
				t.Fatalf("Issue() error = %v", err)
			}
			if got := expiresAt.Sub(*now); got != tt.ttl {
				t.Fatalf("expected ttl %s, got %s", tt.ttl, got)
			}

			identity, err := manager.Verify(token)
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if identity != tt.identity {
				t.Fatalf("expected %+v, got %+v", tt.identity, identity)
			}
		})
	}
}

func TestTokenManager_RejectsExpired(t *testing.T) {
	t.Parallel()

	manager, now := newTestTokenManager(t)
	token, _, err := manager.Issue(models.Identity{ID: "user-1", Role: models.RoleUser})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	*now = now.Add(DefaultUserTTL + time.Minute)

	if _, err := manager.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestTokenManager_RejectsForeignTokens(t *testing.T) {
	t.Parallel()

	manager, _ := newTestTokenManager(t)
	other, err := NewTokenManager(strings.Repeat("x", 32), TokenOptions{})
	if err != nil {
		t.Fatalf("NewTokenManager() error = %v", err)
	}
	foreign, _, err := other.Issue(models.Identity{ID: "user-1", Role: models.RoleUser})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Role: models.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    DefaultIssuer,
			Subject:   "admin-1",
			ExpiresAt: jwt.NewNumericDate(manager.now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to build unsigned token: %v", err)
	}

	for _, token := range []string{foreign, unsigned, "not-a-token", ""} {
		if _, err := manager.Verify(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("expected ErrInvalidToken for %q, got %v", token, err)
		}
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{header: "Bearer abc.def", want: "abc.def", ok: true},
		{header: "bearer   abc ", want: "abc", ok: true},
		{header: "Basic abc"},
		{header: "Bearer "},
		{header: ""},
	}

	for _, tt := range tests {
		got, ok := BearerToken(tt.header)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("BearerToken(%q) = (%q, %v), want (%q, %v)", tt.header, got, ok, tt.want, tt.ok)
		}
	}
}

func TestIdentityFromContext(t *testing.T) {
	t.Parallel()

	if _, ok := IdentityFromContext(context.Background()); ok {
		t.Fatal("expected no identity on empty context")
	}
	want := models.Identity{ID: "user-1", Role: models.RoleUser}
	got, ok := IdentityFromContext(WithIdentity(context.Background(), want))
	if !ok || got != want {
		t.Fatalf("expected %+v, got %+v (ok=%v)", want, got, ok)
	}
}
