// Package auth issues and verifies bearer tokens for customers and admins.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/freshbasket/freshbasket/internal/models"
)

const (
	DefaultIssuer   = "freshbasket"
	DefaultUserTTL  = 24 * time.Hour
	DefaultAdminTTL = 7 * 24 * time.Hour
	minSecretLength = 32
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrWeakSecret   = fmt.Errorf("jwt secret must be at least %d bytes", minSecretLength)
)

type Claims struct {
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

type TokenManager struct {
	secret   []byte
	issuer   string
	userTTL  time.Duration
	adminTTL time.Duration
	now      func() time.Time
}

type TokenOptions struct {
	Issuer   string
	UserTTL  time.Duration
	AdminTTL time.Duration
}

func NewTokenManager(secret string, opts TokenOptions) (*TokenManager, error) {
	if len(secret) < minSecretLength {
		return nil, ErrWeakSecret
	}
	if opts.Issuer == "" {
		opts.Issuer = DefaultIssuer
	}
	if opts.UserTTL <= 0 {
		opts.UserTTL = DefaultUserTTL
	}
	if opts.AdminTTL <= 0 {
		opts.AdminTTL = DefaultAdminTTL
	}
	return &TokenManager{
		secret:   []byte(secret),
		issuer:   opts.Issuer,
		userTTL:  opts.UserTTL,
		adminTTL: opts.AdminTTL,
		now:      time.Now,
	}, nil
}

// Issue signs a token for identity. Admin tokens live longer than user tokens.
func (m *TokenManager) Issue(identity models.Identity) (string, time.Time, error) {
	if strings.TrimSpace(identity.ID) == "" {
		return "", time.Time{}, fmt.Errorf("identity id is required")
	}
	ttl := m.userTTL
	switch identity.Role {
	case models.RoleAdmin:
		ttl = m.adminTTL
	case models.RoleUser:
	default:
		return "", time.Time{}, fmt.Errorf("unsupported role %q", identity.Role)
	}

	issuedAt := m.now()
	expiresAt := issuedAt.Add(ttl)
	claims := Claims{
		Role: identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

func (m *TokenManager) Verify(tokenString string) (models.Identity, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(
		tokenString,
		&claims,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return models.Identity{}, ErrInvalidToken
	}
	if claims.Role != models.RoleUser && claims.Role != models.RoleAdmin {
		return models.Identity{}, ErrInvalidToken
	}
	return models.Identity{ID: claims.Subject, Role: claims.Role}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
