package auth

import (
	"context"

	"github.com/freshbasket/freshbasket/internal/models"
)

type identityContextKey struct{}

func WithIdentity(ctx context.Context, identity models.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext returns the authenticated caller, if any.
func IdentityFromContext(ctx context.Context) (models.Identity, bool) {
	if ctx == nil {
		return models.Identity{}, false
	}
	identity, ok := ctx.Value(identityContextKey{}).(models.Identity)
	return identity, ok && identity.ID != ""
}
