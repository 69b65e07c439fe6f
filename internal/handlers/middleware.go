package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"

	"github.com/freshbasket/freshbasket/internal/auth"
	"github.com/freshbasket/freshbasket/internal/logging"
	"github.com/freshbasket/freshbasket/internal/models"
	"github.com/freshbasket/freshbasket/internal/observability"
	"github.com/freshbasket/freshbasket/internal/services"
)

// Authenticate requires a valid bearer token and stores the caller's
// identity in the request context.
func (h *Handlers) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			observability.Count(ctx, observability.MetricTokenRejected, 1, attribute.String("reason", "missing"))
			h.writeError(w, r, fmt.Errorf("%w: no token", services.ErrUnauthenticated))
			return
		}
		identity, err := h.tokens.Verify(token)
		if err != nil {
			observability.Count(ctx, observability.MetricTokenRejected, 1, attribute.String("reason", "invalid"))
			h.loggerFromContext(ctx).Debug("token verification failed", "error", err)
			h.writeError(w, r, fmt.Errorf("%w: token failed", services.ErrUnauthenticated))
			return
		}

		ctx = auth.WithIdentity(ctx, identity)
		logger := h.loggerFromContext(ctx).With("identity_id", identity.ID, "identity_role", identity.Role)
		ctx = logging.WithLogger(ctx, logger)
		if hub := sentry.GetHubFromContext(ctx); hub != nil {
			hub.Scope().SetUser(sentry.User{ID: identity.ID, Data: map[string]string{"role": string(identity.Role)}})
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin rejects callers that are not administrators.
func (h *Handlers) RequireAdmin(next http.Handler) http.Handler {
	return h.requireRole(models.RoleAdmin, next)
}

// RequireUser rejects callers that are not customers.
func (h *Handlers) RequireUser(next http.Handler) http.Handler {
	return h.requireRole(models.RoleUser, next)
}

func (h *Handlers) requireRole(role models.Role, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := auth.IdentityFromContext(r.Context())
		if !ok {
			h.writeError(w, r, fmt.Errorf("%w: no token", services.ErrUnauthenticated))
			return
		}
		if identity.Role != role {
			h.writeError(w, r, fmt.Errorf("%w: %s access required", services.ErrForbidden, role))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Recoverer turns panics into a generic 500 and reports them to Sentry.
func (h *Handlers) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}
			if recovered == http.ErrAbortHandler {
				panic(recovered)
			}

			ctx := r.Context()
			hub := sentry.GetHubFromContext(ctx)
			if hub == nil {
				hub = sentry.CurrentHub()
			}
			hub.RecoverWithContext(ctx, recovered)
			observability.Count(ctx, observability.MetricHTTPPanics, 1)

			h.writeError(w, r, errors.New(fmt.Sprint("panic: ", recovered)))
		}()
		next.ServeHTTP(w, r)
	})
}

func requesterFrom(r *http.Request) models.Identity {
	identity, _ := auth.IdentityFromContext(r.Context())
	return identity
}
