package handlers

import (
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"

	"github.com/freshbasket/freshbasket/internal/auth"
	"github.com/freshbasket/freshbasket/internal/observability"
)

// MetricsContext attaches a meter carrying request and caller attributes, so
// order and auth counters recorded by the services can be sliced by route
// and role. On protected subrouters it must run after Authenticate.
func (h *Handlers) MetricsContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		meter := sentry.NewMeter(ctx).WithCtx(ctx)
		meter.SetAttributes(meterAttributes(r)...)
		next.ServeHTTP(w, r.WithContext(observability.WithMeter(ctx, meter)))
	})
}

func meterAttributes(r *http.Request) []attribute.Builder {
	attrs := []attribute.Builder{
		attribute.String("http.request_id", requestIDFromRequest(r)),
		attribute.String("http.method", r.Method),
		attribute.String("network.client.ip", clientIP(r)),
	}
	if route := routeLabel(r); route != "" {
		attrs = append(attrs, attribute.String("http.route", route))
	}
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return append(attrs, attribute.String("user.role", "anonymous"))
	}
	return append(attrs,
		attribute.String("user.id", identity.ID),
		attribute.String("user.role", string(identity.Role)),
	)
}
