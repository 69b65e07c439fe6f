// Package observability carries Sentry meters through request contexts and
// names the metrics the API emits.
package observability

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
)

const (
	MetricHTTPRequests = "http.server.requests"
	MetricHTTPDuration = "http.server.duration"
	MetricHTTPErrors   = "http.server.errors"
	MetricHTTPPanics   = "http.server.panics"

	MetricOrderPlaced        = "order.placed"
	MetricOrderPlaceFailed   = "order.place.failed"
	MetricOrderNotifyFailed  = "order.notify.failed"
	MetricOrderCancelled     = "order.cancelled"
	MetricOrderCancelFailed  = "order.cancel.failed"
	MetricOrderStatusUpdated = "order.status.updated"
	MetricOrderArchived      = "order.archived"

	MetricOTPSent       = "auth.otp.sent"
	MetricOTPThrottled  = "auth.otp.throttled"
	MetricUserCreated   = "auth.user.created"
	MetricTokenRejected = "auth.token.rejected"

	MetricCORSBlocked = "security.cors.blocked"
)

type meterContextKey struct{}

// WithMeter stores meter in ctx. A nil meter is replaced by a fresh one.
func WithMeter(ctx context.Context, meter sentry.Meter) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if meter == nil {
		meter = sentry.NewMeter(ctx)
	}
	return context.WithValue(ctx, meterContextKey{}, meter.WithCtx(ctx))
}

// MeterFromContext returns the request meter, or an unattributed one outside
// a request.
func MeterFromContext(ctx context.Context) sentry.Meter {
	if ctx == nil {
		ctx = context.Background()
	}
	if meter, ok := ctx.Value(meterContextKey{}).(sentry.Meter); ok && meter != nil {
		return meter.WithCtx(ctx)
	}
	return sentry.NewMeter(ctx).WithCtx(ctx)
}

// Count increments a counter on the context meter.
func Count(ctx context.Context, name string, value int64, attrs ...attribute.Builder) {
	meter := MeterFromContext(ctx)
	if len(attrs) == 0 {
		meter.Count(name, value)
		return
	}
	meter.Count(name, value, sentry.WithAttributes(attrs...))
}

// RecordRequest emits the per-request counter, latency distribution and,
// for 5xx answers, the error counter.
func RecordRequest(ctx context.Context, method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unknown"
	}
	attrs := []attribute.Builder{
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", status),
	}
	meter := MeterFromContext(ctx)
	meter.Count(MetricHTTPRequests, 1, sentry.WithAttributes(attrs...))
	meter.Distribution(
		MetricHTTPDuration,
		float64(elapsed.Milliseconds()),
		sentry.WithUnit(sentry.UnitMillisecond),
		sentry.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", route),
			attribute.String("http.status_class", fmt.Sprintf("%dxx", status/100)),
		),
	)
	if status >= 500 {
		meter.Count(MetricHTTPErrors, 1, sentry.WithAttributes(attrs...))
	}
}
