package mongostore

import (
	"context"
	"sync"

	"github.com/getsentry/sentry-go"
	"go.mongodb.org/mongo-driver/event"
)

// newCommandMonitor reports each command as a child span of the request
// span, mirroring the pgx query tracer.
func newCommandMonitor(database string) *event.CommandMonitor {
	var spans sync.Map

	finish := func(requestID int64, status sentry.SpanStatus, failure any) {
		value, ok := spans.LoadAndDelete(requestID)
		if !ok {
			return
		}
		span := value.(*sentry.Span)
		span.Status = status
		if failure != nil {
			span.SetData("db.error", failure)
		}
		span.Finish()
	}

	return &event.CommandMonitor{
		Started: func(ctx context.Context, e *event.CommandStartedEvent) {
			if sentry.SpanFromContext(ctx) == nil {
				return
			}
			span := sentry.StartSpan(
				ctx,
				"db.query",
				sentry.WithOpName("db.query"),
				sentry.WithDescription(e.CommandName),
				sentry.WithSpanOrigin(sentry.SpanOriginManual),
			)
			span.SetData("db.system", "mongodb")
			span.SetData("db.name", database)
			span.SetData("db.operation", e.CommandName)
			spans.Store(e.RequestID, span)
		},
		Succeeded: func(_ context.Context, e *event.CommandSucceededEvent) {
			finish(e.RequestID, sentry.SpanStatusOK, nil)
		},
		Failed: func(_ context.Context, e *event.CommandFailedEvent) {
			finish(e.RequestID, sentry.SpanStatusInternalError, e.Failure)
		},
	}
}
