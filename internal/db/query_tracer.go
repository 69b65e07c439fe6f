package db

import (
	"context"
	"strings"

	"github.com/getsentry/sentry-go"
	"github.com/jackc/pgx/v5"
)

const maxSpanDescription = 512

type querySpanContextKey struct{}

// queryTracer reports every statement as a child span of the request span.
// Statements run outside a traced request are not reported.
type queryTracer struct {
	database string
}

func newQueryTracer(database string) *queryTracer {
	return &queryTracer{database: database}
}

func (t *queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	if sentry.SpanFromContext(ctx) == nil {
		return ctx
	}

	description := spanDescription(data.SQL)
	span := sentry.StartSpan(
		ctx,
		"db.sql.query",
		sentry.WithOpName("db.sql.query"),
		sentry.WithDescription(description),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	span.SetData("db.system", "postgresql")
	if t.database != "" {
		span.SetData("db.name", t.database)
	}
	if operation := queryOperation(description); operation != "" {
		span.SetData("db.operation", operation)
	}

	return context.WithValue(span.Context(), querySpanContextKey{}, span)
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	span, _ := ctx.Value(querySpanContextKey{}).(*sentry.Span)
	if span == nil {
		return
	}

	if data.Err != nil {
		span.Status = sentry.SpanStatusInternalError
		span.SetData("db.error", mapError(data.Err).Error())
	} else {
		span.Status = sentry.SpanStatusOK
		span.SetData("db.rows_affected", data.CommandTag.RowsAffected())
	}

	span.Finish()
}

// spanDescription collapses whitespace so multi-line statements group together.
func spanDescription(query string) string {
	normalized := strings.Join(strings.Fields(query), " ")
	if normalized == "" {
		return "sql.query"
	}
	if len(normalized) > maxSpanDescription {
		return normalized[:maxSpanDescription]
	}
	return normalized
}

func queryOperation(query string) string {
	keyword, _, _ := strings.Cut(strings.TrimSpace(query), " ")
	switch keyword = strings.ToUpper(keyword); keyword {
	case "SELECT", "INSERT", "UPDATE", "DELETE", "WITH", "TRUNCATE", "CREATE":
		return keyword
	default:
		return ""
	}
}
