package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	sentryslog "github.com/getsentry/sentry-go/slog"
	"github.com/lmittmann/tint"
)

type Options struct {
	Level  slog.Level
	Format string
	Output io.Writer
	// Sentry forwards errors as events and warnings as breadcrumbs-style logs.
	// sentry.Init must have been called first.
	Sentry bool
}

// New builds the process logger: tint for text, slog JSON otherwise.
func New(opts Options) *slog.Logger {
	output := opts.Output
	if output == nil {
		output = os.Stdout
	}

	var console slog.Handler
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "json":
		console = slog.NewJSONHandler(output, &slog.HandlerOptions{Level: opts.Level})
	default:
		console = tint.NewHandler(output, &tint.Options{Level: opts.Level})
	}

	if !opts.Sentry {
		return slog.New(console)
	}
	reporter := sentryslog.Option{
		EventLevel: []slog.Level{slog.LevelError},
		LogLevel:   []slog.Level{slog.LevelWarn, slog.LevelInfo},
	}.NewSentryHandler(context.Background())
	return slog.New(MultiHandler(console, reporter))
}
