// Package email sends transactional mail through a pluggable provider.
package email

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

type Provider interface {
	SendEmail(ctx context.Context, email *Email) error
	ValidateAPIKey(ctx context.Context) error
}

type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string
	Tag     string
}

type Config struct {
	Provider string
	APIKey   string
	From     string
}

func NewProvider(config Config, logger *slog.Logger) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(config.Provider)) {
	case "", "log":
		return NewLogProvider(logger), nil
	case "postmark":
		return NewPostmarkProvider(config.APIKey, config.From), nil
	case "resend":
		return NewResendProvider(config.APIKey, config.From), nil
	default:
		return nil, fmt.Errorf("EMAIL_PROVIDER must be one of 'log', 'postmark', or 'resend'")
	}
}

// LogProvider writes emails to the logger instead of delivering them.
type LogProvider struct {
	logger *slog.Logger
}

func NewLogProvider(logger *slog.Logger) *LogProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogProvider{logger: logger}
}

func (p *LogProvider) SendEmail(ctx context.Context, email *Email) error {
	if email == nil {
		return fmt.Errorf("email is required")
	}
	p.logger.InfoContext(ctx, "email not delivered, log provider active",
		"to", email.To,
		"subject", email.Subject,
		"text", email.Text,
	)
	return nil
}

func (p *LogProvider) ValidateAPIKey(context.Context) error {
	return nil
}
