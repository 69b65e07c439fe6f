package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	resend "github.com/resend/resend-go/v3"
)

type ResendProvider struct {
	from   string
	client *resend.Client
}

func NewResendProvider(apiKey, from string) *ResendProvider {
	return &ResendProvider{
		from:   from,
		client: resend.NewClient(apiKey),
	}
}

func (r *ResendProvider) SendEmail(ctx context.Context, email *Email) error {
	if email == nil {
		return fmt.Errorf("email is required")
	}
	if r.client == nil {
		return fmt.Errorf("resend client not configured")
	}
	if email.HTML == "" && email.Text == "" {
		return fmt.Errorf("email body is empty")
	}

	params := &resend.SendEmailRequest{
		From:    r.from,
		To:      []string{email.To},
		Subject: email.Subject,
		Html:    email.HTML,
		Text:    email.Text,
		// A unique ref keeps mail clients from threading repeated OTP and status mails.
		Headers: map[string]string{"X-Entity-Ref-ID": uuid.NewString()},
	}
	if tag := resendTagValue(email.Tag); tag != "" {
		params.Tags = []resend.Tag{{Name: "category", Value: tag}}
	}

	sent, err := r.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("resend send to %s failed: %w", email.To, err)
	}
	if sent == nil || sent.Id == "" {
		return fmt.Errorf("resend accepted the request without a message id")
	}
	return nil
}

func (r *ResendProvider) ValidateAPIKey(ctx context.Context) error {
	if r.client == nil {
		return fmt.Errorf("resend client not configured")
	}
	if _, err := r.client.ApiKeys.ListWithContext(ctx); err != nil {
		return fmt.Errorf("invalid resend API key: %w", err)
	}
	return nil
}

// resendTagValue keeps only the characters Resend accepts in tag values.
func resendTagValue(tag string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		case r == ' ', r == '.', r == ':':
			return '_'
		default:
			return -1
		}
	}, strings.TrimSpace(tag))
}
