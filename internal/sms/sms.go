// Package sms delivers text messages to customer mobiles.
package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/freshbasket/freshbasket/internal/observability"
)

const twilioBaseURL = "https://api.twilio.com/2010-04-01"

type Sender interface {
	Send(ctx context.Context, to, body string) error
}

type Config struct {
	Provider   string
	AccountSID string
	AuthToken  string
	FromNumber string
}

func NewSender(cfg Config, logger *slog.Logger) (Sender, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "log":
		return NewLogSender(logger), nil
	case "twilio":
		return NewTwilioSender(cfg.AccountSID, cfg.AuthToken, cfg.FromNumber)
	default:
		return nil, fmt.Errorf("SMS_PROVIDER must be either 'log' or 'twilio'")
	}
}

// LogSender writes messages to the logger instead of delivering them.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, to, body string) error {
	s.logger.InfoContext(ctx, "sms not delivered, log provider active", "to", to, "body", body)
	return nil
}

type TwilioSender struct {
	accountSID string
	authToken  string
	fromNumber string
	baseURL    string
	client     *http.Client
}

type twilioError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func NewTwilioSender(accountSID, authToken, fromNumber string) (*TwilioSender, error) {
	if accountSID == "" || authToken == "" || fromNumber == "" {
		return nil, fmt.Errorf("TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER are required")
	}
	return &TwilioSender{
		accountSID: accountSID,
		authToken:  authToken,
		fromNumber: fromNumber,
		baseURL:    twilioBaseURL,
		client:     observability.NewHTTPClient(10 * time.Second),
	}, nil
}

func (t *TwilioSender) Send(ctx context.Context, to, body string) error {
	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", t.baseURL, url.PathEscape(t.accountSID))

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", t.fromNumber)
	form.Set("Body", body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(t.accountSID, t.authToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("twilio request failed: %w", err)
	}
	respBody, readErr := io.ReadAll(resp.Body)
	closeErr := resp.Body.Close()
	if readErr != nil {
		return fmt.Errorf("failed to read twilio response: %w", readErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close twilio response body: %w", closeErr)
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		var apiErr twilioError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Code != 0 {
			return fmt.Errorf("twilio error (%d): %s", apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("twilio API returned status %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
