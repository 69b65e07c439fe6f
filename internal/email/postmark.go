package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/freshbasket/freshbasket/internal/observability"
)

const (
	postmarkBaseURL = "https://api.postmarkapp.com"
	// OTP and order mails are transactional; broadcast streams are never used.
	postmarkStream = "outbound"
)

// PostmarkProvider sends mail through the Postmark REST API.
type PostmarkProvider struct {
	apiKey  string
	from    string
	baseURL string
	client  *http.Client
}

func NewPostmarkProvider(apiKey, from string) *PostmarkProvider {
	return &PostmarkProvider{
		apiKey:  apiKey,
		from:    from,
		baseURL: postmarkBaseURL,
		client:  observability.NewHTTPClient(30 * time.Second),
	}
}

type postmarkEmail struct {
	From          string `json:"From"`
	To            string `json:"To"`
	Subject       string `json:"Subject"`
	TextBody      string `json:"TextBody,omitempty"`
	HtmlBody      string `json:"HtmlBody,omitempty"`
	Tag           string `json:"Tag,omitempty"`
	MessageStream string `json:"MessageStream"`
	TrackOpens    bool   `json:"TrackOpens"`
	TrackLinks    string `json:"TrackLinks"`
}

type postmarkResult struct {
	ErrorCode int    `json:"ErrorCode"`
	Message   string `json:"Message"`
	MessageID string `json:"MessageID"`
}

func (p *PostmarkProvider) SendEmail(ctx context.Context, email *Email) error {
	if email == nil {
		return fmt.Errorf("email is required")
	}
	if email.Text == "" && email.HTML == "" {
		return fmt.Errorf("email body is empty")
	}

	payload, err := json.Marshal(postmarkEmail{
		From:          p.from,
		To:            email.To,
		Subject:       email.Subject,
		TextBody:      email.Text,
		HtmlBody:      email.HTML,
		Tag:           email.Tag,
		MessageStream: postmarkStream,
		TrackLinks:    "None",
	})
	if err != nil {
		return fmt.Errorf("failed to encode postmark email: %w", err)
	}

	var result postmarkResult
	status, err := p.call(ctx, http.MethodPost, "/email", payload, &result)
	if err != nil {
		return err
	}
	if result.ErrorCode != 0 {
		return fmt.Errorf("postmark error (%d): %s", result.ErrorCode, result.Message)
	}
	if status != http.StatusOK {
		return fmt.Errorf("postmark returned status %d", status)
	}
	return nil
}

// ValidateAPIKey fetches the server record the token belongs to.
func (p *PostmarkProvider) ValidateAPIKey(ctx context.Context) error {
	status, err := p.call(ctx, http.MethodGet, "/server", nil, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("invalid postmark server token: status %d", status)
	}
	return nil
}

// call performs one API request. A JSON body is decoded into out whatever
// the status, because Postmark reports failures in the same envelope.
func (p *PostmarkProvider) call(ctx context.Context, method, path string, payload []byte, out any) (int, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("failed to build postmark request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", p.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("postmark request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read postmark response: %w", err)
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil && resp.StatusCode == http.StatusOK {
			return resp.StatusCode, fmt.Errorf("failed to decode postmark response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
