package observability

import (
	"net/http"
	"time"

	sentryhttpclient "github.com/getsentry/sentry-go/httpclient"
)

const userAgent = "freshbasket-api"

// Outbound providers that receive Sentry trace headers.
var tracePropagationTargets = []string{
	"api.twilio.com",
	"api.postmarkapp.com",
	"api.resend.com",
}

// providerTransport stamps every provider call with the service user agent.
type providerTransport struct {
	base http.RoundTripper
}

func (t providerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", userAgent)
	}
	return t.base.RoundTrip(req)
}

// NewHTTPClient returns the client used for SMS and email providers. Requests
// are traced as Sentry spans.
func NewHTTPClient(timeout time.Duration) *http.Client {
	transport := sentryhttpclient.NewSentryRoundTripper(
		providerTransport{base: http.DefaultTransport},
		sentryhttpclient.WithTracePropagationTargets(tracePropagationTargets),
	)
	return &http.Client{Transport: transport, Timeout: timeout}
}
