package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/freshbasket/freshbasket/internal/auth"
	"github.com/freshbasket/freshbasket/internal/logging"
	"github.com/freshbasket/freshbasket/internal/models"
)

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	f := newHandlerFixture(t)
	token, _, err := f.tokens.Issue(f.user)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	var seen models.Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = auth.IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := f.h.Authenticate(next)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing header", header: "", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", want: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer not-a-jwt", want: http.StatusUnauthorized},
		{name: "valid token", header: "Bearer " + token, want: http.StatusNoContent},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/api/orders/my-orders", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Fatalf("%s: unexpected status: got=%d want=%d", tt.name, rec.Code, tt.want)
		}
	}
	if seen != f.user {
		t.Fatalf("unexpected identity in context: %+v", seen)
	}
}

func TestRequireRole(t *testing.T) {
	t.Parallel()

	f := newHandlerFixture(t)
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name     string
		handler  http.Handler
		identity *models.Identity
		want     int
	}{
		{name: "admin route without identity", handler: f.h.RequireAdmin(ok), want: http.StatusUnauthorized},
		{name: "admin route as user", handler: f.h.RequireAdmin(ok), identity: &f.user, want: http.StatusForbidden},
		{name: "admin route as admin", handler: f.h.RequireAdmin(ok), identity: &f.admin, want: http.StatusNoContent},
		{name: "user route as admin", handler: f.h.RequireUser(ok), identity: &f.admin, want: http.StatusForbidden},
		{name: "user route as user", handler: f.h.RequireUser(ok), identity: &f.user, want: http.StatusNoContent},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.identity != nil {
			req = req.WithContext(auth.WithIdentity(req.Context(), *tt.identity))
		}
		rec := httptest.NewRecorder()
		tt.handler.ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Fatalf("%s: unexpected status: got=%d want=%d", tt.name, rec.Code, tt.want)
		}
	}
}

func TestRecoverer(t *testing.T) {
	t.Parallel()

	f := newHandlerFixture(t)
	handler := f.h.Recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status: got=%d want=%d", rec.Code, http.StatusInternalServerError)
	}
	if got := decodeBody[errorResponse](t, rec); got.Message != "Something went wrong, please try again" {
		t.Fatalf("unexpected body: %+v", got)
	}
}

func TestRequestLoggerRequestID(t *testing.T) {
	t.Parallel()

	f := newHandlerFixture(t)
	var inContext string
	handler := f.h.RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inContext = logging.RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "req-123" || inContext != "req-123" {
		t.Fatalf("expected forwarded request id, got header=%q context=%q", got, inContext)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if got := rec.Header().Get("X-Request-ID"); got == "" || got == "req-123" {
		t.Fatalf("expected generated request id, got %q", got)
	}
}
