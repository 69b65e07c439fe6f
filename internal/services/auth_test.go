package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/freshbasket/freshbasket/internal/auth"
	"github.com/freshbasket/freshbasket/internal/email"
	"github.com/freshbasket/freshbasket/internal/memstore"
	"github.com/freshbasket/freshbasket/internal/models"
	"github.com/freshbasket/freshbasket/internal/otp"
)

type recordingSMS struct {
	mu       sync.Mutex
	messages map[string]string
}

func (r *recordingSMS) Send(_ context.Context, to, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.messages == nil {
		r.messages = make(map[string]string)
	}
	r.messages[to] = body
	return nil
}

func (r *recordingSMS) last(to string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.messages[to]
}

type recordingMail struct {
	mu   sync.Mutex
	sent []*email.Email
}

func (r *recordingMail) SendEmail(_ context.Context, message *email.Email) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, message)
	return nil
}

func (r *recordingMail) ValidateAPIKey(context.Context) error { return nil }

type allowNone struct{}

func (allowNone) Allow(string) bool { return false }

// denyPrefix throttles only the keys of one auth step.
type denyPrefix string

func (d denyPrefix) Allow(key string) bool { return !strings.HasPrefix(key, string(d)) }

type authFixture struct {
	svc    *AuthService
	mem    *memstore.Store
	sms    *recordingSMS
	mail   *recordingMail
	tokens *auth.TokenManager
}

func newAuthFixture(t *testing.T, echo bool) *authFixture {
	t.Helper()

	mem := memstore.New()
	manager, err := otp.NewManager(otp.NewMemoryStore(), otp.Options{})
	if err != nil {
		t.Fatalf("otp.NewManager() error = %v", err)
	}
	tokens, err := auth.NewTokenManager(strings.Repeat("t", 32), auth.TokenOptions{})
	if err != nil {
		t.Fatalf("auth.NewTokenManager() error = %v", err)
	}
	renderer, err := email.NewRenderer()
	if err != nil {
		t.Fatalf("email.NewRenderer() error = %v", err)
	}
	limiter, err := otp.NewLimiter(60, 10)
	if err != nil {
		t.Fatalf("otp.NewLimiter() error = %v", err)
	}

	fixture := &authFixture{mem: mem, sms: &recordingSMS{}, mail: &recordingMail{}, tokens: tokens}
	svc, err := NewAuthService(AuthDependencies{
		Users:    mem.Users(),
		Admins:   mem.Admins(),
		OTP:      manager,
		Tokens:   tokens,
		Limiter:  limiter,
		SMS:      fixture.sms,
		Mail:     fixture.mail,
		Renderer: renderer,
		EchoOTP:  echo,
		Logger:   discardLogger(),
	})
	if err != nil {
		t.Fatalf("NewAuthService() error = %v", err)
	}
	fixture.svc = svc
	return fixture
}

func codeFromSMS(t *testing.T, body string) string {
	t.Helper()

	code, _, ok := strings.Cut(body, " ")
	if !ok || len(code) != otp.DefaultLength {
		t.Fatalf("unexpected sms body %q", body)
	}
	return code
}

func TestParseContact(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   ContactInput
		want    contact
		wantErr bool
	}{
		{name: "mobile", input: ContactInput{Mobile: "98765 43210"}, want: contact{channel: ChannelSMS, value: "9876543210"}},
		{name: "international mobile", input: ContactInput{Mobile: "+91-9876543210"}, want: contact{channel: ChannelSMS, value: "+919876543210"}},
		{name: "email lowercased", input: ContactInput{Email: " Asha@Example.com "}, want: contact{channel: ChannelEmail, value: "asha@example.com"}},
		{name: "short mobile", input: ContactInput{Mobile: "12345"}, wantErr: true},
		{name: "bad email", input: ContactInput{Email: "not-an-email"}, wantErr: true},
		{name: "both", input: ContactInput{Mobile: "9876543210", Email: "a@example.com"}, wantErr: true},
		{name: "neither", input: ContactInput{}, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := parseContact(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("expected ErrValidation, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseContact() error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestAuthService_OTPLoginCreatesUserOnce(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t, false)
	ctx := context.Background()
	input := ContactInput{Mobile: "9876543210"}

	result, err := f.svc.RequestOTP(ctx, input)
	if err != nil {
		t.Fatalf("RequestOTP() error = %v", err)
	}
	if result.Channel != ChannelSMS || result.Code != "" {
		t.Fatalf("unexpected result: %+v", result)
	}

	session, err := f.svc.VerifyOTP(ctx, input, codeFromSMS(t, f.sms.last("9876543210")))
	if err != nil {
		t.Fatalf("VerifyOTP() error = %v", err)
	}
	if !session.Created || session.User.Mobile != "9876543210" {
		t.Fatalf("expected new user, got %+v", session)
	}
	identity, err := f.tokens.Verify(session.Token)
	if err != nil {
		t.Fatalf("token did not verify: %v", err)
	}
	if identity != (models.Identity{ID: session.User.ID, Role: models.RoleUser}) {
		t.Fatalf("unexpected identity %+v", identity)
	}

	if _, err := f.svc.RequestOTP(ctx, input); err != nil {
		t.Fatalf("RequestOTP() error = %v", err)
	}
	again, err := f.svc.VerifyOTP(ctx, input, codeFromSMS(t, f.sms.last("9876543210")))
	if err != nil {
		t.Fatalf("VerifyOTP() error = %v", err)
	}
	if again.Created || again.User.ID != session.User.ID {
		t.Fatalf("expected existing user %s, got %+v", session.User.ID, again)
	}
}

func TestAuthService_EmailOTPWithEcho(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t, true)
	ctx := context.Background()
	input := ContactInput{Email: "asha@example.com"}

	result, err := f.svc.RequestOTP(ctx, input)
	if err != nil {
		t.Fatalf("RequestOTP() error = %v", err)
	}
	if result.Channel != ChannelEmail || result.Code == "" {
		t.Fatalf("expected echoed code, got %+v", result)
	}
	if len(f.mail.sent) != 1 || !strings.Contains(f.mail.sent[0].Text, result.Code) {
		t.Fatalf("expected code to be emailed, got %+v", f.mail.sent)
	}

	session, err := f.svc.VerifyOTP(ctx, input, result.Code)
	if err != nil {
		t.Fatalf("VerifyOTP() error = %v", err)
	}
	if session.User.Email != "asha@example.com" {
		t.Fatalf("unexpected user %+v", session.User)
	}
}

func TestAuthService_VerifyOTPRejectsWrongCode(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t, true)
	ctx := context.Background()
	input := ContactInput{Mobile: "9876543210"}

	result, err := f.svc.RequestOTP(ctx, input)
	if err != nil {
		t.Fatalf("RequestOTP() error = %v", err)
	}
	wrong := "0000"
	if result.Code == wrong {
		wrong = "1111"
	}
	if _, err := f.svc.VerifyOTP(ctx, input, wrong); !errors.Is(err, ErrOTPInvalid) {
		t.Fatalf("expected ErrOTPInvalid, got %v", err)
	}
	if _, err := f.svc.VerifyOTP(ctx, ContactInput{Mobile: "9123456780"}, result.Code); !errors.Is(err, ErrOTPInvalid) {
		t.Fatalf("expected code to be bound to its contact, got %v", err)
	}
	users, _ := f.mem.Users().List(ctx)
	if len(users) != 0 {
		t.Fatalf("expected no users to be created, got %d", len(users))
	}
}

func TestAuthService_RequestOTPRateLimited(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t, false)
	f.svc.limiter = allowNone{}

	_, err := f.svc.RequestOTP(context.Background(), ContactInput{Mobile: "9876543210"})
	if KindOf(err) != KindRateLimited {
		t.Fatalf("expected RateLimited, got %v", err)
	}
	if f.sms.last("9876543210") != "" {
		t.Fatal("expected no sms to be sent")
	}
}

func TestAuthService_VerifyOTPRateLimited(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t, true)
	ctx := context.Background()
	input := ContactInput{Mobile: "9876543210"}

	result, err := f.svc.RequestOTP(ctx, input)
	if err != nil {
		t.Fatalf("RequestOTP() error = %v", err)
	}

	limiter := f.svc.limiter
	f.svc.limiter = denyPrefix("verify:")
	if _, err := f.svc.VerifyOTP(ctx, input, result.Code); KindOf(err) != KindRateLimited {
		t.Fatalf("expected RateLimited, got %v", err)
	}

	f.svc.limiter = limiter
	if _, err := f.svc.VerifyOTP(ctx, input, result.Code); err != nil {
		t.Fatalf("expected throttled call not to consume the code, got %v", err)
	}
}

func TestAuthService_VerifyOTPUsesSeparateBudget(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t, true)
	limiter, err := otp.NewLimiter(1, 1)
	if err != nil {
		t.Fatalf("otp.NewLimiter() error = %v", err)
	}
	f.svc.limiter = limiter
	ctx := context.Background()
	input := ContactInput{Email: "asha@example.com"}

	result, err := f.svc.RequestOTP(ctx, input)
	if err != nil {
		t.Fatalf("RequestOTP() error = %v", err)
	}
	if _, err := f.svc.VerifyOTP(ctx, input, "0000"); !errors.Is(err, ErrOTPInvalid) {
		t.Fatalf("expected ErrOTPInvalid, got %v", err)
	}
	if _, err := f.svc.VerifyOTP(ctx, input, result.Code); KindOf(err) != KindRateLimited {
		t.Fatalf("expected second immediate guess to be throttled, got %v", err)
	}
}

func TestAuthService_AdminLoginRateLimited(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t, false)
	ctx := context.Background()
	if err := f.svc.EnsureBootstrapAdmin(ctx, "root@example.com", "correct-horse"); err != nil {
		t.Fatalf("EnsureBootstrapAdmin() error = %v", err)
	}

	f.svc.limiter = denyPrefix("admin-login:")
	if _, err := f.svc.AdminLogin(ctx, "root@example.com", "correct-horse"); KindOf(err) != KindRateLimited {
		t.Fatalf("expected RateLimited, got %v", err)
	}
	if _, err := f.svc.AdminLogin(ctx, "nobody@example.com", "anything"); KindOf(err) != KindRateLimited {
		t.Fatalf("expected unknown emails to be throttled too, got %v", err)
	}
}

func TestUnknownAdminHashIsComparable(t *testing.T) {
	t.Parallel()

	cost, err := bcrypt.Cost(unknownAdminHash())
	if err != nil {
		t.Fatalf("bcrypt.Cost() error = %v", err)
	}
	if cost != bcrypt.DefaultCost {
		t.Fatalf("placeholder hash cost = %d, want %d", cost, bcrypt.DefaultCost)
	}
}

func TestAuthService_AdminLogin(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t, false)
	ctx := context.Background()

	if err := f.svc.EnsureBootstrapAdmin(ctx, "Root@Example.com", "correct-horse"); err != nil {
		t.Fatalf("EnsureBootstrapAdmin() error = %v", err)
	}
	if err := f.svc.EnsureBootstrapAdmin(ctx, "root@example.com", "correct-horse"); err != nil {
		t.Fatalf("EnsureBootstrapAdmin() second call error = %v", err)
	}
	admins, _ := f.mem.Admins().List(ctx)
	if len(admins) != 1 {
		t.Fatalf("expected one admin, got %d", len(admins))
	}

	session, err := f.svc.AdminLogin(ctx, "root@example.com", "correct-horse")
	if err != nil {
		t.Fatalf("AdminLogin() error = %v", err)
	}
	identity, err := f.tokens.Verify(session.Token)
	if err != nil || !identity.IsAdmin() {
		t.Fatalf("expected admin token, got %+v (%v)", identity, err)
	}

	tests := []struct {
		name     string
		email    string
		password string
		kind     Kind
	}{
		{name: "wrong password", email: "root@example.com", password: "wrong-password", kind: KindUnauthenticated},
		{name: "unknown admin", email: "nobody@example.com", password: "correct-horse", kind: KindUnauthenticated},
		{name: "missing password", email: "root@example.com", kind: KindValidation},
	}
	for _, tt := range tests {
		_, err := f.svc.AdminLogin(ctx, tt.email, tt.password)
		if KindOf(err) != tt.kind {
			t.Fatalf("%s: expected %s, got %v", tt.name, tt.kind, err)
		}
	}
}

func TestAuthService_RegisterAdmin(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t, false)
	ctx := context.Background()
	input := RegisterAdminInput{Name: "Ravi", Email: "ravi@example.com", Password: "long-enough"}

	if _, err := f.svc.RegisterAdmin(ctx, testUserA, input); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for user, got %v", err)
	}
	admin, err := f.svc.RegisterAdmin(ctx, testAdmin, input)
	if err != nil {
		t.Fatalf("RegisterAdmin() error = %v", err)
	}
	if admin.PasswordHash == "" || admin.PasswordHash == input.Password {
		t.Fatal("expected password to be hashed")
	}
	if _, err := f.svc.RegisterAdmin(ctx, testAdmin, input); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate email, got %v", err)
	}

	input.Email = "short@example.com"
	input.Password = "short"
	if _, err := f.svc.RegisterAdmin(ctx, testAdmin, input); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for short password, got %v", err)
	}
}
