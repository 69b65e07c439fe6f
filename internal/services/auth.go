package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/freshbasket/freshbasket/internal/email"
	"github.com/freshbasket/freshbasket/internal/logging"
	"github.com/freshbasket/freshbasket/internal/models"
	"github.com/freshbasket/freshbasket/internal/observability"
	"github.com/freshbasket/freshbasket/internal/otp"
	"github.com/freshbasket/freshbasket/internal/sms"
)

const minAdminPasswordLength = 8

var (
	mobilePattern  = regexp.MustCompile(`^\+?[0-9]{10,15}$`)
	inputValidator = validator.New()
)

// OTPManager issues and checks one-time login codes.
type OTPManager interface {
	Issue(ctx context.Context, contact string) (string, time.Time, error)
	Verify(ctx context.Context, contact, code string) error
	TTL() time.Duration
}

type TokenIssuer interface {
	Issue(identity models.Identity) (string, time.Time, error)
}

type RequestLimiter interface {
	Allow(key string) bool
}

type OTPChannel string

const (
	ChannelSMS   OTPChannel = "sms"
	ChannelEmail OTPChannel = "email"
)

type AuthDependencies struct {
	Users    UserRepository
	Admins   AdminRepository
	OTP      OTPManager
	Tokens   TokenIssuer
	Limiter  RequestLimiter
	SMS      sms.Sender
	Mail     email.Provider
	Renderer *email.Renderer
	// EchoOTP returns issued codes to the caller. Development only.
	EchoOTP      bool
	StoreTimeout time.Duration
	Logger       *slog.Logger
}

type AuthService struct {
	users        UserRepository
	admins       AdminRepository
	otp          OTPManager
	tokens       TokenIssuer
	limiter      RequestLimiter
	sms          sms.Sender
	mail         email.Provider
	renderer     *email.Renderer
	echoOTP      bool
	storeTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

func NewAuthService(deps AuthDependencies) (*AuthService, error) {
	switch {
	case deps.Users == nil:
		return nil, fmt.Errorf("user repository is required")
	case deps.Admins == nil:
		return nil, fmt.Errorf("admin repository is required")
	case deps.OTP == nil:
		return nil, fmt.Errorf("otp manager is required")
	case deps.Tokens == nil:
		return nil, fmt.Errorf("token issuer is required")
	case deps.SMS == nil:
		return nil, fmt.Errorf("sms sender is required")
	case deps.Mail == nil || deps.Renderer == nil:
		return nil, fmt.Errorf("email provider and renderer are required")
	}
	return &AuthService{
		users:        deps.Users,
		admins:       deps.Admins,
		otp:          deps.OTP,
		tokens:       deps.Tokens,
		limiter:      deps.Limiter,
		sms:          deps.SMS,
		mail:         deps.Mail,
		renderer:     deps.Renderer,
		echoOTP:      deps.EchoOTP,
		storeTimeout: deps.StoreTimeout,
		now:          time.Now,
		logger:       deps.Logger,
	}, nil
}

func (s *AuthService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

type ContactInput struct {
	Mobile string
	Email  string
}

type contact struct {
	channel OTPChannel
	value   string
}

// parseContact accepts exactly one of mobile or email and normalises it.
func parseContact(input ContactInput) (contact, error) {
	mobile := strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(input.Mobile))
	address := strings.ToLower(strings.TrimSpace(input.Email))

	switch {
	case mobile != "" && address != "":
		return contact{}, validationError("provide either mobile or email, not both")
	case mobile != "":
		if !mobilePattern.MatchString(mobile) {
			return contact{}, validationError("mobile must be 10 to 15 digits")
		}
		return contact{channel: ChannelSMS, value: mobile}, nil
	case address != "":
		if err := inputValidator.Var(address, "email"); err != nil {
			return contact{}, validationError("email is invalid")
		}
		return contact{channel: ChannelEmail, value: address}, nil
	default:
		return contact{}, validationError("mobile or email is required")
	}
}

type OTPRequestResult struct {
	Channel   OTPChannel `json:"channel"`
	ExpiresAt time.Time  `json:"expiresAt"`
	// Code is only populated when echoing is enabled.
	Code string `json:"otp,omitempty"`
}

func (s *AuthService) RequestOTP(ctx context.Context, input ContactInput) (*OTPRequestResult, error) {
	meter := observability.MeterFromContext(ctx)

	target, err := parseContact(input)
	if err != nil {
		return nil, err
	}
	if s.limiter != nil && !s.limiter.Allow(target.value) {
		meter.Count(observability.MetricOTPThrottled, 1, sentry.WithAttributes(attribute.String("channel", string(target.channel))))
		return nil, fmt.Errorf("%w: wait before requesting another code", ErrRateLimited)
	}

	code, expiresAt, err := s.otp.Issue(ctx, target.value)
	if err != nil {
		return nil, fmt.Errorf("%w: issue otp: %w", ErrStorage, err)
	}

	if err := s.deliverOTP(ctx, target, code); err != nil {
		s.loggerFromContext(ctx).Error("failed to deliver otp", "channel", target.channel, "error", err)
		return nil, fmt.Errorf("failed to deliver otp: %w", err)
	}
	meter.Count(observability.MetricOTPSent, 1, sentry.WithAttributes(attribute.String("channel", string(target.channel))))

	result := &OTPRequestResult{Channel: target.channel, ExpiresAt: expiresAt}
	if s.echoOTP {
		result.Code = code
	}
	return result, nil
}

func (s *AuthService) deliverOTP(ctx context.Context, target contact, code string) error {
	if target.channel == ChannelSMS {
		body := fmt.Sprintf("%s is your FreshBasket login code. It expires in %d minutes.", code, int(s.otp.TTL().Minutes()))
		return s.sms.Send(ctx, target.value, body)
	}
	message, err := s.renderer.OTP(&email.OTPInfo{To: target.value, Code: code, ValidFor: s.otp.TTL()})
	if err != nil {
		return err
	}
	return s.mail.SendEmail(ctx, message)
}

type UserSession struct {
	User      *models.User `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	Created   bool         `json:"-"`
}

// VerifyOTP consumes a code and signs the customer in, creating their
// account on first login.
func (s *AuthService) VerifyOTP(ctx context.Context, input ContactInput, code string) (*UserSession, error) {
	target, err := parseContact(input)
	if err != nil {
		return nil, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, validationError("otp is required")
	}
	if s.limiter != nil && !s.limiter.Allow(verifyLimitKey(target.value)) {
		observability.MeterFromContext(ctx).Count(observability.MetricOTPThrottled, 1, sentry.WithAttributes(
			attribute.String("channel", string(target.channel)),
			attribute.String("step", "verify"),
		))
		return nil, fmt.Errorf("%w: wait before trying another code", ErrRateLimited)
	}

	if err := s.otp.Verify(ctx, target.value, code); err != nil {
		switch {
		case errors.Is(err, otp.ErrInvalidCode), errors.Is(err, otp.ErrExpired), errors.Is(err, otp.ErrTooManyAttempts):
			s.loggerFromContext(ctx).Info("otp rejected", "channel", target.channel, "reason", err)
			return nil, fmt.Errorf("%w: %w", ErrOTPInvalid, err)
		default:
			return nil, fmt.Errorf("%w: verify otp: %w", ErrStorage, err)
		}
	}

	user, created, err := s.findOrCreateUser(ctx, target)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.tokens.Issue(models.Identity{ID: user.ID, Role: models.RoleUser})
	if err != nil {
		return nil, err
	}
	if created {
		observability.MeterFromContext(ctx).Count(observability.MetricUserCreated, 1)
	}
	return &UserSession{User: user, Token: token, ExpiresAt: expiresAt, Created: created}, nil
}

func (s *AuthService) findOrCreateUser(ctx context.Context, target contact) (*models.User, bool, error) {
	ctx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()

	lookup := s.users.GetByMobile
	if target.channel == ChannelEmail {
		lookup = s.users.GetByEmail
	}

	user, err := lookup(ctx, target.value)
	if err == nil {
		return user, false, nil
	}
	if err = storeError("find user", err); !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	user = &models.User{}
	if target.channel == ChannelSMS {
		user.Mobile = target.value
	} else {
		user.Email = target.value
	}
	if err := s.users.Create(ctx, user); err != nil {
		err = storeError("create user", err)
		if !errors.Is(err, ErrConflict) {
			return nil, false, err
		}
		// Lost a race with a concurrent first login for the same contact.
		existing, lookupErr := lookup(ctx, target.value)
		if lookupErr != nil {
			return nil, false, storeError("find user", lookupErr)
		}
		return existing, false, nil
	}
	return user, true, nil
}

type AdminSession struct {
	Admin     *models.Admin `json:"admin"`
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expiresAt"`
}

func (s *AuthService) AdminLogin(ctx context.Context, emailAddress, password string) (*AdminSession, error) {
	emailAddress = strings.ToLower(strings.TrimSpace(emailAddress))
	if emailAddress == "" || password == "" {
		return nil, validationError("email and password are required")
	}

	if s.limiter != nil && !s.limiter.Allow(adminLoginLimitKey(emailAddress)) {
		s.loggerFromContext(ctx).Warn("admin login throttled")
		return nil, fmt.Errorf("%w: wait before trying again", ErrRateLimited)
	}

	lookupCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	admin, err := s.admins.GetByEmail(lookupCtx, emailAddress)
	cancel()
	if err != nil {
		err = storeError("find admin", err)
		if errors.Is(err, ErrNotFound) {
			// Unknown emails pay the same bcrypt cost as wrong passwords.
			_ = bcrypt.CompareHashAndPassword(unknownAdminHash(), []byte(password))
			return nil, fmt.Errorf("%w: invalid credentials", ErrUnauthenticated)
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		s.loggerFromContext(ctx).Warn("admin login rejected", "admin_id", admin.ID)
		return nil, fmt.Errorf("%w: invalid credentials", ErrUnauthenticated)
	}

	token, expiresAt, err := s.tokens.Issue(models.Identity{ID: admin.ID, Role: models.RoleAdmin})
	if err != nil {
		return nil, err
	}
	return &AdminSession{Admin: admin, Token: token, ExpiresAt: expiresAt}, nil
}

var unknownAdminHash = sync.OnceValue(func() []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte("freshbasket-unknown-admin"), bcrypt.DefaultCost)
	if err != nil {
		panic(fmt.Sprintf("generate placeholder admin hash: %v", err))
	}
	return hash
})

func verifyLimitKey(contact string) string {
	return "verify:" + contact
}

func adminLoginLimitKey(emailAddress string) string {
	return "admin-login:" + emailAddress
}

type RegisterAdminInput struct {
	Name     string `validate:"required,max=120"`
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

// RegisterAdmin lets an existing admin create another one.
func (s *AuthService) RegisterAdmin(ctx context.Context, requester models.Identity, input RegisterAdminInput) (*models.Admin, error) {
	if err := requireAdmin(requester); err != nil {
		return nil, err
	}
	return s.createAdmin(ctx, input)
}

func (s *AuthService) createAdmin(ctx context.Context, input RegisterAdminInput) (*models.Admin, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if err := inputValidator.Struct(input); err != nil {
		return nil, validationError("name, a valid email and a password are required")
	}
	if len(input.Password) < minAdminPasswordLength {
		return nil, validationError("password must be at least %d characters", minAdminPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	admin := &models.Admin{
		Name:         input.Name,
		Email:        input.Email,
		PasswordHash: string(hash),
	}

	ctx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := s.admins.Create(ctx, admin); err != nil {
		err = storeError("create admin", err)
		if errors.Is(err, ErrConflict) {
			return nil, fmt.Errorf("%w: email already registered", ErrConflict)
		}
		return nil, err
	}
	return admin, nil
}

// EnsureBootstrapAdmin creates the configured admin if no admin with that
// email exists yet. It is safe to call on every start.
func (s *AuthService) EnsureBootstrapAdmin(ctx context.Context, emailAddress, password string) error {
	emailAddress = strings.ToLower(strings.TrimSpace(emailAddress))
	if emailAddress == "" {
		return nil
	}

	lookupCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	_, err := s.admins.GetByEmail(lookupCtx, emailAddress)
	cancel()
	if err == nil {
		return nil
	}
	if err = storeError("find admin", err); !errors.Is(err, ErrNotFound) {
		return err
	}

	admin, err := s.createAdmin(ctx, RegisterAdminInput{Name: "Administrator", Email: emailAddress, Password: password})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return nil
		}
		return err
	}
	s.loggerFromContext(ctx).Info("bootstrap admin created", "admin_id", admin.ID)
	return nil
}
