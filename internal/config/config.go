package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	StoreProvider string        `env:"STORE_PROVIDER" envDefault:"postgres" validate:"oneof=postgres mongo memory"`
	DatabaseURL   string        `env:"DATABASE_URL" validate:"required_if=StoreProvider postgres"`
	MongoURI      string        `env:"MONGO_URI" validate:"required_if=StoreProvider mongo"`
	MongoDatabase string        `env:"MONGO_DATABASE" envDefault:"freshbasket" validate:"required_if=StoreProvider mongo"`
	StoreTimeout  time.Duration `env:"STORE_TIMEOUT" envDefault:"8s" validate:"min=1s,max=30s"`

	JWTSecret     string        `env:"JWT_SECRET,required" validate:"required,min=32"`
	UserTokenTTL  time.Duration `env:"USER_TOKEN_TTL" envDefault:"24h" validate:"gt=0"`
	AdminTokenTTL time.Duration `env:"ADMIN_TOKEN_TTL" envDefault:"168h" validate:"gt=0"`

	CancellationWindow time.Duration `env:"CANCELLATION_WINDOW" envDefault:"3m" validate:"gt=0"`
	DeliveryFee        float64       `env:"DELIVERY_FEE" envDefault:"0" validate:"gte=0"`
	FreeDeliveryMin    float64       `env:"FREE_DELIVERY_MIN" envDefault:"0" validate:"gte=0"`

	OTPStoreProvider string        `env:"OTP_STORE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	OTPTTL           time.Duration `env:"OTP_TTL" envDefault:"5m" validate:"gt=0"`
	OTPLength        int           `env:"OTP_LENGTH" envDefault:"4" validate:"min=4,max=8"`
	OTPMaxAttempts   int           `env:"OTP_MAX_ATTEMPTS" envDefault:"5" validate:"min=1"`
	OTPRatePerMinute float64       `env:"OTP_RATE_PER_MINUTE" envDefault:"5" validate:"gt=0"`
	OTPRateBurst     int           `env:"OTP_RATE_BURST" envDefault:"3" validate:"min=1"`
	// OTPEcho returns the code in the API response. Development only.
	OTPEcho bool `env:"OTP_ECHO" envDefault:"false"`

	CacheProvider         string        `env:"CACHE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	CatalogCacheTTL       time.Duration `env:"CATALOG_CACHE_TTL" envDefault:"5m" validate:"gt=0"`
	RedisConnectionString string        `env:"REDIS_CONNECTION_STRING" envDefault:"redis://localhost:6379/0" validate:"required_if=CacheProvider redis,required_if=OTPStoreProvider redis"`

	SMSProvider      string `env:"SMS_PROVIDER" envDefault:"log" validate:"omitempty,oneof=log twilio"`
	TwilioAccountSID string `env:"TWILIO_ACCOUNT_SID" validate:"required_if=SMSProvider twilio"`
	TwilioAuthToken  string `env:"TWILIO_AUTH_TOKEN" validate:"required_if=SMSProvider twilio"`
	TwilioFromNumber string `env:"TWILIO_FROM_NUMBER" validate:"required_if=SMSProvider twilio"`

	EmailProvider    string `env:"EMAIL_PROVIDER" envDefault:"log" validate:"omitempty,oneof=log resend postmark"`
	EmailAPIKey      string `env:"EMAIL_API_KEY"`
	EmailFrom        string `env:"EMAIL_FROM" validate:"omitempty,email"`
	OrderNotifyEmail string `env:"ORDER_NOTIFY_EMAIL" validate:"omitempty,email"`

	EncryptionKey string `env:"ENCRYPTION_KEY,required" validate:"required,len=32"`

	AdminBootstrapEmail    string `env:"ADMIN_BOOTSTRAP_EMAIL" validate:"omitempty,email"`
	AdminBootstrapPassword string `env:"ADMIN_BOOTSTRAP_PASSWORD" validate:"omitempty,min=8"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	BaseURL            string   `env:"BASE_URL" validate:"omitempty,url"`

	SentryDSN         string `env:"SENTRY_DSN" validate:"omitempty,url"`
	SentryEnvironment string `env:"SENTRY_ENVIRONMENT" envDefault:"development"`

	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat string     `env:"LOG_FORMAT" envDefault:"text" validate:"omitempty,oneof=text json"`
	Port      string     `env:"PORT" envDefault:"8080"`
}

var configValidator = validator.New()

func Load() (*Config, error) {
	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if err := configValidator.Struct(c); err != nil {
		return err
	}

	hasBootstrapEmail := strings.TrimSpace(c.AdminBootstrapEmail) != ""
	hasBootstrapPassword := c.AdminBootstrapPassword != ""
	if hasBootstrapEmail != hasBootstrapPassword {
		return fmt.Errorf("ADMIN_BOOTSTRAP_EMAIL and ADMIN_BOOTSTRAP_PASSWORD must be set together")
	}

	if c.EmailProvider == "resend" || c.EmailProvider == "postmark" {
		if strings.TrimSpace(c.EmailAPIKey) == "" || strings.TrimSpace(c.EmailFrom) == "" {
			return fmt.Errorf("EMAIL_API_KEY and EMAIL_FROM are required for the %s email provider", c.EmailProvider)
		}
	}

	for _, origin := range c.CORSAllowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			continue
		}
		parsed, err := url.Parse(origin)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("CORS_ALLOWED_ORIGINS contains an invalid origin: %q", origin)
		}
	}

	baseURL := strings.TrimSpace(c.BaseURL)
	if baseURL != "" {
		parsed, err := url.Parse(baseURL)
		if err != nil || parsed.Hostname() == "" {
			return fmt.Errorf("BASE_URL must be a valid absolute URL")
		}
		if !isLocalHost(parsed.Hostname()) && !strings.EqualFold(parsed.Scheme, "https") {
			return fmt.Errorf("BASE_URL must use https outside local development")
		}
	}

	if c.OTPEcho && baseURL != "" {
		parsed, _ := url.Parse(baseURL)
		if !isLocalHost(parsed.Hostname()) {
			return fmt.Errorf("OTP_ECHO is only allowed for local development")
		}
	}

	return nil
}

func isLocalHost(host string) bool {
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}
