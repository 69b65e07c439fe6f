package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/freshbasket/freshbasket/internal/auth"
	"github.com/freshbasket/freshbasket/internal/cache"
	"github.com/freshbasket/freshbasket/internal/catalog"
	"github.com/freshbasket/freshbasket/internal/config"
	"github.com/freshbasket/freshbasket/internal/crypto"
	"github.com/freshbasket/freshbasket/internal/db"
	"github.com/freshbasket/freshbasket/internal/email"
	"github.com/freshbasket/freshbasket/internal/handlers"
	"github.com/freshbasket/freshbasket/internal/logging"
	"github.com/freshbasket/freshbasket/internal/memstore"
	"github.com/freshbasket/freshbasket/internal/mongostore"
	"github.com/freshbasket/freshbasket/internal/otp"
	"github.com/freshbasket/freshbasket/internal/services"
	"github.com/freshbasket/freshbasket/internal/sms"
)

const tokenIssuer = "freshbasket"

type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Handlers *handlers.Handlers

	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// backend is the repository set of whichever store provider is configured.
type backend struct {
	repos  services.Repositories
	pinger handlers.Pinger
	close  func() error
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	sentryEnabled := cfg.SentryDSN != ""
	if sentryEnabled {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.SentryEnvironment,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			EnableLogs:       true,
		}); err != nil {
			return nil, fmt.Errorf("failed to initialize sentry: %w", err)
		}
	}

	logger := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: os.Stdout,
		Sentry: sentryEnabled,
	})

	a := &App{Config: cfg, Logger: logger}
	if err := a.wire(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire() error {
	cfg, logger := a.Config, a.Logger

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	encryptor, err := crypto.NewEncryptor(cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	store, err := openBackend(startupCtx, cfg, encryptor, logger)
	if err != nil {
		return err
	}
	a.onClose("store", store.close)

	cacheProvider, err := cache.NewProvider(startupCtx, cache.Config{
		Provider:              cfg.CacheProvider,
		RedisConnectionString: cfg.RedisConnectionString,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize cache provider: %w", err)
	}
	a.onClose("cache provider", cacheProvider.Close)

	otpStore, err := otp.NewStore(startupCtx, otp.Config{
		Provider:              cfg.OTPStoreProvider,
		RedisConnectionString: cfg.RedisConnectionString,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize otp store: %w", err)
	}
	otpManager, err := otp.NewManager(otpStore, otp.Options{
		TTL:         cfg.OTPTTL,
		Length:      cfg.OTPLength,
		MaxAttempts: cfg.OTPMaxAttempts,
	})
	if err != nil {
		_ = otpStore.Close()
		return fmt.Errorf("failed to initialize otp manager: %w", err)
	}
	a.onClose("otp manager", otpManager.Close)

	limiter, err := otp.NewLimiter(cfg.OTPRatePerMinute, cfg.OTPRateBurst)
	if err != nil {
		return fmt.Errorf("failed to initialize otp limiter: %w", err)
	}

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, auth.TokenOptions{
		Issuer:   tokenIssuer,
		UserTTL:  cfg.UserTokenTTL,
		AdminTTL: cfg.AdminTokenTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize token manager: %w", err)
	}

	smsSender, err := sms.NewSender(sms.Config{
		Provider:   cfg.SMSProvider,
		AccountSID: cfg.TwilioAccountSID,
		AuthToken:  cfg.TwilioAuthToken,
		FromNumber: cfg.TwilioFromNumber,
	}, logger.With("component", "sms"))
	if err != nil {
		return fmt.Errorf("failed to initialize sms sender: %w", err)
	}

	mailer, err := email.NewProvider(email.Config{
		Provider: cfg.EmailProvider,
		APIKey:   cfg.EmailAPIKey,
		From:     cfg.EmailFrom,
	}, logger.With("component", "email"))
	if err != nil {
		return fmt.Errorf("failed to initialize email provider: %w", err)
	}
	if err := mailer.ValidateAPIKey(startupCtx); err != nil {
		logger.Warn("email provider rejected the configured API key", "provider", cfg.EmailProvider, "error", err)
	}
	renderer, err := email.NewRenderer()
	if err != nil {
		return fmt.Errorf("failed to initialize email templates: %w", err)
	}

	orderService, err := services.NewOrderService(
		store.repos,
		email.NewOrderNotifier(mailer, renderer, cfg.OrderNotifyEmail),
		services.OrderPolicy{
			CancellationWindow: cfg.CancellationWindow,
			StoreTimeout:       cfg.StoreTimeout,
		},
		logger.With("component", "order_service"),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize order service: %w", err)
	}
	cartService, err := services.NewCartService(
		store.repos.Carts,
		store.repos.Products,
		catalog.NewPricer(cfg.DeliveryFee, cfg.FreeDeliveryMin),
		cfg.StoreTimeout,
		logger.With("component", "cart_service"),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize cart service: %w", err)
	}
	catalogService, err := services.NewCatalogService(store.repos.Products, cacheProvider, cfg.CatalogCacheTTL, cfg.StoreTimeout, logger.With("component", "catalog_service"))
	if err != nil {
		return fmt.Errorf("failed to initialize catalog service: %w", err)
	}
	userService, err := services.NewUserService(store.repos.Users, store.repos.Admins, cfg.StoreTimeout, logger.With("component", "user_service"))
	if err != nil {
		return fmt.Errorf("failed to initialize user service: %w", err)
	}
	authService, err := services.NewAuthService(services.AuthDependencies{
		Users:        store.repos.Users,
		Admins:       store.repos.Admins,
		OTP:          otpManager,
		Tokens:       tokens,
		Limiter:      limiter,
		SMS:          smsSender,
		Mail:         mailer,
		Renderer:     renderer,
		EchoOTP:      cfg.OTPEcho,
		StoreTimeout: cfg.StoreTimeout,
		Logger:       logger.With("component", "auth_service"),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize auth service: %w", err)
	}
	if err := authService.EnsureBootstrapAdmin(startupCtx, cfg.AdminBootstrapEmail, cfg.AdminBootstrapPassword); err != nil {
		return fmt.Errorf("failed to create bootstrap admin: %w", err)
	}
	if cfg.OTPEcho {
		logger.Warn("OTP_ECHO is enabled; login codes are returned in API responses")
	}

	h, err := handlers.New(handlers.Dependencies{
		Store:          store.pinger,
		Tokens:         tokens,
		OrderService:   orderService,
		CartService:    cartService,
		CatalogService: catalogService,
		UserService:    userService,
		AuthService:    authService,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize handlers: %w", err)
	}
	a.Handlers = h
	return nil
}

func openBackend(ctx context.Context, cfg *config.Config, encryptor crypto.Encryptor, logger *slog.Logger) (*backend, error) {
	switch cfg.StoreProvider {
	case "memory":
		logger.Warn("using the in-memory store; data is lost on restart")
		mem := memstore.New()
		return &backend{
			repos: services.Repositories{
				Orders:   mem.Orders(),
				Carts:    mem.Carts(),
				Products: mem.Products(),
				Users:    mem.Users(),
				Admins:   mem.Admins(),
			},
			pinger: mem,
			close:  func() error { return nil },
		}, nil
	case "mongo":
		mongoStore, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, encryptor)
		if err != nil {
			return nil, err
		}
		if err := mongoStore.EnsureIndexes(ctx); err != nil {
			_ = mongoStore.Close()
			return nil, fmt.Errorf("failed to create MongoDB indexes: %w", err)
		}
		return &backend{
			repos: services.Repositories{
				Orders:   mongoStore.Orders,
				Carts:    mongoStore.Carts,
				Products: mongoStore.Products,
				Users:    mongoStore.Users,
				Admins:   mongoStore.Admins,
			},
			pinger: mongoStore,
			close:  mongoStore.Close,
		}, nil
	default:
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		pgStore, err := db.NewStore(pool, encryptor)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to initialize postgres store: %w", err)
		}
		return &backend{
			repos: services.Repositories{
				Orders:   pgStore.Orders,
				Carts:    pgStore.Carts,
				Products: pgStore.Products,
				Users:    pgStore.Users,
				Admins:   pgStore.Admins,
			},
			pinger: pgStore,
			close:  pgStore.Close,
		}, nil
	}
}

func (a *App) onClose(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, close: fn})
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	if a == nil {
		return
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		closer := a.closers[i]
		if err := closer.close(); err != nil && a.Logger != nil {
			a.Logger.Warn("failed to close "+closer.name, "error", err)
		}
	}
	a.closers = nil
}
