package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/freshbasket/freshbasket/internal/logging"
	"github.com/freshbasket/freshbasket/internal/models"
	"github.com/freshbasket/freshbasket/internal/services"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// TokenVerifier resolves a bearer token into the caller's identity.
type TokenVerifier interface {
	Verify(token string) (models.Identity, error)
}

// Handlers provides the HTTP handlers of the freshbasket API.
type Handlers struct {
	store          Pinger
	tokens         TokenVerifier
	orders         *services.OrderService
	carts          *services.CartService
	catalog        *services.CatalogService
	users          *services.UserService
	auth           *services.AuthService
	allowedOrigins map[string]struct{}
	allowAnyOrigin bool
	logger         *slog.Logger
}

type Dependencies struct {
	Store          Pinger
	Tokens         TokenVerifier
	OrderService   *services.OrderService
	CartService    *services.CartService
	CatalogService *services.CatalogService
	UserService    *services.UserService
	AuthService    *services.AuthService
	AllowedOrigins []string
	Logger         *slog.Logger
}

func New(deps Dependencies) (*Handlers, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if deps.Store == nil {
		return nil, fmt.Errorf("handlers dependencies: store is required")
	}
	if deps.Tokens == nil {
		return nil, fmt.Errorf("handlers dependencies: tokens is required")
	}
	if deps.OrderService == nil {
		return nil, fmt.Errorf("handlers dependencies: orderService is required")
	}
	if deps.CartService == nil {
		return nil, fmt.Errorf("handlers dependencies: cartService is required")
	}
	if deps.CatalogService == nil {
		return nil, fmt.Errorf("handlers dependencies: catalogService is required")
	}
	if deps.UserService == nil {
		return nil, fmt.Errorf("handlers dependencies: userService is required")
	}
	if deps.AuthService == nil {
		return nil, fmt.Errorf("handlers dependencies: authService is required")
	}

	h := &Handlers{
		store:          deps.Store,
		tokens:         deps.Tokens,
		orders:         deps.OrderService,
		carts:          deps.CartService,
		catalog:        deps.CatalogService,
		users:          deps.UserService,
		auth:           deps.AuthService,
		allowedOrigins: make(map[string]struct{}, len(deps.AllowedOrigins)),
		logger:         logger.With("component", "handlers"),
	}
	for _, origin := range deps.AllowedOrigins {
		origin = normalizeOrigin(origin)
		switch origin {
		case "":
		case "*":
			h.allowAnyOrigin = true
		default:
			h.allowedOrigins[origin] = struct{}{}
		}
	}
	return h, nil
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	if err := h.store.Ping(ctx); err != nil {
		logger.Error("store health check failed", "error", err)
		writeMessage(w, http.StatusServiceUnavailable, "Store unhealthy")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handlers) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, h.logger)
}
