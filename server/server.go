package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/gorilla/mux"

	"github.com/freshbasket/freshbasket/internal/config"
	"github.com/freshbasket/freshbasket/internal/handlers"
)

type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	handlers   *handlers.Handlers
	httpServer *http.Server
}

func New(cfg *config.Config, logger *slog.Logger, h *handlers.Handlers) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if h == nil {
		return nil, fmt.Errorf("handlers are required")
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		handlers: h,
	}

	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return s, nil
}

// Handler returns the full middleware chain around the router. CORS sits
// outside the router so preflight requests never reach method matching.
func (s *Server) Handler() http.Handler {
	sentryHandler := sentryhttp.New(sentryhttp.Options{Repanic: true})
	return sentryHandler.Handle(s.handlers.Recoverer(s.handlers.CORS(s.buildRouter())))
}

func (s *Server) Run() error {
	s.logger.Info("server starting", "port", s.cfg.Port)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Close(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}

	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) buildRouter() *mux.Router {
	h := s.handlers

	r := mux.NewRouter()
	r.Use(h.RequestLogger)
	r.Use(h.SecurityHeaders)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Route not found"}`))
	})

	// Public routes
	public := r.NewRoute().Subrouter()
	public.Use(h.MetricsContext)
	public.HandleFunc("/health", h.Health).Methods("GET").Name("health")
	public.HandleFunc("/auth/user/send-otp", h.SendOTP).Methods("POST").Name("auth.user.send_otp")
	public.HandleFunc("/auth/user/verify-otp", h.VerifyOTP).Methods("POST").Name("auth.user.verify_otp")
	public.HandleFunc("/auth/admin/login", h.AdminLogin).Methods("POST").Name("auth.admin.login")
	public.HandleFunc("/api/products", h.ListProducts).Methods("GET").Name("products.list")
	public.HandleFunc("/api/products/{id}", h.GetProduct).Methods("GET").Name("products.get")

	// Routes open to any signed-in caller; the service enforces ownership.
	authed := r.NewRoute().Subrouter()
	authed.Use(h.Authenticate)
	authed.Use(h.MetricsContext)
	authed.HandleFunc("/api/orders/{id}/cancel", h.CancelOrder).Methods("PUT").Name("orders.cancel")

	user := r.NewRoute().Subrouter()
	user.Use(h.Authenticate)
	user.Use(h.RequireUser)
	user.Use(h.MetricsContext)
	user.HandleFunc("/api/orders", h.PlaceOrder).Methods("POST").Name("orders.place")
	user.HandleFunc("/api/orders/my-orders", h.MyOrders).Methods("GET").Name("orders.mine")
	user.HandleFunc("/api/cart", h.GetCart).Methods("GET").Name("cart.get")
	user.HandleFunc("/api/cart", h.ReplaceCart).Methods("POST").Name("cart.replace")
	user.HandleFunc("/api/cart", h.ClearCart).Methods("DELETE").Name("cart.clear")
	user.HandleFunc("/api/cart/{productId}", h.RemoveCartItem).Methods("DELETE").Name("cart.remove_item")
	user.HandleFunc("/api/users/profile", h.GetProfile).Methods("GET").Name("users.profile.get")
	user.HandleFunc("/api/users/profile", h.UpdateProfile).Methods("PUT").Name("users.profile.update")

	// Admin routes. Static order paths are registered before /api/orders/{id}.
	admin := r.NewRoute().Subrouter()
	admin.Use(h.Authenticate)
	admin.Use(h.RequireAdmin)
	admin.Use(h.MetricsContext)
	admin.HandleFunc("/auth/admin/register", h.RegisterAdmin).Methods("POST").Name("auth.admin.register")
	admin.HandleFunc("/api/orders", h.ListOrders).Methods("GET").Name("orders.list")
	admin.HandleFunc("/api/orders/users-summary", h.UsersSummary).Methods("GET").Name("orders.users_summary")
	admin.HandleFunc("/api/orders/clear-history", h.ClearHistory).Methods("PUT").Name("orders.clear_history")
	admin.HandleFunc("/api/orders/users/{id}/orders", h.UserOrders).Methods("GET").Name("orders.user_orders")
	admin.HandleFunc("/api/orders/{id}/status", h.SetOrderStatus).Methods("PUT").Name("orders.status")
	admin.HandleFunc("/api/orders/{id}/delivery-time", h.SetOrderDeliveryTime).Methods("PUT").Name("orders.delivery_time")
	admin.HandleFunc("/api/orders/{id}", h.GetOrder).Methods("GET").Name("orders.get")
	admin.HandleFunc("/api/orders/{id}", h.DeleteOrder).Methods("DELETE").Name("orders.delete")
	admin.HandleFunc("/api/products", h.CreateProduct).Methods("POST").Name("products.create")
	admin.HandleFunc("/api/products/{id}", h.UpdateProduct).Methods("PUT").Name("products.update")
	admin.HandleFunc("/api/products/{id}", h.DeleteProduct).Methods("DELETE").Name("products.delete")
	admin.HandleFunc("/api/admin/me", h.AdminMe).Methods("GET").Name("admin.me")
	admin.HandleFunc("/api/admin/users", h.AdminListUsers).Methods("GET").Name("admin.users")
	admin.HandleFunc("/api/admin/admins", h.AdminListAdmins).Methods("GET").Name("admin.admins")
	admin.HandleFunc("/api/admin/users/{id}", h.AdminDeleteUser).Methods("DELETE").Name("admin.users.delete")

	return r
}
