package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"

	"github.com/freshbasket/freshbasket/internal/logging"
	"github.com/freshbasket/freshbasket/internal/models"
	"github.com/freshbasket/freshbasket/internal/observability"
	"github.com/freshbasket/freshbasket/internal/store"
)

// OrderNotifier is told about newly placed orders. Failures never affect the order.
type OrderNotifier interface {
	OrderPlaced(ctx context.Context, order *models.Order) error
}

type noopOrderNotifier struct{}

func (noopOrderNotifier) OrderPlaced(context.Context, *models.Order) error { return nil }

type OrderPolicy struct {
	CancellationWindow time.Duration
	StoreTimeout       time.Duration
}

type OrderService struct {
	orders       OrderRepository
	products     ProductRepository
	carts        CartRepository
	users        UserRepository
	notifier     OrderNotifier
	cancelWindow time.Duration
	storeTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

func NewOrderService(repos Repositories, notifier OrderNotifier, policy OrderPolicy, logger *slog.Logger) (*OrderService, error) {
	if repos.Orders == nil {
		return nil, fmt.Errorf("order repository is required")
	}
	if repos.Products == nil {
		return nil, fmt.Errorf("product repository is required")
	}
	if repos.Carts == nil {
		return nil, fmt.Errorf("cart repository is required")
	}
	if repos.Users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if notifier == nil {
		notifier = noopOrderNotifier{}
	}
	window := policy.CancellationWindow
	if window <= 0 {
		window = DefaultCancellationWindow
	}

	return &OrderService{
		orders:       repos.Orders,
		products:     repos.Products,
		carts:        repos.Carts,
		users:        repos.Users,
		notifier:     notifier,
		cancelWindow: window,
		storeTimeout: policy.StoreTimeout,
		now:          time.Now,
		logger:       logger,
	}, nil
}

func (s *OrderService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

func (s *OrderService) startSpan(ctx context.Context, name, description string) (*sentry.Span, context.Context) {
	span := sentry.StartSpan(
		ctx,
		"service.order."+name,
		sentry.WithOpName("service.order"),
		sentry.WithDescription(description),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	return span, span.Context()
}

// CancellationWindow reports the owner cancellation window in effect.
func (s *OrderService) CancellationWindow() time.Duration {
	return s.cancelWindow
}

type LocationInput struct {
	Latitude  *float64
	Longitude *float64
}

type OrderItemInput struct {
	ProductID string
	Quantity  float64
}

type PlaceOrderInput struct {
	Items       []OrderItemInput
	Subtotal    float64
	DeliveryFee float64
	Total       float64
	Location    *LocationInput
	Address     string
}

// PlaceOrder validates the request, snapshots catalog data into the line
// items and persists a new processing order owned by the requester.
func (s *OrderService) PlaceOrder(ctx context.Context, requester models.Identity, input PlaceOrderInput) (*models.Order, error) {
	span, ctx := s.startSpan(ctx, "place", "PlaceOrder")
	defer span.Finish()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)
	recordFailed := func(reason string) {
		meter.Count(observability.MetricOrderPlaceFailed, 1, sentry.WithAttributes(attribute.String("reason", reason)))
	}

	if err := requireUser(requester); err != nil {
		recordFailed("unauthorized")
		return nil, err
	}

	location, err := validateLocation(input.Location)
	if err != nil {
		recordFailed("invalid_location")
		return nil, err
	}
	if len(input.Items) == 0 {
		recordFailed("empty_items")
		return nil, validationError("order must contain at least one item")
	}
	if err := validateAmounts(input.Subtotal, input.DeliveryFee, input.Total); err != nil {
		recordFailed("invalid_amounts")
		return nil, err
	}

	ids := make([]string, 0, len(input.Items))
	for i, item := range input.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			recordFailed("invalid_item")
			return nil, validationError("item %d is missing a product", i+1)
		}
		if item.Quantity <= 0 || math.IsNaN(item.Quantity) || math.IsInf(item.Quantity, 0) {
			recordFailed("invalid_item")
			return nil, validationError("item %d must have a positive quantity", i+1)
		}
		ids = append(ids, strings.TrimSpace(item.ProductID))
	}

	lookupCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	products, err := s.products.GetByIDs(lookupCtx, ids)
	cancel()
	if err != nil {
		recordFailed("product_lookup_failed")
		return nil, storeError("load products", err)
	}

	items := make([]models.LineItem, 0, len(input.Items))
	for i, item := range input.Items {
		product, ok := products[ids[i]]
		if !ok {
			recordFailed("unknown_product")
			return nil, validationError("product %s does not exist", ids[i])
		}
		if !product.InStock {
			recordFailed("out_of_stock")
			return nil, validationError("%s is out of stock", product.Name)
		}
		items = append(items, models.LineItem{
			ProductID: product.ID,
			Name:      product.Name,
			Price:     product.Price,
			Quantity:  item.Quantity,
		})
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	order := &models.Order{
		OwnerID:     requester.ID,
		Items:       items,
		Subtotal:    input.Subtotal,
		DeliveryFee: input.DeliveryFee,
		Total:       input.Total,
		Location:    location,
		Address:     strings.TrimSpace(input.Address),
		Status:      models.StatusProcessing,
		Archived:    false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	createCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	err = s.orders.Create(createCtx, order)
	cancel()
	if err != nil {
		recordFailed("create_failed")
		logger.Error("failed to create order", "error", err, "owner_id", requester.ID)
		return nil, storeError("create order", err)
	}

	meter.Count(observability.MetricOrderPlaced, 1)
	logger.Info("order placed", "order_id", order.ID, "owner_id", order.OwnerID, "items", len(order.Items), "total", order.Total)

	clearCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	if err := s.carts.Delete(clearCtx, requester.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		logger.Warn("failed to clear cart after order", "error", err, "owner_id", requester.ID)
	}
	cancel()

	if err := s.notifier.OrderPlaced(ctx, order); err != nil {
		meter.Count(observability.MetricOrderNotifyFailed, 1)
		logger.Warn("failed to send new order notification", "error", err, "order_id", order.ID)
	}

	return order, nil
}

func validateLocation(location *LocationInput) (models.GeoPoint, error) {
	if location == nil || location.Latitude == nil || location.Longitude == nil {
		return models.GeoPoint{}, validationError("location with latitude and longitude is required")
	}
	lat, lng := *location.Latitude, *location.Longitude
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return models.GeoPoint{}, validationError("latitude must be between -90 and 90")
	}
	if math.IsNaN(lng) || lng < -180 || lng > 180 {
		return models.GeoPoint{}, validationError("longitude must be between -180 and 180")
	}
	return models.GeoPoint{Longitude: lng, Latitude: lat}, nil
}

func validateAmounts(subtotal, deliveryFee, total float64) error {
	amounts := []struct {
		name  string
		value float64
	}{
		{"subtotal", subtotal},
		{"delivery fee", deliveryFee},
		{"total", total},
	}
	for _, amount := range amounts {
		if amount.value < 0 || math.IsNaN(amount.value) || math.IsInf(amount.value, 0) {
			return validationError("%s must be a non-negative amount", amount.name)
		}
	}
	if toPaise(total) != toPaise(subtotal)+toPaise(deliveryFee) {
		return validationError("total must equal subtotal plus delivery fee")
	}
	return nil
}

// toPaise rounds an amount to its smallest currency unit.
func toPaise(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// CancelOrder cancels an order on behalf of its owner (inside the window) or an administrator.
func (s *OrderService) CancelOrder(ctx context.Context, requester models.Identity, orderID string) (*models.Order, error) {
	span, ctx := s.startSpan(ctx, "cancel", "CancelOrder")
	defer span.Finish()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)
	meter.SetAttributes(attribute.String("requester.role", string(requester.Role)))
	recordFailed := func(err error) {
		meter.Count(observability.MetricOrderCancelFailed, 1, sentry.WithAttributes(attribute.String("reason", string(KindOf(err)))))
	}

	actor, err := cancellerFor(requester, s.cancelWindow)
	if err != nil {
		recordFailed(err)
		return nil, err
	}

	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		recordFailed(err)
		return nil, err
	}

	now := s.now()
	guard, err := actor.authorizeCancel(order, now)
	if err != nil {
		recordFailed(err)
		return nil, err
	}

	updateCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	updated, err := s.orders.TransitionStatus(updateCtx, order.ID, guard, models.StatusCancelled)
	cancel()
	if errors.Is(err, store.ErrStatusConflict) {
		current, reloadErr := s.getOrder(ctx, orderID)
		if reloadErr != nil {
			recordFailed(reloadErr)
			return nil, reloadErr
		}
		conflictErr := actor.explainConflict(current, s.now())
		recordFailed(conflictErr)
		return nil, conflictErr
	}
	if err != nil {
		recordFailed(err)
		logger.Error("failed to cancel order", "error", err, "order_id", orderID)
		return nil, storeError("cancel order", err)
	}

	meter.Count(observability.MetricOrderCancelled, 1)
	logger.Info("order cancelled", "order_id", updated.ID, "requester_id", requester.ID, "requester_role", requester.Role)
	return updated, nil
}

// SetStatus moves an order to newStatus. Terminal orders and no-op moves are rejected.
func (s *OrderService) SetStatus(ctx context.Context, requester models.Identity, orderID, newStatus string) (*models.Order, error) {
	span, ctx := s.startSpan(ctx, "set_status", "SetStatus")
	defer span.Finish()

	logger := s.loggerFromContext(ctx)
	meter := observability.MeterFromContext(ctx)

	if err := requireAdmin(requester); err != nil {
		return nil, err
	}

	status, ok := models.ParseOrderStatus(strings.TrimSpace(newStatus))
	if !ok {
		return nil, fmt.Errorf("%w: %q is not one of processing, out-for-delivery, delivered, cancelled", ErrInvalidStatus, newStatus)
	}

	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !canTransition(order.Status, status) {
		return nil, fmt.Errorf("%w: cannot move order from %s to %s", ErrInvalidTransition, order.Status, status)
	}

	updateCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	updated, err := s.orders.TransitionStatus(updateCtx, order.ID, store.TransitionGuard{
		From: []models.OrderStatus{order.Status},
	}, status)
	cancel()
	if errors.Is(err, store.ErrStatusConflict) {
		return nil, fmt.Errorf("%w: order status changed concurrently", ErrInvalidTransition)
	}
	if err != nil {
		logger.Error("failed to update order status", "error", err, "order_id", orderID, "status", status)
		return nil, storeError("update order status", err)
	}

	meter.Count(observability.MetricOrderStatusUpdated, 1, sentry.WithAttributes(
		attribute.String("from", string(order.Status)),
		attribute.String("to", string(status)),
	))
	logger.Info("order status updated", "order_id", updated.ID, "from", order.Status, "to", status)
	return updated, nil
}

// SetDeliveryTime records an informational delivery time; it does not depend on status.
func (s *OrderService) SetDeliveryTime(ctx context.Context, requester models.Identity, orderID string, at time.Time) (*models.Order, error) {
	if err := requireAdmin(requester); err != nil {
		return nil, err
	}
	if at.IsZero() {
		return nil, validationError("delivery time is required")
	}
	if _, err := s.getOrder(ctx, orderID); err != nil {
		return nil, err
	}

	updateCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()
	updated, err := s.orders.SetDeliveryTime(updateCtx, orderID, at.UTC())
	if err != nil {
		return nil, storeError("set delivery time", err)
	}
	s.loggerFromContext(ctx).Info("order delivery time set", "order_id", orderID, "delivery_time", at)
	return updated, nil
}

// ArchiveTerminalOrders hides every delivered or cancelled order from the default
// listing and returns how many were archived by this call.
func (s *OrderService) ArchiveTerminalOrders(ctx context.Context, requester models.Identity) (int64, error) {
	span, ctx := s.startSpan(ctx, "archive", "ArchiveTerminalOrders")
	defer span.Finish()

	if err := requireAdmin(requester); err != nil {
		return 0, err
	}

	archiveCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()
	count, err := s.orders.ArchiveTerminal(archiveCtx)
	if err != nil {
		return 0, storeError("archive orders", err)
	}

	observability.MeterFromContext(ctx).Count(observability.MetricOrderArchived, count)
	s.loggerFromContext(ctx).Info("terminal orders archived", "count", count)
	return count, nil
}

func (s *OrderService) DeleteOrder(ctx context.Context, requester models.Identity, orderID string) error {
	if err := requireAdmin(requester); err != nil {
		return err
	}
	deleteCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()
	if err := s.orders.Delete(deleteCtx, orderID); err != nil {
		return storeError("delete order", err)
	}
	s.loggerFromContext(ctx).Info("order deleted", "order_id", orderID)
	return nil
}

func (s *OrderService) GetOrder(ctx context.Context, requester models.Identity, orderID string) (*models.Order, error) {
	if err := requireAdmin(requester); err != nil {
		return nil, err
	}
	return s.getOrder(ctx, orderID)
}

func (s *OrderService) getOrder(ctx context.Context, orderID string) (*models.Order, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, fmt.Errorf("%w: order id is required", ErrNotFound)
	}
	getCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()
	order, err := s.orders.GetByID(getCtx, orderID)
	if err != nil {
		return nil, storeError("load order", err)
	}
	return order, nil
}

// ListMyOrders returns the requester's own orders, newest first.
func (s *OrderService) ListMyOrders(ctx context.Context, requester models.Identity) ([]*models.Order, error) {
	if err := requireUser(requester); err != nil {
		return nil, err
	}
	return s.list(ctx, store.OrderFilter{OwnerID: requester.ID})
}

type ListOrdersQuery struct {
	// Archived restricts the listing to archived or unarchived orders.
	Archived *bool
	// IncludeArchived disables archive filtering entirely.
	IncludeArchived bool
}

// ListOrders is the administrator view. Archived orders are hidden unless requested.
func (s *OrderService) ListOrders(ctx context.Context, requester models.Identity, query ListOrdersQuery) ([]*models.Order, error) {
	if err := requireAdmin(requester); err != nil {
		return nil, err
	}
	filter := store.OrderFilter{}
	switch {
	case query.IncludeArchived:
	case query.Archived != nil:
		filter.Archived = query.Archived
	default:
		unarchived := false
		filter.Archived = &unarchived
	}
	return s.list(ctx, filter)
}

// ListOrdersForOwner returns one owner's history, optionally only archived orders.
func (s *OrderService) ListOrdersForOwner(ctx context.Context, requester models.Identity, ownerID string, archivedOnly bool) ([]*models.Order, error) {
	if err := requireAdmin(requester); err != nil {
		return nil, err
	}
	if strings.TrimSpace(ownerID) == "" {
		return nil, validationError("user id is required")
	}
	filter := store.OrderFilter{OwnerID: ownerID}
	if archivedOnly {
		archived := true
		filter.Archived = &archived
	}
	return s.list(ctx, filter)
}

func (s *OrderService) list(ctx context.Context, filter store.OrderFilter) ([]*models.Order, error) {
	listCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()
	orders, err := s.orders.List(listCtx, filter)
	if err != nil {
		return nil, storeError("list orders", err)
	}
	if orders == nil {
		orders = []*models.Order{}
	}
	return orders, nil
}

// UsersSummary aggregates every order by owner and attaches basic user details.
func (s *OrderService) UsersSummary(ctx context.Context, requester models.Identity) ([]models.OwnerSummary, error) {
	span, ctx := s.startSpan(ctx, "summary", "UsersSummary")
	defer span.Finish()

	if err := requireAdmin(requester); err != nil {
		return nil, err
	}
	orders, err := s.list(ctx, store.OrderFilter{})
	if err != nil {
		return nil, err
	}
	summaries := SummarizeByOwner(orders)

	usersCtx, cancel := withStoreTimeout(ctx, s.storeTimeout)
	defer cancel()
	users, err := s.users.List(usersCtx)
	if err != nil {
		s.loggerFromContext(ctx).Warn("failed to load users for order summary", "error", err)
		return summaries, nil
	}
	byID := make(map[string]*models.User, len(users))
	for _, user := range users {
		byID[user.ID] = user
	}
	for i := range summaries {
		if user, ok := byID[summaries[i].OwnerID]; ok {
			summaries[i].User = &models.UserSummary{
				ID:     user.ID,
				Name:   user.Name,
				Mobile: user.Mobile,
				Email:  user.Email,
			}
		}
	}
	return summaries, nil
}
