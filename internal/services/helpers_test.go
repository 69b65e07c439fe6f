package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/freshbasket/freshbasket/internal/memstore"
	"github.com/freshbasket/freshbasket/internal/models"
)

var (
	testAdmin = models.Identity{ID: "admin-1", Role: models.RoleAdmin}
	testUserA = models.Identity{ID: "user-a", Role: models.RoleUser}
	testUserB = models.Identity{ID: "user-b", Role: models.RoleUser}
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingNotifier struct {
	mu     sync.Mutex
	orders []*models.Order
	err    error
}

func (n *recordingNotifier) OrderPlaced(_ context.Context, order *models.Order) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.orders = append(n.orders, order)
	return n.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func memRepositories(mem *memstore.Store) Repositories {
	return Repositories{
		Orders:   mem.Orders(),
		Carts:    mem.Carts(),
		Products: mem.Products(),
		Users:    mem.Users(),
		Admins:   mem.Admins(),
	}
}

type orderFixture struct {
	svc      *OrderService
	mem      *memstore.Store
	clock    *testClock
	notifier *recordingNotifier
	apples   *models.Product
	rice     *models.Product
}

func newOrderFixture(t *testing.T) *orderFixture {
	t.Helper()

	mem := memstore.New()
	clock := newTestClock()
	notifier := &recordingNotifier{}
	svc, err := NewOrderService(memRepositories(mem), notifier, OrderPolicy{}, discardLogger())
	if err != nil {
		t.Fatalf("NewOrderService() error = %v", err)
	}
	svc.now = clock.Now

	ctx := context.Background()
	apples := &models.Product{Name: "Apples", Price: 120, InStock: true}
	rice := &models.Product{Name: "Basmati Rice", Price: 95.5, InStock: true}
	for _, product := range []*models.Product{apples, rice} {
		if err := mem.Products().Create(ctx, product); err != nil {
			t.Fatalf("create product: %v", err)
		}
	}

	return &orderFixture{svc: svc, mem: mem, clock: clock, notifier: notifier, apples: apples, rice: rice}
}

func floatPtr(v float64) *float64 {
	return &v
}

func (f *orderFixture) validInput() PlaceOrderInput {
	return PlaceOrderInput{
		Items: []OrderItemInput{
			{ProductID: f.apples.ID, Quantity: 1.5},
			{ProductID: f.rice.ID, Quantity: 2},
		},
		Subtotal:    371,
		DeliveryFee: 20,
		Total:       391,
		Location:    &LocationInput{Latitude: floatPtr(28.6139), Longitude: floatPtr(77.2090)},
		Address:     "12 Lake Road",
	}
}

func (f *orderFixture) place(t *testing.T, owner models.Identity) *models.Order {
	t.Helper()
	order, err := f.svc.PlaceOrder(context.Background(), owner, f.validInput())
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v", err)
	}
	return order
}

func (f *orderFixture) placeWithStatus(t *testing.T, owner models.Identity, status models.OrderStatus, total float64) *models.Order {
	t.Helper()
	input := f.validInput()
	input.Subtotal = total
	input.DeliveryFee = 0
	input.Total = total
	order, err := f.svc.PlaceOrder(context.Background(), owner, input)
	if err != nil {
		t.Fatalf("PlaceOrder() error = %v", err)
	}
	if status == models.StatusProcessing {
		return order
	}
	updated, err := f.svc.SetStatus(context.Background(), testAdmin, order.ID, string(status))
	if err != nil {
		t.Fatalf("SetStatus(%s) error = %v", status, err)
	}
	return updated
}
