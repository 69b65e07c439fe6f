package db

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freshbasket/freshbasket/internal/crypto"
	"github.com/freshbasket/freshbasket/internal/models"
	"github.com/freshbasket/freshbasket/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := Connect(ctx, databaseURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool))
	_, err = pool.Exec(ctx, `TRUNCATE orders, carts, products, users, admins`)
	require.NoError(t, err)

	encryptor, err := crypto.NewEncryptor(strings.Repeat("k", 32))
	require.NoError(t, err)
	s, err := NewStore(pool, encryptor)
	require.NoError(t, err)
	return s
}

func createTestUser(t *testing.T, s *Store, mobile string) *models.User {
	t.Helper()

	user := &models.User{Mobile: mobile, Address: models.Address{HouseNo: "7", Pincode: "560001"}}
	require.NoError(t, s.Users.Create(context.Background(), user))
	return user
}

func createTestOrder(t *testing.T, s *Store, ownerID string, status models.OrderStatus, createdAt time.Time) *models.Order {
	t.Helper()

	order := &models.Order{
		OwnerID:     ownerID,
		Items:       []models.LineItem{{ProductID: "p1", Name: "Milk", Price: 62, Quantity: 2}},
		Subtotal:    124,
		DeliveryFee: 30,
		Total:       154,
		Location:    models.GeoPoint{Longitude: 77.59, Latitude: 12.97},
		Status:      status,
		CreatedAt:   createdAt,
	}
	require.NoError(t, s.Orders.Create(context.Background(), order))
	return order
}

func TestOrderStore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := createTestUser(t, s, "9876543210")
	now := time.Now().UTC().Truncate(time.Millisecond)

	older := createTestOrder(t, s, owner.ID, models.StatusDelivered, now.Add(-time.Hour))
	newer := createTestOrder(t, s, owner.ID, models.StatusProcessing, now)

	got, err := s.Orders.GetByID(ctx, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, newer.Items, got.Items)
	assert.True(t, newer.CreatedAt.Equal(got.CreatedAt))

	_, err = s.Orders.GetByID(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, store.ErrNotFound)

	orders, err := s.Orders.List(ctx, store.OrderFilter{OwnerID: owner.ID})
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, newer.ID, orders[0].ID)
	assert.Equal(t, older.ID, orders[1].ID)

	archived, err := s.Orders.ArchiveTerminal(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, archived)
	archived, err = s.Orders.ArchiveTerminal(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, archived)

	yes := true
	onlyArchived, err := s.Orders.List(ctx, store.OrderFilter{Archived: &yes})
	require.NoError(t, err)
	require.Len(t, onlyArchived, 1)
	assert.Equal(t, older.ID, onlyArchived[0].ID)

	at := now.Add(2 * time.Hour)
	updated, err := s.Orders.SetDeliveryTime(ctx, newer.ID, at)
	require.NoError(t, err)
	require.NotNil(t, updated.DeliveryTime)
	assert.True(t, at.Equal(*updated.DeliveryTime))

	require.NoError(t, s.Orders.Delete(ctx, older.ID))
	assert.ErrorIs(t, s.Orders.Delete(ctx, older.ID), store.ErrNotFound)
}

func TestOrderStore_TransitionGuard(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := createTestUser(t, s, "9876543210")
	other := createTestUser(t, s, "9123456780")
	now := time.Now().UTC().Truncate(time.Millisecond)
	order := createTestOrder(t, s, owner.ID, models.StatusProcessing, now)

	ownerGuard := store.TransitionGuard{
		From:         []models.OrderStatus{models.StatusProcessing},
		OwnerID:      other.ID,
		CreatedAfter: now.Add(-3 * time.Minute),
	}
	_, err := s.Orders.TransitionStatus(ctx, order.ID, ownerGuard, models.StatusCancelled)
	assert.ErrorIs(t, err, store.ErrStatusConflict)

	expired := ownerGuard
	expired.OwnerID = owner.ID
	expired.CreatedAfter = now.Add(time.Second)
	_, err = s.Orders.TransitionStatus(ctx, order.ID, expired, models.StatusCancelled)
	assert.ErrorIs(t, err, store.ErrStatusConflict)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	guard := ownerGuard
	guard.OwnerID = owner.ID
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Orders.TransitionStatus(ctx, order.ID, guard, models.StatusCancelled); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)

	got, err := s.Orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
}

func TestUserStore_AddressEncryptedAtRest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, s, "9876543210")

	var raw string
	require.NoError(t, s.pool.QueryRow(ctx, `SELECT address_encrypted FROM users WHERE id = $1::text::uuid`, user.ID).Scan(&raw))
	assert.NotEmpty(t, raw)
	assert.NotContains(t, raw, "560001")

	got, err := s.Users.GetByMobile(ctx, "9876543210")
	require.NoError(t, err)
	assert.Equal(t, user.Address, got.Address)

	err = s.Users.Create(ctx, &models.User{Mobile: "9876543210"})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	require.NoError(t, s.Carts.Save(ctx, &models.Cart{OwnerID: user.ID, Items: []models.CartItem{{ProductID: "p1", Quantity: 1}}}))
	require.NoError(t, s.Users.Delete(ctx, user.ID))
	_, err = s.Carts.Get(ctx, user.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestProductStore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	milk := &models.Product{Name: "Milk", Price: 62, InStock: true}
	bread := &models.Product{Name: "Bread", Price: 40, InStock: false, Image: "/uploads/bread.png"}
	require.NoError(t, s.Products.Create(ctx, milk))
	require.NoError(t, s.Products.Create(ctx, bread))

	found, err := s.Products.GetByIDs(ctx, []string{milk.ID, bread.ID, "missing", milk.ID})
	require.NoError(t, err)
	assert.Len(t, found, 2)
	assert.Equal(t, "/uploads/bread.png", found[bread.ID].Image)

	milk.Price = 64
	require.NoError(t, s.Products.Update(ctx, milk))
	got, err := s.Products.GetByID(ctx, milk.ID)
	require.NoError(t, err)
	assert.Equal(t, 64.0, got.Price)

	require.NoError(t, s.Products.Delete(ctx, bread.ID))
	products, err := s.Products.List(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, milk.ID, products[0].ID)
}

func TestAdminStore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	admin := &models.Admin{Name: "Root", Email: "root@example.com", PasswordHash: "hash"}
	require.NoError(t, s.Admins.Create(ctx, admin))
	assert.ErrorIs(t, s.Admins.Create(ctx, &models.Admin{Name: "Dup", Email: "ROOT@example.com", PasswordHash: "x"}), store.ErrDuplicate)

	got, err := s.Admins.GetByEmail(ctx, "Root@Example.com")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, got.ID)
}
