package mongostore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/freshbasket/freshbasket/internal/crypto"
	"github.com/freshbasket/freshbasket/internal/models"
	"github.com/freshbasket/freshbasket/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set")
	}

	encryptor, err := crypto.NewEncryptor(strings.Repeat("k", 32))
	require.NoError(t, err)

	ctx := context.Background()
	database := fmt.Sprintf("freshbasket_test_%d", time.Now().UnixNano())
	s, err := Connect(ctx, uri, database, encryptor)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.database.Drop(context.Background())
		_ = s.Close()
	})
	require.NoError(t, s.EnsureIndexes(ctx))
	return s
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
		CreatedAt:   createdAt.UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, s.Orders.Create(context.Background(), order))
	return order
}

func TestOrderStore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	owner, other := newObjectIDHex(), newObjectIDHex()
	older := createTestOrder(t, s, owner, models.StatusDelivered, time.Now().Add(-time.Hour))
	newer := createTestOrder(t, s, owner, models.StatusProcessing, time.Now())
	createTestOrder(t, s, other, models.StatusCancelled, time.Now())

	got, err := s.Orders.GetByID(ctx, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, owner, got.OwnerID)
	assert.InDelta(t, 77.59, got.Location.Longitude, 1e-9)
	assert.InDelta(t, 12.97, got.Location.Latitude, 1e-9)
	assert.Len(t, got.Items, 1)

	_, err = s.Orders.GetByID(ctx, "not-an-id")
	assert.ErrorIs(t, err, store.ErrNotFound)

	mine, err := s.Orders.List(ctx, store.OrderFilter{OwnerID: owner})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, newer.ID, mine[0].ID)
	assert.Equal(t, older.ID, mine[1].ID)

	archived, err := s.Orders.ArchiveTerminal(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, archived)

	notArchived := false
	active, err := s.Orders.List(ctx, store.OrderFilter{Archived: &notArchived})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, newer.ID, active[0].ID)

	at := time.Now().Add(2 * time.Hour).UTC().Truncate(time.Millisecond)
	updated, err := s.Orders.SetDeliveryTime(ctx, newer.ID, at)
	require.NoError(t, err)
	require.NotNil(t, updated.DeliveryTime)
	assert.True(t, at.Equal(*updated.DeliveryTime))

	require.NoError(t, s.Orders.Delete(ctx, older.ID))
	assert.ErrorIs(t, s.Orders.Delete(ctx, older.ID), store.ErrNotFound)
}

func TestOrderStoreTransitionGuard(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	owner := newObjectIDHex()
	order := createTestOrder(t, s, owner, models.StatusProcessing, time.Now())

	_, err := s.Orders.TransitionStatus(ctx, order.ID, store.TransitionGuard{
		From:    []models.OrderStatus{models.StatusProcessing},
		OwnerID: newObjectIDHex(),
	}, models.StatusCancelled)
	assert.ErrorIs(t, err, store.ErrStatusConflict)

	_, err = s.Orders.TransitionStatus(ctx, order.ID, store.TransitionGuard{
		From:         []models.OrderStatus{models.StatusProcessing},
		CreatedAfter: time.Now().Add(time.Hour),
	}, models.StatusCancelled)
	assert.ErrorIs(t, err, store.ErrStatusConflict)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Orders.TransitionStatus(ctx, order.ID, store.TransitionGuard{
				From:    []models.OrderStatus{models.StatusProcessing},
				OwnerID: owner,
			}, models.StatusCancelled)
			if err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
				return
			}
			if !errors.Is(err, store.ErrStatusConflict) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)

	got, err := s.Orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
}

func TestUserStore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := &models.User{Mobile: "+919800000001", Address: models.Address{HouseNo: "7", Pincode: "560001"}}
	require.NoError(t, s.Users.Create(ctx, user))

	raw := s.database.Collection(usersCollection).FindOne(ctx, bson.M{"mobile": "+919800000001"})
	var doc userDoc
	require.NoError(t, raw.Decode(&doc))
	assert.NotContains(t, doc.Address, "560001")

	got, err := s.Users.GetByMobile(ctx, "+919800000001")
	require.NoError(t, err)
	assert.Equal(t, "560001", got.Address.Pincode)

	err = s.Users.Create(ctx, &models.User{Mobile: "+919800000001"})
	assert.ErrorIs(t, err, store.ErrDuplicate)

	// Two users without an email must not collide on the sparse index.
	require.NoError(t, s.Users.Create(ctx, &models.User{Mobile: "+919800000002"}))

	got.Email = "Asha@Example.com"
	got.Name = "Asha"
	require.NoError(t, s.Users.Update(ctx, got))
	byEmail, err := s.Users.GetByEmail(ctx, "asha@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Asha", byEmail.Name)

	require.NoError(t, s.Carts.Save(ctx, &models.Cart{OwnerID: got.ID, Items: []models.CartItem{{ProductID: "p1", Quantity: 1}}}))
	require.NoError(t, s.Users.Delete(ctx, got.ID))
	_, err = s.Carts.Get(ctx, got.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.Users.Delete(ctx, got.ID), store.ErrNotFound)
}

func TestProductAndCartStore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &models.Product{Name: "Milk", Price: 62, InStock: true}
	require.NoError(t, s.Products.Create(ctx, first))
	time.Sleep(2 * time.Millisecond)
	second := &models.Product{Name: "Bread", Price: 40}
	require.NoError(t, s.Products.Create(ctx, second))

	list, err := s.Products.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)

	byIDs, err := s.Products.GetByIDs(ctx, []string{first.ID, "bogus", newObjectIDHex()})
	require.NoError(t, err)
	assert.Len(t, byIDs, 1)
	assert.True(t, byIDs[first.ID].InStock)

	second.InStock = true
	require.NoError(t, s.Products.Update(ctx, second))
	got, err := s.Products.GetByID(ctx, second.ID)
	require.NoError(t, err)
	assert.True(t, got.InStock)

	owner := newObjectIDHex()
	cart := &models.Cart{OwnerID: owner, Items: []models.CartItem{{ProductID: first.ID, Quantity: 2}}}
	require.NoError(t, s.Carts.Save(ctx, cart))
	cart.Items = []models.CartItem{{ProductID: second.ID, Quantity: 0.5}}
	require.NoError(t, s.Carts.Save(ctx, cart))

	stored, err := s.Carts.Get(ctx, owner)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, second.ID, stored.Items[0].ProductID)

	require.NoError(t, s.Carts.Delete(ctx, owner))
	require.NoError(t, s.Carts.Delete(ctx, owner))
}

func TestAdminStore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	admin := &models.Admin{Name: "Ops", Email: "Ops@Example.com", PasswordHash: "hash"}
	require.NoError(t, s.Admins.Create(ctx, admin))

	got, err := s.Admins.GetByEmail(ctx, "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, admin.ID, got.ID)
	assert.Equal(t, "hash", got.PasswordHash)

	err = s.Admins.Create(ctx, &models.Admin{Name: "Dup", Email: "OPS@example.com", PasswordHash: "x"})
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func newObjectIDHex() string {
	return primitive.NewObjectID().Hex()
}
