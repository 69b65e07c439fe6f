package services

import (
	"context"
	"time"

	"github.com/freshbasket/freshbasket/internal/models"
	"github.com/freshbasket/freshbasket/internal/store"
)

// OrderRepository persists orders. TransitionStatus and ArchiveTerminal must
// apply their guard and write atomically; a guard that matches nothing yields
// store.ErrStatusConflict.
type OrderRepository interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	List(ctx context.Context, filter store.OrderFilter) ([]*models.Order, error)
	TransitionStatus(ctx context.Context, id string, guard store.TransitionGuard, to models.OrderStatus) (*models.Order, error)
	SetDeliveryTime(ctx context.Context, id string, at time.Time) (*models.Order, error)
	ArchiveTerminal(ctx context.Context) (int64, error)
	Delete(ctx context.Context, id string) error
}

type CartRepository interface {
	Get(ctx context.Context, ownerID string) (*models.Cart, error)
	Save(ctx context.Context, cart *models.Cart) error
	Delete(ctx context.Context, ownerID string) error
}

type ProductRepository interface {
	Create(ctx context.Context, product *models.Product) error
	GetByID(ctx context.Context, id string) (*models.Product, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]*models.Product, error)
	List(ctx context.Context) ([]*models.Product, error)
	Update(ctx context.Context, product *models.Product) error
	Delete(ctx context.Context, id string) error
}

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByMobile(ctx context.Context, mobile string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
}

type AdminRepository interface {
	Create(ctx context.Context, admin *models.Admin) error
	GetByID(ctx context.Context, id string) (*models.Admin, error)
	GetByEmail(ctx context.Context, email string) (*models.Admin, error)
	List(ctx context.Context) ([]*models.Admin, error)
}

// Repositories bundles one backend's implementations.
type Repositories struct {
	Orders   OrderRepository
	Carts    CartRepository
	Products ProductRepository
	Users    UserRepository
	Admins   AdminRepository
}

// DefaultStoreTimeout bounds a single backend call when none is configured.
const DefaultStoreTimeout = 8 * time.Second

func withStoreTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return context.WithTimeout(ctx, timeout)
}
