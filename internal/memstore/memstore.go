// Package memstore keeps every record in process memory. It backs local
// development and tests; data does not survive a restart.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/freshbasket/freshbasket/internal/models"
	"github.com/freshbasket/freshbasket/internal/store"
)

type Store struct {
	mu       sync.RWMutex
	orders   map[string]models.Order
	carts    map[string]models.Cart
	products map[string]models.Product
	users    map[string]models.User
	admins   map[string]models.Admin
	now      func() time.Time
}

func New() *Store {
	return &Store{
		orders:   make(map[string]models.Order),
		carts:    make(map[string]models.Cart),
		products: make(map[string]models.Product),
		users:    make(map[string]models.User),
		admins:   make(map[string]models.Admin),
		now:      time.Now,
	}
}

func (s *Store) Orders() *OrderStore     { return &OrderStore{s} }
func (s *Store) Carts() *CartStore       { return &CartStore{s} }
func (s *Store) Products() *ProductStore { return &ProductStore{s} }
func (s *Store) Users() *UserStore       { return &UserStore{s} }
func (s *Store) Admins() *AdminStore     { return &AdminStore{s} }

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

type OrderStore struct{ s *Store }

func cloneOrder(order models.Order) *models.Order {
	order.Items = append([]models.LineItem(nil), order.Items...)
	if order.DeliveryTime != nil {
		at := *order.DeliveryTime
		order.DeliveryTime = &at
	}
	return &order
}

func (o *OrderStore) Create(ctx context.Context, order *models.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.s.mu.Lock()
	defer o.s.mu.Unlock()

	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = o.s.now().UTC()
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}
	o.s.orders[order.ID] = *cloneOrder(*order)
	return nil
}

func (o *OrderStore) GetByID(ctx context.Context, id string) (*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.s.mu.RLock()
	defer o.s.mu.RUnlock()

	order, ok := o.s.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneOrder(order), nil
}

func (o *OrderStore) List(ctx context.Context, filter store.OrderFilter) ([]*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.s.mu.RLock()
	defer o.s.mu.RUnlock()

	orders := make([]*models.Order, 0, len(o.s.orders))
	for _, order := range o.s.orders {
		if filter.OwnerID != "" && order.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Archived != nil && order.Archived != *filter.Archived {
			continue
		}
		orders = append(orders, cloneOrder(order))
	}
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID > orders[j].ID
	})
	return orders, nil
}

func (o *OrderStore) TransitionStatus(ctx context.Context, id string, guard store.TransitionGuard, to models.OrderStatus) (*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.s.mu.Lock()
	defer o.s.mu.Unlock()

	order, ok := o.s.orders[id]
	if !ok || !guard.Matches(&order) {
		return nil, store.ErrStatusConflict
	}
	order.Status = to
	order.UpdatedAt = o.s.now().UTC()
	o.s.orders[id] = order
	return cloneOrder(order), nil
}

func (o *OrderStore) SetDeliveryTime(ctx context.Context, id string, at time.Time) (*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o.s.mu.Lock()
	defer o.s.mu.Unlock()

	order, ok := o.s.orders[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	order.DeliveryTime = &at
	order.UpdatedAt = o.s.now().UTC()
	o.s.orders[id] = order
	return cloneOrder(order), nil
}

func (o *OrderStore) ArchiveTerminal(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	o.s.mu.Lock()
	defer o.s.mu.Unlock()

	var count int64
	now := o.s.now().UTC()
	for id, order := range o.s.orders {
		if order.Archived || !order.Status.IsTerminal() {
			continue
		}
		order.Archived = true
		order.UpdatedAt = now
		o.s.orders[id] = order
		count++
	}
	return count, nil
}

func (o *OrderStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	o.s.mu.Lock()
	defer o.s.mu.Unlock()

	if _, ok := o.s.orders[id]; !ok {
		return store.ErrNotFound
	}
	delete(o.s.orders, id)
	return nil
}

type CartStore struct{ s *Store }

func (c *CartStore) Get(ctx context.Context, ownerID string) (*models.Cart, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()

	cart, ok := c.s.carts[ownerID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cart.Items = append([]models.CartItem(nil), cart.Items...)
	return &cart, nil
}

func (c *CartStore) Save(ctx context.Context, cart *models.Cart) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	cart.UpdatedAt = c.s.now().UTC()
	saved := *cart
	saved.Items = append([]models.CartItem(nil), cart.Items...)
	c.s.carts[cart.OwnerID] = saved
	return nil
}

func (c *CartStore) Delete(ctx context.Context, ownerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	delete(c.s.carts, ownerID)
	return nil
}

type ProductStore struct{ s *Store }

func (p *ProductStore) Create(ctx context.Context, product *models.Product) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	product.ID = uuid.NewString()
	product.CreatedAt = p.s.now().UTC()
	product.UpdatedAt = product.CreatedAt
	p.s.products[product.ID] = *product
	return nil
}

func (p *ProductStore) GetByID(ctx context.Context, id string) (*models.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()

	product, ok := p.s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (p *ProductStore) GetByIDs(ctx context.Context, ids []string) (map[string]*models.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()

	found := make(map[string]*models.Product, len(ids))
	for _, id := range ids {
		if product, ok := p.s.products[id]; ok {
			found[id] = &product
		}
	}
	return found, nil
}

func (p *ProductStore) List(ctx context.Context) ([]*models.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()

	products := make([]*models.Product, 0, len(p.s.products))
	for _, product := range p.s.products {
		product := product
		products = append(products, &product)
	}
	sort.Slice(products, func(i, j int) bool {
		if !products[i].CreatedAt.Equal(products[j].CreatedAt) {
			return products[i].CreatedAt.After(products[j].CreatedAt)
		}
		return products[i].ID > products[j].ID
	})
	return products, nil
}

func (p *ProductStore) Update(ctx context.Context, product *models.Product) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	existing, ok := p.s.products[product.ID]
	if !ok {
		return store.ErrNotFound
	}
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = p.s.now().UTC()
	p.s.products[product.ID] = *product
	return nil
}

func (p *ProductStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.s.mu.Lock()
	defer p.s.mu.Unlock()

	if _, ok := p.s.products[id]; !ok {
		return store.ErrNotFound
	}
	delete(p.s.products, id)
	return nil
}

type UserStore struct{ s *Store }

func (u *UserStore) Create(ctx context.Context, user *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	for _, existing := range u.s.users {
		if user.Mobile != "" && existing.Mobile == user.Mobile {
			return store.ErrDuplicate
		}
		if user.Email != "" && strings.EqualFold(existing.Email, user.Email) {
			return store.ErrDuplicate
		}
	}
	user.ID = uuid.NewString()
	user.CreatedAt = u.s.now().UTC()
	user.UpdatedAt = user.CreatedAt
	u.s.users[user.ID] = *user
	return nil
}

func (u *UserStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()

	user, ok := u.s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (u *UserStore) find(ctx context.Context, match func(models.User) bool) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()

	for _, user := range u.s.users {
		if match(user) {
			return &user, nil
		}
	}
	return nil, store.ErrNotFound
}

func (u *UserStore) GetByMobile(ctx context.Context, mobile string) (*models.User, error) {
	return u.find(ctx, func(user models.User) bool { return user.Mobile != "" && user.Mobile == mobile })
}

func (u *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return u.find(ctx, func(user models.User) bool { return user.Email != "" && strings.EqualFold(user.Email, email) })
}

func (u *UserStore) List(ctx context.Context) ([]*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u.s.mu.RLock()
	defer u.s.mu.RUnlock()

	users := make([]*models.User, 0, len(u.s.users))
	for _, user := range u.s.users {
		user := user
		users = append(users, &user)
	}
	sort.Slice(users, func(i, j int) bool {
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	return users, nil
}

func (u *UserStore) Update(ctx context.Context, user *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	existing, ok := u.s.users[user.ID]
	if !ok {
		return store.ErrNotFound
	}
	user.CreatedAt = existing.CreatedAt
	user.UpdatedAt = u.s.now().UTC()
	u.s.users[user.ID] = *user
	return nil
}

func (u *UserStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u.s.mu.Lock()
	defer u.s.mu.Unlock()

	if _, ok := u.s.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(u.s.users, id)
	delete(u.s.carts, id)
	return nil
}

type AdminStore struct{ s *Store }

func (a *AdminStore) Create(ctx context.Context, admin *models.Admin) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.s.mu.Lock()
	defer a.s.mu.Unlock()

	for _, existing := range a.s.admins {
		if strings.EqualFold(existing.Email, admin.Email) {
			return store.ErrDuplicate
		}
	}
	admin.ID = uuid.NewString()
	admin.CreatedAt = a.s.now().UTC()
	a.s.admins[admin.ID] = *admin
	return nil
}

func (a *AdminStore) GetByID(ctx context.Context, id string) (*models.Admin, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()

	admin, ok := a.s.admins[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &admin, nil
}

func (a *AdminStore) GetByEmail(ctx context.Context, email string) (*models.Admin, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()

	for _, admin := range a.s.admins {
		if strings.EqualFold(admin.Email, email) {
			return &admin, nil
		}
	}
	return nil, store.ErrNotFound
}

func (a *AdminStore) List(ctx context.Context) ([]*models.Admin, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a.s.mu.RLock()
	defer a.s.mu.RUnlock()

	admins := make([]*models.Admin, 0, len(a.s.admins))
	for _, admin := range a.s.admins {
		admin := admin
		admins = append(admins, &admin)
	}
	sort.Slice(admins, func(i, j int) bool {
		return admins[i].CreatedAt.Before(admins[j].CreatedAt)
	})
	return admins, nil
}
