package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freshbasket/freshbasket/internal/models"
	"github.com/freshbasket/freshbasket/internal/store"
)

const productColumns = `id::text, name, price, in_stock, image, created_at, updated_at`

type ProductStore struct {
	pool *pgxpool.Pool
}

func NewProductStore(pool *pgxpool.Pool) *ProductStore {
	return &ProductStore{pool: pool}
}

func (s *ProductStore) Create(ctx context.Context, product *models.Product) error {
	query := `
		INSERT INTO products (id, name, price, in_stock, image)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id::text, created_at, updated_at
	`
	err := s.pool.QueryRow(ctx, query, newID(), product.Name, product.Price, product.InStock, product.Image).
		Scan(&product.ID, &product.CreatedAt, &product.UpdatedAt)
	return mapError(err)
}

func (s *ProductStore) GetByID(ctx context.Context, id string) (*models.Product, error) {
	productID, ok := parseID(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	row := s.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, productID)
	return scanProduct(row)
}

// GetByIDs returns the products that exist, keyed by id. Unknown ids are
// absent from the result.
func (s *ProductStore) GetByIDs(ctx context.Context, ids []string) (map[string]*models.Product, error) {
	params := make([]pgtype.UUID, 0, len(ids))
	for _, id := range ids {
		if parsed, ok := parseID(id); ok {
			params = append(params, parsed)
		}
	}
	found := make(map[string]*models.Product, len(params))
	if len(params) == 0 {
		return found, nil
	}

	rows, err := s.pool.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = ANY($1::uuid[])`, params)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		found[product.ID] = product
	}
	return found, rows.Err()
}

func (s *ProductStore) List(ctx context.Context) ([]*models.Product, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]*models.Product, 0)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, rows.Err()
}

func (s *ProductStore) Update(ctx context.Context, product *models.Product) error {
	productID, ok := parseID(product.ID)
	if !ok {
		return store.ErrNotFound
	}
	query := `
		UPDATE products
		SET name = $2, price = $3, in_stock = $4, image = $5, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at
	`
	err := s.pool.QueryRow(ctx, query, productID, product.Name, product.Price, product.InStock, product.Image).
		Scan(&product.CreatedAt, &product.UpdatedAt)
	return mapError(err)
}

func (s *ProductStore) Delete(ctx context.Context, id string) error {
	productID, ok := parseID(id)
	if !ok {
		return store.ErrNotFound
	}
	cmdTag, err := s.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, productID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanProduct(row pgx.Row) (*models.Product, error) {
	var product models.Product
	err := row.Scan(&product.ID, &product.Name, &product.Price, &product.InStock, &product.Image,
		&product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	product.CreatedAt = product.CreatedAt.UTC()
	product.UpdatedAt = product.UpdatedAt.UTC()
	return &product, nil
}

type CartStore struct {
	pool *pgxpool.Pool
}

func NewCartStore(pool *pgxpool.Pool) *CartStore {
	return &CartStore{pool: pool}
}

func (s *CartStore) Get(ctx context.Context, ownerID string) (*models.Cart, error) {
	userID, ok := parseID(ownerID)
	if !ok {
		return nil, store.ErrNotFound
	}
	var (
		cart      = models.Cart{OwnerID: ownerID}
		itemsJSON []byte
	)
	err := s.pool.QueryRow(ctx, `SELECT items, updated_at FROM carts WHERE user_id = $1`, userID).
		Scan(&itemsJSON, &cart.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	if err := json.Unmarshal(itemsJSON, &cart.Items); err != nil {
		return nil, fmt.Errorf("failed to decode cart items: %w", err)
	}
	cart.UpdatedAt = cart.UpdatedAt.UTC()
	return &cart, nil
}

// Save replaces the whole cart.
func (s *CartStore) Save(ctx context.Context, cart *models.Cart) error {
	userID, ok := parseID(cart.OwnerID)
	if !ok {
		return fmt.Errorf("invalid cart owner id %q", cart.OwnerID)
	}
	items := cart.Items
	if items == nil {
		items = []models.CartItem{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to encode cart items: %w", err)
	}
	query := `
		INSERT INTO carts (user_id, items, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE SET items = EXCLUDED.items, updated_at = EXCLUDED.updated_at
		RETURNING updated_at
	`
	return mapError(s.pool.QueryRow(ctx, query, userID, itemsJSON).Scan(&cart.UpdatedAt))
}

func (s *CartStore) Delete(ctx context.Context, ownerID string) error {
	userID, ok := parseID(ownerID)
	if !ok {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM carts WHERE user_id = $1`, userID)
	return err
}
