package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freshbasket/freshbasket/internal/models"
	"github.com/freshbasket/freshbasket/internal/store"
)

const orderColumns = `id::text, user_id::text, items, subtotal, delivery_fee, total, longitude, latitude,
	address, status, delivery_time, archived, created_at, updated_at`

type OrderStore struct {
	pool *pgxpool.Pool
}

func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

func (s *OrderStore) Create(ctx context.Context, order *models.Order) error {
	id := newID()
	ownerID, ok := parseID(order.OwnerID)
	if !ok {
		return fmt.Errorf("invalid owner id %q", order.OwnerID)
	}
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to encode order items: %w", err)
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}

	query := `
		INSERT INTO orders (id, user_id, items, subtotal, delivery_fee, total, longitude, latitude,
			address, status, delivery_time, archived, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id::text
	`
	err = s.pool.QueryRow(ctx, query,
		id, ownerID, itemsJSON, order.Subtotal, order.DeliveryFee, order.Total,
		order.Location.Longitude, order.Location.Latitude, order.Address, string(order.Status),
		nullableTime(order.DeliveryTime), order.Archived, order.CreatedAt, order.UpdatedAt,
	).Scan(&order.ID)
	return mapError(err)
}

func (s *OrderStore) GetByID(ctx context.Context, id string) (*models.Order, error) {
	orderID, ok := parseID(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	return scanOrder(row)
}

func (s *OrderStore) List(ctx context.Context, filter store.OrderFilter) ([]*models.Order, error) {
	var ownerID pgtype.UUID
	if filter.OwnerID != "" {
		parsed, ok := parseID(filter.OwnerID)
		if !ok {
			return []*models.Order{}, nil
		}
		ownerID = parsed
	}
	var archived pgtype.Bool
	if filter.Archived != nil {
		archived = pgtype.Bool{Bool: *filter.Archived, Valid: true}
	}

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE ($1::uuid IS NULL OR user_id = $1)
		  AND ($2::boolean IS NULL OR archived = $2)
		ORDER BY created_at DESC, id DESC
	`
	rows, err := s.pool.Query(ctx, query, ownerID, archived)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]*models.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// TransitionStatus applies the guard and the update in one statement, so
// two racing writers cannot both succeed.
func (s *OrderStore) TransitionStatus(ctx context.Context, id string, guard store.TransitionGuard, to models.OrderStatus) (*models.Order, error) {
	orderID, ok := parseID(id)
	if !ok {
		return nil, store.ErrStatusConflict
	}
	var ownerID pgtype.UUID
	if guard.OwnerID != "" {
		parsed, ok := parseID(guard.OwnerID)
		if !ok {
			return nil, store.ErrStatusConflict
		}
		ownerID = parsed
	}
	var createdAfter pgtype.Timestamptz
	if !guard.CreatedAfter.IsZero() {
		createdAfter = pgtype.Timestamptz{Time: guard.CreatedAfter, Valid: true}
	}

	query := `
		UPDATE orders
		SET status = $2, updated_at = now()
		WHERE id = $1
		  AND status = ANY($3::text[])
		  AND ($4::uuid IS NULL OR user_id = $4)
		  AND ($5::timestamptz IS NULL OR created_at >= $5)
		RETURNING ` + orderColumns
	row := s.pool.QueryRow(ctx, query, orderID, string(to), store.StatusStrings(guard.From), ownerID, createdAfter)
	order, err := scanOrder(row)
	if errors.Is(err, store.ErrNotFound) {
		return nil, store.ErrStatusConflict
	}
	return order, err
}

func (s *OrderStore) SetDeliveryTime(ctx context.Context, id string, at time.Time) (*models.Order, error) {
	orderID, ok := parseID(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	query := `
		UPDATE orders
		SET delivery_time = $2, updated_at = now()
		WHERE id = $1
		RETURNING ` + orderColumns
	return scanOrder(s.pool.QueryRow(ctx, query, orderID, at))
}

func (s *OrderStore) ArchiveTerminal(ctx context.Context) (int64, error) {
	query := `
		UPDATE orders
		SET archived = true, updated_at = now()
		WHERE archived = false AND status = ANY($1::text[])
	`
	cmdTag, err := s.pool.Exec(ctx, query, store.StatusStrings(store.TerminalStatuses))
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}

func (s *OrderStore) Delete(ctx context.Context, id string) error {
	orderID, ok := parseID(id)
	if !ok {
		return store.ErrNotFound
	}
	cmdTag, err := s.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, orderID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var (
		order        models.Order
		itemsJSON    []byte
		status       string
		deliveryTime pgtype.Timestamptz
	)
	err := row.Scan(
		&order.ID, &order.OwnerID, &itemsJSON, &order.Subtotal, &order.DeliveryFee, &order.Total,
		&order.Location.Longitude, &order.Location.Latitude, &order.Address, &status,
		&deliveryTime, &order.Archived, &order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, fmt.Errorf("failed to decode order items: %w", err)
	}
	order.Status = models.OrderStatus(status)
	if deliveryTime.Valid {
		at := deliveryTime.Time.UTC()
		order.DeliveryTime = &at
	}
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()
	return &order, nil
}

func nullableTime(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}
