package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/freshbasket/freshbasket/internal/crypto"
	"github.com/freshbasket/freshbasket/internal/models"
	"github.com/freshbasket/freshbasket/internal/store"
)

const userColumns = `id::text, name, mobile, email, address_encrypted, created_at, updated_at`

// UserStore keeps the postal address encrypted at rest.
type UserStore struct {
	pool   *pgxpool.Pool
	crypto crypto.Encryptor
}

func NewUserStore(pool *pgxpool.Pool, encryptor crypto.Encryptor) (*UserStore, error) {
	if encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}
	return &UserStore{pool: pool, crypto: encryptor}, nil
}

func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	address, err := s.sealAddress(user.Address)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO users (id, name, mobile, email, address_encrypted)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id::text, created_at, updated_at
	`
	err = s.pool.QueryRow(ctx, query, newID(), user.Name, nullableText(user.Mobile), nullableText(user.Email), address).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	return mapError(err)
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	userID, ok := parseID(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	return s.scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
}

func (s *UserStore) GetByMobile(ctx context.Context, mobile string) (*models.User, error) {
	return s.scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE mobile = $1`, mobile))
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
}

func (s *UserStore) List(ctx context.Context) ([]*models.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]*models.User, 0)
	for rows.Next() {
		user, err := s.scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *UserStore) Update(ctx context.Context, user *models.User) error {
	userID, ok := parseID(user.ID)
	if !ok {
		return store.ErrNotFound
	}
	address, err := s.sealAddress(user.Address)
	if err != nil {
		return err
	}
	query := `
		UPDATE users
		SET name = $2, mobile = $3, email = $4, address_encrypted = $5, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at
	`
	err = s.pool.QueryRow(ctx, query, userID, user.Name, nullableText(user.Mobile), nullableText(user.Email), address).
		Scan(&user.CreatedAt, &user.UpdatedAt)
	return mapError(err)
}

// Delete removes the user; the cart goes with it through the foreign key.
func (s *UserStore) Delete(ctx context.Context, id string) error {
	userID, ok := parseID(id)
	if !ok {
		return store.ErrNotFound
	}
	cmdTag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *UserStore) sealAddress(address models.Address) (string, error) {
	if address.IsZero() {
		return "", nil
	}
	sealed, err := crypto.SealJSON(s.crypto, crypto.PurposeAddress, address)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt address: %w", err)
	}
	return sealed, nil
}

func (s *UserStore) scanUser(row pgx.Row) (*models.User, error) {
	var (
		user             models.User
		mobile, email    pgtype.Text
		addressEncrypted string
	)
	err := row.Scan(&user.ID, &user.Name, &mobile, &email, &addressEncrypted, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	user.Mobile = mobile.String
	user.Email = email.String
	if err := crypto.OpenJSON(s.crypto, crypto.PurposeAddress, addressEncrypted, &user.Address); err != nil {
		return nil, fmt.Errorf("failed to decrypt address: %w", err)
	}
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return &user, nil
}

func nullableText(value string) pgtype.Text {
	value = strings.TrimSpace(value)
	return pgtype.Text{String: value, Valid: value != ""}
}

const adminColumns = `id::text, name, email, password_hash, created_at`

type AdminStore struct {
	pool *pgxpool.Pool
}

func NewAdminStore(pool *pgxpool.Pool) *AdminStore {
	return &AdminStore{pool: pool}
}

func (s *AdminStore) Create(ctx context.Context, admin *models.Admin) error {
	query := `
		INSERT INTO admins (id, name, email, password_hash)
		VALUES ($1, $2, $3, $4)
		RETURNING id::text, created_at
	`
	err := s.pool.QueryRow(ctx, query, newID(), admin.Name, admin.Email, admin.PasswordHash).
		Scan(&admin.ID, &admin.CreatedAt)
	return mapError(err)
}

func (s *AdminStore) GetByID(ctx context.Context, id string) (*models.Admin, error) {
	adminID, ok := parseID(id)
	if !ok {
		return nil, store.ErrNotFound
	}
	return scanAdmin(s.pool.QueryRow(ctx, `SELECT `+adminColumns+` FROM admins WHERE id = $1`, adminID))
}

func (s *AdminStore) GetByEmail(ctx context.Context, email string) (*models.Admin, error) {
	return scanAdmin(s.pool.QueryRow(ctx, `SELECT `+adminColumns+` FROM admins WHERE lower(email) = lower($1)`, email))
}

func (s *AdminStore) List(ctx context.Context) ([]*models.Admin, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+adminColumns+` FROM admins ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	admins := make([]*models.Admin, 0)
	for rows.Next() {
		admin, err := scanAdmin(rows)
		if err != nil {
			return nil, err
		}
		admins = append(admins, admin)
	}
	return admins, rows.Err()
}

func scanAdmin(row pgx.Row) (*models.Admin, error) {
	var admin models.Admin
	if err := row.Scan(&admin.ID, &admin.Name, &admin.Email, &admin.PasswordHash, &admin.CreatedAt); err != nil {
		return nil, mapError(err)
	}
	admin.CreatedAt = admin.CreatedAt.UTC()
	return &admin, nil
}
