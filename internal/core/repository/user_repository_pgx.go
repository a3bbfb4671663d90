package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/duynhne/travel-portal/internal/core/domain"
)

// PgxUserRepository implements domain.UserRepository using pgxpool.
type PgxUserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new PgxUserRepository.
func NewUserRepository(pool *pgxpool.Pool) *PgxUserRepository {
	return &PgxUserRepository{pool: pool}
}

const selectUserColumns = `SELECT id, name, email, password_hash, prefs FROM users`

// GetByEmail returns the user matching the given email (case-insensitive).
// Returns (nil, nil) when no user is found.
func (r *PgxUserRepository) GetByEmail(ctx context.Context, email string) (*domain.UserRow, error) {
	return r.getOne(ctx, selectUserColumns+` WHERE lower(email) = lower($1)`, email)
}

// GetByID returns the user with the given ID.
// Returns (nil, nil) when no user is found.
func (r *PgxUserRepository) GetByID(ctx context.Context, id int) (*domain.UserRow, error) {
	return r.getOne(ctx, selectUserColumns+` WHERE id = $1`, id)
}

func (r *PgxUserRepository) getOne(ctx context.Context, query string, arg any) (*domain.UserRow, error) {
	var row domain.UserRow
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&row.ID, &row.Name, &row.Email, &row.PasswordHash, &row.Prefs,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &row, nil
}

// UpdateName sets the display name of the given user.
func (r *PgxUserRepository) UpdateName(ctx context.Context, id int, name string) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET name = $2 WHERE id = $1`, id, name)
	return err
}

// UpdatePasswordHash replaces the password hash of the given user.
func (r *PgxUserRepository) UpdatePasswordHash(ctx context.Context, id int, passwordHash string) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, id, passwordHash)
	return err
}

// UpdateLastLogin sets the last_login timestamp to now for the given user.
func (r *PgxUserRepository) UpdateLastLogin(ctx context.Context, id int) error {
	_, err := r.pool.Exec(ctx, `UPDATE users SET last_login = CURRENT_TIMESTAMP WHERE id = $1`, id)
	return err
}
