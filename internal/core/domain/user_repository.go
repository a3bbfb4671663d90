package domain

import "context"

// UserRow represents a dashboard account stored by the self-hosted identity backend.
// It includes the password hash so the Logic layer can verify credentials.
type UserRow struct {
	ID           int
	Name         string
	Email        string
	PasswordHash string
	Prefs        []byte // raw JSON object, may be nil
}

// UserRepository defines the data-access contract for account operations.
// Implementations live in internal/core/repository (Core layer).
// The Logic layer depends on this interface only, never on SQL or pgx directly.
type UserRepository interface {
	// GetByEmail returns the user matching the given email.
	// Returns (nil, nil) when no user is found.
	GetByEmail(ctx context.Context, email string) (*UserRow, error)

	// GetByID returns the user with the given ID.
	// Returns (nil, nil) when no user is found.
	GetByID(ctx context.Context, id int) (*UserRow, error)

	// UpdateName sets the display name of the given user.
	UpdateName(ctx context.Context, id int, name string) error

	// UpdatePasswordHash replaces the password hash of the given user.
	UpdatePasswordHash(ctx context.Context, id int, passwordHash string) error

	// UpdateLastLogin sets the last_login timestamp to now for the given user.
	UpdateLastLogin(ctx context.Context, id int) error
}
