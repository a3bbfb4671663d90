package domain

import "context"

// IdentityBackend is the account capability set the session manager consumes.
// Implementations live in internal/core/identity (remote BaaS) and
// internal/logic/v1 (self-hosted, Postgres backed).
type IdentityBackend interface {
	// CreateSession exchanges email and password for a new session.
	CreateSession(ctx context.Context, email, password string) (*Session, error)

	// GetCurrentUser returns the user behind the current session.
	// Returns (nil, nil) when there is no session; errors are transport
	// or backend failures only.
	GetCurrentUser(ctx context.Context) (*User, error)

	// DeleteCurrentSession invalidates the current session server-side.
	DeleteCurrentSession(ctx context.Context) error

	// UpdateName changes the current user's display name.
	UpdateName(ctx context.Context, name string) (*User, error)

	// UpdatePassword changes the current user's password. oldPassword may be
	// empty when the backend does not require it.
	UpdatePassword(ctx context.Context, newPassword, oldPassword string) (*User, error)
}
