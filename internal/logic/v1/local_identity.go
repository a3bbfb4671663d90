package v1

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"

	"github.com/duynhne/travel-portal/internal/core/domain"
	"github.com/duynhne/travel-portal/middleware"
)

// LocalSessionTTL is how long a self-hosted session stays valid.
const LocalSessionTTL = 24 * time.Hour

// LocalIdentity implements domain.IdentityBackend on the users and sessions
// tables. Like a browser holding a session cookie, it remembers the token of
// the one session it created.
// It depends on repository interfaces (injected via constructor) and
// MUST NOT access the database or SQL directly.
type LocalIdentity struct {
	users    domain.UserRepository
	sessions domain.SessionRepository
	now      func() time.Time

	mu    sync.Mutex
	token string
}

// NewLocalIdentity creates a LocalIdentity with the given repository dependencies.
func NewLocalIdentity(users domain.UserRepository, sessions domain.SessionRepository) *LocalIdentity {
	return &LocalIdentity{
		users:    users,
		sessions: sessions,
		now:      time.Now,
	}
}

// CreateSession verifies email and password and opens a new session.
func (s *LocalIdentity) CreateSession(ctx context.Context, email, password string) (*domain.Session, error) {
	ctx, span := middleware.StartSpan(ctx, "identity.create_session", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("identity.backend", "local"),
	))
	defer span.End()

	row, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query user %q: %w", email, err)
	}
	if row == nil {
		span.SetAttributes(attribute.Bool("auth.success", false))
		span.AddEvent("authentication.failed")
		return nil, fmt.Errorf("authenticate user %q: %w", email, ErrUserNotFound)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(row.PasswordHash), []byte(password)); err != nil {
		span.SetAttributes(attribute.Bool("auth.success", false))
		span.AddEvent("authentication.failed")
		return nil, fmt.Errorf("authenticate user %q: %w", email, ErrInvalidCredentials)
	}

	// Update last_login timestamp (best-effort, don't fail login)
	if updateErr := s.users.UpdateLastLogin(ctx, row.ID); updateErr != nil {
		span.RecordError(fmt.Errorf("update last_login: %w", updateErr))
	}

	token, err := newSessionToken()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("generate session token: %w", err)
	}

	expiresAt := s.now().Add(LocalSessionTTL)
	if err := s.sessions.Create(ctx, row.ID, token, expiresAt); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	span.SetAttributes(
		attribute.String("user.id", strconv.Itoa(row.ID)),
		attribute.Bool("auth.success", true),
	)

	return &domain.Session{
		ID:        sessionID(token),
		UserID:    strconv.Itoa(row.ID),
		ExpiresAt: expiresAt,
	}, nil
}

// GetCurrentUser returns the user of the held session, or (nil, nil) when
// there is none or it has expired.
func (s *LocalIdentity) GetCurrentUser(ctx context.Context) (*domain.User, error) {
	ctx, span := middleware.StartSpan(ctx, "identity.get_current_user", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("identity.backend", "local"),
	))
	defer span.End()

	token := s.currentToken()
	if token == "" {
		span.SetAttributes(attribute.Bool("session.valid", false))
		return nil, nil
	}

	row, err := s.sessions.GetUserByToken(ctx, token)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query session: %w", err)
	}
	if row == nil {
		span.SetAttributes(attribute.Bool("session.valid", false))
		s.forget(token)
		return nil, nil
	}

	if s.now().After(row.ExpiresAt) {
		span.SetAttributes(attribute.Bool("session.valid", false))
		// Expired sessions are dropped best-effort.
		if delErr := s.sessions.Delete(ctx, token); delErr != nil {
			span.RecordError(fmt.Errorf("delete expired session: %w", delErr))
		}
		s.forget(token)
		return nil, nil
	}

	user := &domain.User{
		ID:    strconv.Itoa(row.UserID),
		Name:  row.Name,
		Email: row.Email,
		Prefs: decodePrefs(row.Prefs),
	}

	span.SetAttributes(
		attribute.String("user.id", user.ID),
		attribute.Bool("session.valid", true),
	)

	return user, nil
}

// DeleteCurrentSession removes the held session.
func (s *LocalIdentity) DeleteCurrentSession(ctx context.Context) error {
	ctx, span := middleware.StartSpan(ctx, "identity.delete_session", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("identity.backend", "local"),
	))
	defer span.End()

	token := s.currentToken()
	if token == "" {
		return fmt.Errorf("delete current session: %w", ErrSessionNotFound)
	}

	if err := s.sessions.Delete(ctx, token); err != nil {
		span.RecordError(err)
		return fmt.Errorf("delete session: %w", err)
	}
	s.forget(token)
	return nil
}

// UpdateName changes the display name of the signed-in user.
func (s *LocalIdentity) UpdateName(ctx context.Context, name string) (*domain.User, error) {
	ctx, span := middleware.StartSpan(ctx, "identity.update_name", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("identity.backend", "local"),
	))
	defer span.End()

	row, err := s.currentUserRow(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := s.users.UpdateName(ctx, row.ID, name); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("update name: %w", err)
	}
	row.Name = name

	return rowToUser(row), nil
}

// UpdatePassword replaces the password of the signed-in user. When
// oldPassword is given it must match the current password.
func (s *LocalIdentity) UpdatePassword(ctx context.Context, newPassword, oldPassword string) (*domain.User, error) {
	ctx, span := middleware.StartSpan(ctx, "identity.update_password", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.String("identity.backend", "local"),
	))
	defer span.End()

	row, err := s.currentUserRow(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if oldPassword != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(row.PasswordHash), []byte(oldPassword)); err != nil {
			return nil, fmt.Errorf("verify old password: %w", ErrInvalidCredentials)
		}
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("hash password: %w", err)
	}

	if err := s.users.UpdatePasswordHash(ctx, row.ID, string(passwordHash)); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("update password: %w", err)
	}

	return rowToUser(row), nil
}

// currentUserRow loads the full user row behind the held session.
func (s *LocalIdentity) currentUserRow(ctx context.Context) (*domain.UserRow, error) {
	user, err := s.GetCurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("current user: %w", ErrUnauthenticated)
	}

	id, err := strconv.Atoi(user.ID)
	if err != nil {
		return nil, fmt.Errorf("parse user id %q: %w", user.ID, err)
	}
	row, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("query user %d: %w", id, err)
	}
	if row == nil {
		return nil, fmt.Errorf("query user %d: %w", id, ErrUserNotFound)
	}
	return row, nil
}

func (s *LocalIdentity) currentToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// forget clears the held token unless a newer session replaced it meanwhile.
func (s *LocalIdentity) forget(token string) {
	s.mu.Lock()
	if s.token == token {
		s.token = ""
	}
	s.mu.Unlock()
}

func rowToUser(row *domain.UserRow) *domain.User {
	return &domain.User{
		ID:    strconv.Itoa(row.ID),
		Name:  row.Name,
		Email: row.Email,
		Prefs: decodePrefs(row.Prefs),
	}
}

func decodePrefs(raw []byte) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var prefs map[string]any
	if err := json.Unmarshal(raw, &prefs); err != nil || len(prefs) == 0 {
		return nil
	}
	return prefs
}

func newSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// sessionID derives a public identifier from a token without revealing it.
func sessionID(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}
