package v1

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/duynhne/travel-portal/internal/core/domain"
	"github.com/duynhne/travel-portal/internal/core/identity"
	"github.com/duynhne/travel-portal/internal/logger"
	"github.com/duynhne/travel-portal/middleware"
)

// CacheDuration is the freshness window of an authoritative session answer.
const CacheDuration = 5 * time.Minute

// Outcome classifies the answer of a current-user lookup.
type Outcome int

const (
	OutcomeAuthenticated Outcome = iota + 1
	OutcomeAnonymous
	OutcomeBackendError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAuthenticated:
		return "authenticated"
	case OutcomeAnonymous:
		return "anonymous"
	case OutcomeBackendError:
		return "backend_error"
	default:
		return "unknown"
	}
}

// authResult keeps "no session" and "backend unreachable" apart even though
// both end in the anonymous state.
type authResult struct {
	outcome Outcome
	user    *domain.User
	err     error
}

// SessionState is a read-only snapshot of the dashboard session.
type SessionState struct {
	User            *domain.User `json:"user"`
	IsLoading       bool         `json:"isLoading"`
	IsAuthenticated bool         `json:"isAuthenticated"`
	UserID          string       `json:"userId"`
	HasInitialized  bool         `json:"hasInitialized"`
	LastFetch       time.Time    `json:"lastFetch,omitzero"`
}

// SessionOption configures a SessionManager.
type SessionOption func(*SessionManager)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) SessionOption {
	return func(m *SessionManager) { m.now = now }
}

// SessionManager owns the signed-in state of the dashboard operator. It is
// the single writer of that state: CheckAuth, Login and Logout are
// serialized, so the state always reflects the last operation to finish in
// issue order. Readers use State and may observe IsLoading while an
// operation is in flight.
//
// Backend calls are not cancelled when the caller's context is: an
// in-flight answer is still committed. Only the backend transport's own
// timeout bounds them.
type SessionManager struct {
	backend domain.IdentityBackend
	cache   domain.SessionCache
	userID  string
	now     func() time.Time

	op sync.Mutex

	mu              sync.RWMutex
	user            *domain.User
	isAuthenticated bool
	isLoading       bool
	lastFetch       int64 // ms since epoch of the last authoritative answer, 0 if none
	hasInitialized  bool

	// credential is the sha256 of the token handed to the client that
	// signed in. Only that client may act on the session.
	credential       []byte
	credentialExpiry time.Time
}

// NewSessionManager creates a SessionManager in the uninitialized state.
// userID is the pre-provisioned account identity reported by State.
func NewSessionManager(backend domain.IdentityBackend, cache domain.SessionCache, userID string, opts ...SessionOption) *SessionManager {
	m := &SessionManager{
		backend:   backend,
		cache:     cache,
		userID:    userID,
		now:       time.Now,
		isLoading: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns a snapshot of the session.
func (m *SessionManager) State() SessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := SessionState{
		User:            cloneUser(m.user),
		IsLoading:       m.isLoading,
		IsAuthenticated: m.isAuthenticated,
		UserID:          m.userID,
		HasInitialized:  m.hasInitialized,
	}
	if m.lastFetch > 0 {
		s.LastFetch = time.UnixMilli(m.lastFetch)
	}
	return s
}

// CheckAuth brings the session state up to date. Unless forceRefresh is set
// it first tries the persisted cache record (before the first transition)
// or the in-memory freshness window (after it), and only then asks the
// backend. Backend failures collapse the state to anonymous and are never
// returned.
func (m *SessionManager) CheckAuth(ctx context.Context, forceRefresh bool) {
	ctx, span := middleware.StartSpan(ctx, "session.check_auth", trace.WithAttributes(
		attribute.String("layer", "logic"),
		attribute.Bool("force_refresh", forceRefresh),
	))
	defer span.End()

	m.op.Lock()
	defer m.op.Unlock()

	if !forceRefresh {
		m.mu.RLock()
		initialized, lastFetch := m.hasInitialized, m.lastFetch
		m.mu.RUnlock()

		now := m.now()
		if !initialized {
			if rec, ok := m.loadFreshRecord(ctx, now); ok {
				m.adopt(*rec)
				span.SetAttributes(attribute.String("session.source", "cache"))
				return
			}
		} else if now.UnixMilli()-lastFetch < CacheDuration.Milliseconds() {
			sessionCacheLookups.WithLabelValues("memory").Inc()
			m.setLoading(false)
			span.SetAttributes(attribute.String("session.source", "memory"))
			return
		}
	}

	span.SetAttributes(attribute.String("session.source", "backend"))
	m.setLoading(true)
	defer m.setLoading(false)

	res := m.resolve(ctx)
	span.SetAttributes(attribute.String("session.outcome", res.outcome.String()))

	if res.outcome == OutcomeBackendError {
		span.RecordError(res.err)
		logger.FromContext(ctx).Warn().Err(res.err).Msg("Session check failed, treating operator as signed out")
		m.commit(nil, 0)
		return
	}

	fetchedAt := m.now().UnixMilli()
	m.commit(res.user, fetchedAt)
	if res.user == nil {
		m.setCredential("", time.Time{})
	}
	m.persist(ctx, res.user, fetchedAt)
}

// RefreshUser re-reads the current user from the backend, bypassing both
// the cache record and the freshness window.
func (m *SessionManager) RefreshUser(ctx context.Context) {
	m.CheckAuth(ctx, true)
}

// Login creates a session and resolves its user. A session whose user cannot
// be resolved is not a login: the state stays anonymous and (nil, nil) is
// returned. Backend failures leave the state anonymous and are returned.
// Any credential issued by an earlier SignIn stops being accepted.
func (m *SessionManager) Login(ctx context.Context, email, password string) (*domain.Session, error) {
	session, _, err := m.SignIn(ctx, email, password)
	return session, err
}

// SignIn is Login for a remote client: on success it also returns a fresh
// credential token that Authorize accepts until the session ends. The
// manager keeps only its hash.
func (m *SessionManager) SignIn(ctx context.Context, email, password string) (*domain.Session, string, error) {
	ctx, span := middleware.StartSpan(ctx, "session.login", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	token, err := newSessionToken()
	if err != nil {
		span.RecordError(err)
		return nil, "", fmt.Errorf("generate credential: %w", err)
	}

	m.op.Lock()
	defer m.op.Unlock()

	m.setLoading(true)
	defer m.setLoading(false)

	session, err := m.backend.CreateSession(context.WithoutCancel(ctx), email, password)
	observeBackendCall("create_session", err)
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("auth.success", false))
		m.commit(nil, 0)
		m.setCredential("", time.Time{})
		return nil, "", fmt.Errorf("login %q: %w", email, classifyBackendError(err, ErrInvalidCredentials))
	}

	res := m.resolve(ctx)
	switch res.outcome {
	case OutcomeBackendError:
		span.RecordError(res.err)
		span.SetAttributes(attribute.Bool("auth.success", false))
		m.commit(nil, 0)
		m.setCredential("", time.Time{})
		return nil, "", fmt.Errorf("resolve user after login: %w", classifyBackendError(res.err, ErrUnauthenticated))
	case OutcomeAnonymous:
		span.SetAttributes(attribute.Bool("auth.success", false))
		span.AddEvent("session.unresolvable")
		logger.FromContext(ctx).Warn().Msg("Session created but no user resolved")
		m.commit(nil, m.now().UnixMilli())
		m.setCredential("", time.Time{})
		return nil, "", nil
	}

	fetchedAt := m.now().UnixMilli()
	m.commit(res.user, fetchedAt)
	m.setCredential(token, session.ExpiresAt)
	m.persist(ctx, res.user, fetchedAt)

	span.SetAttributes(
		attribute.String("user.id", res.user.ID),
		attribute.Bool("auth.success", true),
	)
	span.AddEvent("user.authenticated")

	return session, token, nil
}

// Authorize reports whether token is the credential issued by the last
// successful SignIn and the session is still authenticated.
func (m *SessionManager) Authorize(token string) bool {
	if token == "" {
		return false
	}
	sum := sha256.Sum256([]byte(token))

	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.isAuthenticated || m.credential == nil {
		return false
	}
	if !m.credentialExpiry.IsZero() && !m.now().Before(m.credentialExpiry) {
		return false
	}
	return subtle.ConstantTimeCompare(m.credential, sum[:]) == 1
}

// Logout deletes the current session. On success the state becomes
// anonymous and the cache record is removed; on failure the error is
// returned and the state is left as it was, since the server-side session
// may still be valid.
func (m *SessionManager) Logout(ctx context.Context) error {
	ctx, span := middleware.StartSpan(ctx, "session.logout", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	m.op.Lock()
	defer m.op.Unlock()

	m.setLoading(true)
	defer m.setLoading(false)

	err := m.backend.DeleteCurrentSession(context.WithoutCancel(ctx))
	observeBackendCall("delete_session", err)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("logout: %w", classifyBackendError(err, ErrSessionNotFound))
	}

	m.commit(nil, m.now().UnixMilli())
	m.setCredential("", time.Time{})
	if err := m.cache.Delete(ctx); err != nil {
		span.RecordError(err)
		logger.FromContext(ctx).Error().Err(err).Msg("Failed to delete session cache record")
	}

	span.AddEvent("user.signed_out")
	return nil
}

// UpdateName changes the operator's display name and refreshes the session.
func (m *SessionManager) UpdateName(ctx context.Context, name string) (*domain.User, error) {
	ctx, span := middleware.StartSpan(ctx, "session.update_name", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	_, err := m.backend.UpdateName(ctx, name)
	observeBackendCall("update_name", err)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("update name: %w", classifyBackendError(err, ErrUnauthenticated))
	}

	return m.refreshedUser(ctx)
}

// UpdatePassword changes the operator's password and refreshes the session.
func (m *SessionManager) UpdatePassword(ctx context.Context, newPassword, oldPassword string) (*domain.User, error) {
	ctx, span := middleware.StartSpan(ctx, "session.update_password", trace.WithAttributes(
		attribute.String("layer", "logic"),
	))
	defer span.End()

	_, err := m.backend.UpdatePassword(ctx, newPassword, oldPassword)
	observeBackendCall("update_password", err)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("update password: %w", classifyBackendError(err, ErrInvalidCredentials))
	}

	return m.refreshedUser(ctx)
}

func (m *SessionManager) refreshedUser(ctx context.Context) (*domain.User, error) {
	m.RefreshUser(ctx)
	state := m.State()
	if !state.IsAuthenticated {
		return nil, fmt.Errorf("refresh after profile update: %w", ErrUnauthenticated)
	}
	return state.User, nil
}

// resolve asks the backend for the current user.
func (m *SessionManager) resolve(ctx context.Context) authResult {
	user, err := m.backend.GetCurrentUser(context.WithoutCancel(ctx))
	observeBackendCall("get_current_user", err)

	switch {
	case err != nil:
		return authResult{outcome: OutcomeBackendError, err: err}
	case user == nil:
		return authResult{outcome: OutcomeAnonymous}
	default:
		return authResult{outcome: OutcomeAuthenticated, user: user}
	}
}

// loadFreshRecord returns the persisted record when it exists, decodes and
// is inside the freshness window. A corrupt record is deleted.
func (m *SessionManager) loadFreshRecord(ctx context.Context, now time.Time) (*domain.CacheRecord, bool) {
	log := logger.FromContext(ctx)

	rec, err := m.cache.Load(ctx)
	switch {
	case errors.Is(err, domain.ErrCacheCorrupt):
		sessionCacheLookups.WithLabelValues("corrupt").Inc()
		log.Warn().Err(err).Msg("Discarding corrupt session cache record")
		if delErr := m.cache.Delete(ctx); delErr != nil {
			log.Warn().Err(delErr).Msg("Failed to delete corrupt session cache record")
		}
		return nil, false
	case err != nil:
		sessionCacheLookups.WithLabelValues("error").Inc()
		log.Warn().Err(err).Msg("Session cache unavailable")
		return nil, false
	case rec == nil:
		sessionCacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	case !rec.IsFresh(now, CacheDuration):
		sessionCacheLookups.WithLabelValues("stale").Inc()
		return nil, false
	}

	sessionCacheLookups.WithLabelValues("hit").Inc()
	return rec, true
}

func (m *SessionManager) persist(ctx context.Context, user *domain.User, fetchedAt int64) {
	rec := domain.CacheRecord{
		User:               user,
		IsAuthenticated:    user != nil,
		LastFetchTimestamp: fetchedAt,
	}
	if err := m.cache.Save(ctx, rec); err != nil {
		logger.FromContext(ctx).Warn().Err(err).Msg("Failed to persist session cache record")
	}
}

// adopt takes a fresh cache record as the current state.
func (m *SessionManager) adopt(rec domain.CacheRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user := rec.User
	if !rec.IsAuthenticated {
		user = nil
	}
	m.user = user
	m.isAuthenticated = user != nil
	m.lastFetch = rec.LastFetchTimestamp
	m.hasInitialized = true
	m.isLoading = false
	setAuthenticatedGauge(m.isAuthenticated)
}

// commit is the only transition of the session state. fetchedAt is zero
// when the answer was not authoritative.
func (m *SessionManager) commit(user *domain.User, fetchedAt int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.user = user
	m.isAuthenticated = user != nil
	m.lastFetch = fetchedAt
	m.hasInitialized = true
	setAuthenticatedGauge(m.isAuthenticated)
}

// setCredential replaces the accepted client credential. An empty token
// revokes it. A backend outage does not revoke: the credential works again
// once the backend confirms the user.
func (m *SessionManager) setCredential(token string, expiresAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if token == "" {
		m.credential, m.credentialExpiry = nil, time.Time{}
		return
	}
	sum := sha256.Sum256([]byte(token))
	m.credential, m.credentialExpiry = sum[:], expiresAt
}

func (m *SessionManager) setLoading(loading bool) {
	m.mu.Lock()
	m.isLoading = loading
	m.mu.Unlock()
}

func setAuthenticatedGauge(authenticated bool) {
	if authenticated {
		sessionAuthenticated.Set(1)
	} else {
		sessionAuthenticated.Set(0)
	}
}

// classifyBackendError maps backend status codes onto sentinel errors.
// unauthorized is what a 401 means for the calling operation.
func classifyBackendError(err, unauthorized error) error {
	switch {
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrUnauthenticated):
		return err
	case identity.IsStatus(err, http.StatusUnauthorized):
		return fmt.Errorf("%w: %w", unauthorized, err)
	case identity.IsStatus(err, http.StatusTooManyRequests):
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	default:
		return err
	}
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	c := *u
	c.Prefs = maps.Clone(u.Prefs)
	return &c
}
