package v1

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynhne/travel-portal/internal/core/domain"
	"github.com/duynhne/travel-portal/internal/core/identity"
)

// fakeIdentity is an in-memory identity backend that counts calls.
type fakeIdentity struct {
	mu sync.Mutex

	user       *domain.User // returned by GetCurrentUser when signedIn
	signedIn   bool
	password   string
	resolveNil bool // GetCurrentUser returns (nil, nil) even when signed in
	expiresAt  time.Time

	getErr    error
	createErr error
	deleteErr error

	// block, when set, is received from before GetCurrentUser answers.
	block chan struct{}

	getCalls    int
	createCalls int
	deleteCalls int
}

func (f *fakeIdentity) CreateSession(_ context.Context, email, password string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.user == nil || email != f.user.Email || password != f.password {
		return nil, &identity.HTTPError{StatusCode: http.StatusUnauthorized, Message: "Invalid credentials."}
	}
	f.signedIn = true
	return &domain.Session{ID: "s1", UserID: f.user.ID, ExpiresAt: f.expiresAt}, nil
}

func (f *fakeIdentity) GetCurrentUser(context.Context) (*domain.User, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	if !f.signedIn || f.resolveNil {
		return nil, nil
	}
	u := *f.user
	return &u, nil
}

func (f *fakeIdentity) DeleteCurrentSession(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.signedIn = false
	return nil
}

func (f *fakeIdentity) UpdateName(_ context.Context, name string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.signedIn {
		return nil, &identity.HTTPError{StatusCode: http.StatusUnauthorized, Message: "missing scope"}
	}
	f.user.Name = name
	u := *f.user
	return &u, nil
}

func (f *fakeIdentity) UpdatePassword(_ context.Context, newPassword, oldPassword string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if oldPassword != f.password {
		return nil, &identity.HTTPError{StatusCode: http.StatusUnauthorized, Message: "Invalid credentials."}
	}
	f.password = newPassword
	u := *f.user
	return &u, nil
}

func (f *fakeIdentity) calls() (get, create, del int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls, f.createCalls, f.deleteCalls
}

// memoryCache is an in-memory domain.SessionCache.
type memoryCache struct {
	mu      sync.Mutex
	rec     *domain.CacheRecord
	corrupt bool
	loadErr error
	deletes int
}

func (c *memoryCache) Load(context.Context) (*domain.CacheRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loadErr != nil {
		return nil, c.loadErr
	}
	if c.corrupt {
		return nil, domain.ErrCacheCorrupt
	}
	if c.rec == nil {
		return nil, nil
	}
	r := *c.rec
	return &r, nil
}

func (c *memoryCache) Save(_ context.Context, rec domain.CacheRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rec = &rec
	c.corrupt = false
	return nil
}

func (c *memoryCache) Delete(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rec = nil
	c.corrupt = false
	c.deletes++
	return nil
}

func (c *memoryCache) record() *domain.CacheRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rec
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var alice = domain.User{ID: "u1", Name: "Alice", Email: "alice@example.com"}

type sessionFixture struct {
	backend *fakeIdentity
	cache   *memoryCache
	clock   *fakeClock
	mgr     *SessionManager
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()

	u := alice
	f := &sessionFixture{
		backend: &fakeIdentity{user: &u, password: "secret123"},
		cache:   &memoryCache{},
		clock:   &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	f.mgr = NewSessionManager(f.backend, f.cache, "acct-main", WithClock(f.clock.Now))
	return f
}

func TestSessionManager_InitialState(t *testing.T) {
	f := newSessionFixture(t)

	s := f.mgr.State()
	assert.Nil(t, s.User)
	assert.False(t, s.IsAuthenticated)
	assert.True(t, s.IsLoading)
	assert.False(t, s.HasInitialized)
	assert.True(t, s.LastFetch.IsZero())
	assert.Equal(t, "acct-main", s.UserID)
}

func TestCheckAuth_ColdStartAuthenticated(t *testing.T) {
	f := newSessionFixture(t)
	f.backend.signedIn = true

	f.mgr.CheckAuth(context.Background(), false)

	s := f.mgr.State()
	require.NotNil(t, s.User)
	assert.Equal(t, "u1", s.User.ID)
	assert.Equal(t, "Alice", s.User.Name)
	assert.True(t, s.IsAuthenticated)
	assert.True(t, s.HasInitialized)
	assert.False(t, s.IsLoading)

	rec := f.cache.record()
	require.NotNil(t, rec)
	assert.True(t, rec.IsAuthenticated)
	assert.Equal(t, f.clock.Now().UnixMilli(), rec.LastFetchTimestamp)
}

func TestCheckAuth_ColdStartAnonymousIsPersisted(t *testing.T) {
	f := newSessionFixture(t)

	f.mgr.CheckAuth(context.Background(), false)

	s := f.mgr.State()
	assert.Nil(t, s.User)
	assert.False(t, s.IsAuthenticated)
	assert.True(t, s.HasInitialized)

	rec := f.cache.record()
	require.NotNil(t, rec)
	assert.False(t, rec.IsAuthenticated)
	assert.Nil(t, rec.User)
}

func TestCheckAuth_WithinWindowCallsBackendOnce(t *testing.T) {
	f := newSessionFixture(t)
	f.backend.signedIn = true
	ctx := context.Background()

	f.mgr.CheckAuth(ctx, false)
	for range 4 {
		f.clock.Advance(time.Minute)
		f.mgr.CheckAuth(ctx, false)
	}
	f.clock.Advance(59 * time.Second)
	f.mgr.CheckAuth(ctx, false)

	get, _, _ := f.backend.calls()
	assert.Equal(t, 1, get)
	assert.False(t, f.mgr.State().IsLoading)

	f.clock.Advance(time.Second)
	f.mgr.CheckAuth(ctx, false)

	get, _, _ = f.backend.calls()
	assert.Equal(t, 2, get, "window elapsed, backend is asked again")
}

func TestCheckAuth_FreshCacheAdoptedWithoutBackend(t *testing.T) {
	f := newSessionFixture(t)
	u := alice
	fetchedAt := f.clock.Now().Add(-60 * time.Second).UnixMilli()
	f.cache.rec = &domain.CacheRecord{User: &u, IsAuthenticated: true, LastFetchTimestamp: fetchedAt}

	f.mgr.CheckAuth(context.Background(), false)

	get, _, _ := f.backend.calls()
	assert.Equal(t, 0, get)

	s := f.mgr.State()
	assert.True(t, s.IsAuthenticated)
	require.NotNil(t, s.User)
	assert.Equal(t, "u1", s.User.ID)
	assert.True(t, s.HasInitialized)
	assert.False(t, s.IsLoading)
	assert.Equal(t, fetchedAt, s.LastFetch.UnixMilli())

	// The adopted timestamp drives the in-memory window: 4 more minutes are free.
	f.clock.Advance(3*time.Minute + 59*time.Second)
	f.mgr.CheckAuth(context.Background(), false)
	get, _, _ = f.backend.calls()
	assert.Equal(t, 0, get)
}

func TestCheckAuth_StaleCacheNeverAdopted(t *testing.T) {
	for _, age := range []time.Duration{CacheDuration, CacheDuration + time.Millisecond, time.Hour} {
		t.Run(age.String(), func(t *testing.T) {
			f := newSessionFixture(t)
			u := alice
			f.cache.rec = &domain.CacheRecord{
				User:               &u,
				IsAuthenticated:    true,
				LastFetchTimestamp: f.clock.Now().Add(-age).UnixMilli(),
			}

			f.mgr.CheckAuth(context.Background(), false)

			get, _, _ := f.backend.calls()
			assert.Equal(t, 1, get)
			s := f.mgr.State()
			assert.False(t, s.IsAuthenticated, "backend says signed out, stale cache ignored")
			assert.Nil(t, s.User)
		})
	}
}

func TestCheckAuth_CorruptCacheIsDiscarded(t *testing.T) {
	f := newSessionFixture(t)
	f.cache.corrupt = true
	f.backend.signedIn = true

	f.mgr.CheckAuth(context.Background(), false)

	assert.Equal(t, 1, f.cache.deletes)
	get, _, _ := f.backend.calls()
	assert.Equal(t, 1, get)
	assert.True(t, f.mgr.State().IsAuthenticated)
	require.NotNil(t, f.cache.record(), "fresh answer replaces the corrupt record")
}

func TestCheckAuth_CacheUnavailableFallsThrough(t *testing.T) {
	f := newSessionFixture(t)
	f.cache.loadErr = errors.New("connection refused")
	f.backend.signedIn = true

	f.mgr.CheckAuth(context.Background(), false)

	get, _, _ := f.backend.calls()
	assert.Equal(t, 1, get)
	assert.True(t, f.mgr.State().IsAuthenticated)
}

func TestCheckAuth_BackendErrorCollapsesToAnonymous(t *testing.T) {
	f := newSessionFixture(t)
	f.backend.signedIn = true
	ctx := context.Background()

	f.mgr.CheckAuth(ctx, false)
	require.True(t, f.mgr.State().IsAuthenticated)
	persisted := *f.cache.record()

	f.backend.getErr = errors.New("dial tcp: connection refused")
	f.clock.Advance(time.Minute)
	assert.NotPanics(t, func() { f.mgr.RefreshUser(ctx) })

	s := f.mgr.State()
	assert.Nil(t, s.User)
	assert.False(t, s.IsAuthenticated)
	assert.False(t, s.IsLoading)
	assert.True(t, s.LastFetch.IsZero(), "a failed check is not an authoritative answer")
	assert.Equal(t, persisted, *f.cache.record(), "failed check does not overwrite the cache record")

	// Not authoritative, so the next passive check retries the backend.
	f.backend.getErr = nil
	f.mgr.CheckAuth(ctx, false)
	get, _, _ := f.backend.calls()
	assert.Equal(t, 3, get)
	assert.True(t, f.mgr.State().IsAuthenticated)
}

func TestRefreshUser_BypassesWindow(t *testing.T) {
	f := newSessionFixture(t)
	f.backend.signedIn = true
	ctx := context.Background()

	f.mgr.CheckAuth(ctx, false)
	f.backend.signedIn = false
	f.mgr.RefreshUser(ctx)

	get, _, _ := f.backend.calls()
	assert.Equal(t, 2, get)
	assert.False(t, f.mgr.State().IsAuthenticated)
	assert.False(t, f.cache.record().IsAuthenticated)
}

func TestLogin_Success(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	f.mgr.CheckAuth(ctx, false)

	session, err := f.mgr.Login(ctx, "alice@example.com", "secret123")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, "s1", session.ID)

	s := f.mgr.State()
	assert.True(t, s.IsAuthenticated)
	require.NotNil(t, s.User)
	assert.Equal(t, "u1", s.User.ID)
	assert.False(t, s.IsLoading)

	rec := f.cache.record()
	require.NotNil(t, rec)
	assert.True(t, rec.IsAuthenticated)
	assert.Equal(t, f.clock.Now().UnixMilli(), rec.LastFetchTimestamp)
	assert.Equal(t, s.LastFetch.UnixMilli(), rec.LastFetchTimestamp)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	f := newSessionFixture(t)

	session, err := f.mgr.Login(context.Background(), "alice@example.com", "nope")
	assert.Nil(t, session)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.True(t, identity.IsStatus(err, http.StatusUnauthorized))

	s := f.mgr.State()
	assert.False(t, s.IsAuthenticated)
	assert.True(t, s.HasInitialized)
	assert.False(t, s.IsLoading)
	assert.Nil(t, f.cache.record())
}

func TestLogin_ProfileFetchFails(t *testing.T) {
	f := newSessionFixture(t)
	f.backend.getErr = errors.New("timeout")

	session, err := f.mgr.Login(context.Background(), "alice@example.com", "secret123")
	assert.Nil(t, session)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
	assert.False(t, f.mgr.State().IsAuthenticated)
	assert.False(t, f.mgr.State().IsLoading)
}

func TestLogin_UnresolvableUserIsNotALogin(t *testing.T) {
	f := newSessionFixture(t)
	f.backend.resolveNil = true

	session, err := f.mgr.Login(context.Background(), "alice@example.com", "secret123")
	require.NoError(t, err)
	assert.Nil(t, session)

	s := f.mgr.State()
	assert.False(t, s.IsAuthenticated)
	assert.Nil(t, s.User)
	assert.False(t, s.IsLoading)
}

func TestLogin_RateLimited(t *testing.T) {
	f := newSessionFixture(t)
	f.backend.createErr = &identity.HTTPError{StatusCode: http.StatusTooManyRequests, Message: "Rate limit for the current endpoint has been exceeded."}

	_, err := f.mgr.Login(context.Background(), "alice@example.com", "secret123")
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestLogout_ClearsStateAndCache(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	_, err := f.mgr.Login(ctx, "alice@example.com", "secret123")
	require.NoError(t, err)
	require.NotNil(t, f.cache.record())

	require.NoError(t, f.mgr.Logout(ctx))

	s := f.mgr.State()
	assert.Nil(t, s.User)
	assert.False(t, s.IsAuthenticated)
	assert.False(t, s.IsLoading)

	rec, err := f.cache.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec, "cache record is gone after logout")

	// The logout answer is authoritative: no backend call within the window.
	getBefore, _, _ := f.backend.calls()
	f.mgr.CheckAuth(ctx, false)
	getAfter, _, _ := f.backend.calls()
	assert.Equal(t, getBefore, getAfter)
	assert.False(t, f.mgr.State().IsAuthenticated)
}

func TestLogout_BackendErrorPropagates(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	_, err := f.mgr.Login(ctx, "alice@example.com", "secret123")
	require.NoError(t, err)

	boom := errors.New("network unreachable")
	f.backend.deleteErr = boom

	err = f.mgr.Logout(ctx)
	require.ErrorIs(t, err, boom)

	s := f.mgr.State()
	assert.False(t, s.IsLoading)
	assert.True(t, s.IsAuthenticated, "server-side session may still exist")
	assert.NotNil(t, f.cache.record())
}

func TestLogout_NoSession(t *testing.T) {
	f := newSessionFixture(t)
	f.backend.deleteErr = &identity.HTTPError{StatusCode: http.StatusUnauthorized, Message: "missing scope"}

	err := f.mgr.Logout(context.Background())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.False(t, f.mgr.State().IsLoading)
}

func TestUpdateName_RefreshesUser(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	_, err := f.mgr.Login(ctx, "alice@example.com", "secret123")
	require.NoError(t, err)

	user, err := f.mgr.UpdateName(ctx, "Alice Nguyen")
	require.NoError(t, err)
	assert.Equal(t, "Alice Nguyen", user.Name)
	assert.Equal(t, "Alice Nguyen", f.mgr.State().User.Name)
	assert.Equal(t, "Alice Nguyen", f.cache.record().User.Name)
}

func TestUpdateName_SignedOut(t *testing.T) {
	f := newSessionFixture(t)

	_, err := f.mgr.UpdateName(context.Background(), "Mallory")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestUpdatePassword(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	_, err := f.mgr.Login(ctx, "alice@example.com", "secret123")
	require.NoError(t, err)

	_, err = f.mgr.UpdatePassword(ctx, "newsecret1", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	user, err := f.mgr.UpdatePassword(ctx, "newsecret1", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
}

func TestState_IsLoadingWhileInFlight(t *testing.T) {
	f := newSessionFixture(t)
	f.backend.signedIn = true
	f.mgr.CheckAuth(context.Background(), false)
	require.False(t, f.mgr.State().IsLoading)

	f.backend.block = make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.mgr.RefreshUser(context.Background())
	}()

	require.Eventually(t, func() bool { return f.mgr.State().IsLoading }, time.Second, time.Millisecond)
	close(f.backend.block)
	<-done

	s := f.mgr.State()
	assert.False(t, s.IsLoading)
	assert.True(t, s.IsAuthenticated)
}

func TestState_ReturnsCopy(t *testing.T) {
	f := newSessionFixture(t)
	f.backend.signedIn = true
	f.backend.user.Prefs = map[string]any{"lang": "vi"}
	f.mgr.CheckAuth(context.Background(), false)

	s := f.mgr.State()
	s.User.Name = "changed"
	s.User.Prefs["lang"] = "en"

	again := f.mgr.State()
	assert.Equal(t, "Alice", again.User.Name)
	assert.Equal(t, "vi", again.User.Prefs["lang"])
}

func TestSessionManager_ConcurrentOperations(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch i % 4 {
			case 0:
				_, _ = f.mgr.Login(ctx, "alice@example.com", "secret123")
			case 1:
				_ = f.mgr.Logout(ctx)
			case 2:
				f.mgr.RefreshUser(ctx)
			default:
				_ = f.mgr.State()
			}
		}()
	}
	wg.Wait()

	s := f.mgr.State()
	assert.False(t, s.IsLoading)
	assert.Equal(t, s.User != nil, s.IsAuthenticated)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "authenticated", OutcomeAuthenticated.String())
	assert.Equal(t, "anonymous", OutcomeAnonymous.String())
	assert.Equal(t, "backend_error", OutcomeBackendError.String())
	assert.Equal(t, "unknown", Outcome(0).String())
}

func TestSignIn_CredentialBindsClient(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	session, token, err := f.mgr.SignIn(ctx, "alice@example.com", "secret123")
	require.NoError(t, err)
	require.NotNil(t, session)
	require.Len(t, token, 64)

	assert.True(t, f.mgr.Authorize(token))
	assert.False(t, f.mgr.Authorize(""))
	assert.False(t, f.mgr.Authorize("not-the-token"))

	_, second, err := f.mgr.SignIn(ctx, "alice@example.com", "secret123")
	require.NoError(t, err)
	assert.NotEqual(t, token, second)
	assert.False(t, f.mgr.Authorize(token), "a new sign-in replaces the old credential")
	assert.True(t, f.mgr.Authorize(second))

	_, err = f.mgr.Login(ctx, "alice@example.com", "secret123")
	require.NoError(t, err)
	assert.False(t, f.mgr.Authorize(second), "plain Login hands out no credential")
}

func TestSignIn_FailureIssuesNoCredential(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	_, token, err := f.mgr.SignIn(ctx, "alice@example.com", "secret123")
	require.NoError(t, err)

	_, bad, err := f.mgr.SignIn(ctx, "alice@example.com", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Empty(t, bad)
	assert.False(t, f.mgr.Authorize(token))
}

func TestAuthorize_RevokedOnLogout(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	_, token, err := f.mgr.SignIn(ctx, "alice@example.com", "secret123")
	require.NoError(t, err)
	require.NoError(t, f.mgr.Logout(ctx))
	assert.False(t, f.mgr.Authorize(token))

	// Signing in on the backend elsewhere does not revive the old credential.
	f.backend.signedIn = true
	f.mgr.RefreshUser(ctx)
	require.True(t, f.mgr.State().IsAuthenticated)
	assert.False(t, f.mgr.Authorize(token))
}

func TestAuthorize_SurvivesBackendOutage(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	_, token, err := f.mgr.SignIn(ctx, "alice@example.com", "secret123")
	require.NoError(t, err)

	f.backend.getErr = errors.New("dial tcp: connection refused")
	f.mgr.RefreshUser(ctx)
	assert.False(t, f.mgr.Authorize(token), "anonymous while the backend is unreachable")

	f.backend.getErr = nil
	f.mgr.CheckAuth(ctx, false)
	assert.True(t, f.mgr.Authorize(token))
}

func TestAuthorize_RevokedWhenBackendReportsNoSession(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	_, token, err := f.mgr.SignIn(ctx, "alice@example.com", "secret123")
	require.NoError(t, err)

	f.backend.signedIn = false
	f.mgr.RefreshUser(ctx)
	f.backend.signedIn = true
	f.mgr.RefreshUser(ctx)

	require.True(t, f.mgr.State().IsAuthenticated)
	assert.False(t, f.mgr.Authorize(token))
}

func TestAuthorize_ExpiresWithSession(t *testing.T) {
	f := newSessionFixture(t)
	f.backend.expiresAt = f.clock.Now().Add(time.Hour)

	_, token, err := f.mgr.SignIn(context.Background(), "alice@example.com", "secret123")
	require.NoError(t, err)
	assert.True(t, f.mgr.Authorize(token))

	f.clock.Advance(time.Hour)
	assert.False(t, f.mgr.Authorize(token))
}
