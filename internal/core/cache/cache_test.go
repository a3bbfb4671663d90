package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duynhne/travel-portal/internal/core/domain"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestSessionCache_RoundTrip(t *testing.T) {
	mr, client := newTestRedis(t)
	c := NewSessionCache(client, "test:", 5*time.Minute)
	ctx := context.Background()

	rec, err := c.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, rec, "empty store is a miss")

	want := domain.CacheRecord{
		User:               &domain.User{ID: "u1", Name: "Alice", Email: "alice@example.com"},
		IsAuthenticated:    true,
		LastFetchTimestamp: 1_700_000_000_000,
	}
	require.NoError(t, c.Save(ctx, want))

	assert.True(t, mr.Exists("test:auth_cache"))
	assert.Equal(t, 5*time.Minute, mr.TTL("test:auth_cache"))

	raw, err := mr.Get("test:auth_cache")
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"user":{"id":"u1","name":"Alice","email":"alice@example.com"},"isAuthenticated":true,"lastFetchTimestamp":1700000000000}`,
		raw)

	got, err := c.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)

	require.NoError(t, c.Delete(ctx))
	got, err = c.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, c.Delete(ctx), "deleting a missing record is fine")
}

func TestSessionCache_AnonymousRecord(t *testing.T) {
	_, client := newTestRedis(t)
	c := NewSessionCache(client, "", 0)
	ctx := context.Background()

	require.NoError(t, c.Save(ctx, domain.CacheRecord{LastFetchTimestamp: 42}))

	got, err := c.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.User)
	assert.False(t, got.IsAuthenticated)
}

func TestSessionCache_Corrupt(t *testing.T) {
	tests := []struct {
		name string
		blob string
	}{
		{name: "not json", blob: "{oops"},
		{name: "wrong types", blob: `{"user":"alice","isAuthenticated":"yes"}`},
		{name: "inconsistent", blob: `{"user":null,"isAuthenticated":true,"lastFetchTimestamp":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mr, client := newTestRedis(t)
			c := NewSessionCache(client, "", 0)
			require.NoError(t, mr.Set(SessionCacheKey, tt.blob))

			rec, err := c.Load(context.Background())
			assert.Nil(t, rec)
			assert.ErrorIs(t, err, domain.ErrCacheCorrupt)
		})
	}
}

func TestSessionCache_Unavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	c := NewSessionCache(client, "", 0)
	mr.Close()

	_, err := c.Load(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrCacheCorrupt)
}

func TestContentCache(t *testing.T) {
	mr, client := newTestRedis(t)
	c := NewContentCache(client, "p:", time.Minute)
	ctx := context.Background()

	_, ok, err := c.GetList(ctx, domain.CollectionFAQs)
	require.NoError(t, err)
	assert.False(t, ok)

	docs := []domain.Document{
		{ID: "a", Collection: domain.CollectionFAQs, Data: json.RawMessage(`{"q":"Visa?"}`), Position: 1},
	}
	gen, err := c.Generation(ctx, domain.CollectionFAQs)
	require.NoError(t, err)
	assert.Zero(t, gen)

	stored, err := c.SetList(ctx, domain.CollectionFAQs, gen, docs)
	require.NoError(t, err)
	assert.True(t, stored)
	assert.True(t, mr.Exists("p:content:faqs"))
	assert.InDelta(t, time.Minute.Seconds(), mr.TTL("p:content:faqs").Seconds(), 1)

	got, ok, err := c.GetList(ctx, domain.CollectionFAQs)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
	assert.JSONEq(t, `{"q":"Visa?"}`, string(got[0].Data))

	require.NoError(t, c.Invalidate(ctx, domain.CollectionFAQs))
	_, ok, err = c.GetList(ctx, domain.CollectionFAQs)
	require.NoError(t, err)
	assert.False(t, ok)

	gen, err = c.Generation(ctx, domain.CollectionFAQs)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)
}

func TestContentCache_InvalidatedListingIsNotStored(t *testing.T) {
	mr, client := newTestRedis(t)
	c := NewContentCache(client, "", 0)
	ctx := context.Background()

	before, err := c.Generation(ctx, domain.CollectionServices)
	require.NoError(t, err)

	// A mutation lands while the listing is being loaded.
	require.NoError(t, c.Invalidate(ctx, domain.CollectionServices))

	stored, err := c.SetList(ctx, domain.CollectionServices, before, []domain.Document{})
	require.NoError(t, err)
	assert.False(t, stored)
	assert.False(t, mr.Exists("content:services"))

	current, err := c.Generation(ctx, domain.CollectionServices)
	require.NoError(t, err)
	stored, err = c.SetList(ctx, domain.CollectionServices, current, []domain.Document{})
	require.NoError(t, err)
	assert.True(t, stored)
	assert.True(t, mr.Exists("content:services"))
	assert.Zero(t, mr.TTL("content:services"), "zero ttl keeps the listing until invalidated")
}

func TestContentCache_CorruptEntryIsDropped(t *testing.T) {
	mr, client := newTestRedis(t)
	c := NewContentCache(client, "", 0)
	require.NoError(t, mr.Set("content:regions", "not-json"))

	_, ok, err := c.GetList(context.Background(), domain.CollectionRegions)
	require.Error(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists("content:regions"))
}
