package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/duynhne/travel-portal/internal/core/domain"
)

// RedisContentCache implements domain.ContentCache with one key per collection.
// Each collection also has a generation counter bumped on every invalidation;
// a listing is only stored when the counter still holds the value read
// before the listing was loaded.
type RedisContentCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// setIfGeneration stores ARGV[2] under KEYS[2] only while KEYS[1] equals ARGV[1].
// ARGV[3] is the TTL in milliseconds, 0 for none.
var setIfGeneration = redis.NewScript(`
local current = redis.call('GET', KEYS[1]) or '0'
if current ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[2], ARGV[2])
end
return 1
`)

// NewContentCache creates a RedisContentCache. Keys are prefix+"content:"+collection
// and prefix+"content-gen:"+collection.
func NewContentCache(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisContentCache {
	return &RedisContentCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisContentCache) key(collection string) string {
	return c.prefix + "content:" + collection
}

func (c *RedisContentCache) generationKey(collection string) string {
	return c.prefix + "content-gen:" + collection
}

// Generation returns the invalidation counter of a collection, 0 before the
// first invalidation.
func (c *RedisContentCache) Generation(ctx context.Context, collection string) (int64, error) {
	gen, err := c.client.Get(ctx, c.generationKey(collection)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("get %s: %w", c.generationKey(collection), err)
	}
	return gen, nil
}

// GetList returns the cached listing and whether it was present.
func (c *RedisContentCache) GetList(ctx context.Context, collection string) ([]domain.Document, bool, error) {
	data, err := c.client.Get(ctx, c.key(collection)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("get %s: %w", c.key(collection), err)
	}

	var docs []domain.Document
	if err := json.Unmarshal(data, &docs); err != nil {
		// Unreadable entries are dropped so the next read repopulates them.
		_ = c.client.Del(ctx, c.key(collection)).Err()
		return nil, false, fmt.Errorf("decode %s: %w", c.key(collection), err)
	}
	return docs, true, nil
}

// SetList stores the listing of a collection unless the collection was
// invalidated after generation was read. It reports whether it stored.
func (c *RedisContentCache) SetList(ctx context.Context, collection string, generation int64, docs []domain.Document) (bool, error) {
	data, err := json.Marshal(docs)
	if err != nil {
		return false, fmt.Errorf("encode %s listing: %w", collection, err)
	}

	stored, err := setIfGeneration.Run(ctx, c.client,
		[]string{c.generationKey(collection), c.key(collection)},
		generation, data, c.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("set %s: %w", c.key(collection), err)
	}
	return stored == 1, nil
}

// Invalidate bumps the collection's generation and drops its cached listing.
func (c *RedisContentCache) Invalidate(ctx context.Context, collection string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.generationKey(collection))
		pipe.Del(ctx, c.key(collection))
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate %s: %w", c.key(collection), err)
	}
	return nil
}
