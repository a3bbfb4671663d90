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

// SessionCacheKey is the well-known key (after the prefix) of the cache record.
const SessionCacheKey = "auth_cache"

// RedisSessionCache implements domain.SessionCache on a single Redis key.
type RedisSessionCache struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// NewSessionCache creates a RedisSessionCache storing its record under
// prefix+SessionCacheKey. A positive ttl lets Redis reclaim records that
// are past the freshness window anyway; zero keeps them until deleted.
func NewSessionCache(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisSessionCache {
	return &RedisSessionCache{
		client: client,
		key:    prefix + SessionCacheKey,
		ttl:    ttl,
	}
}

// Load returns the stored record, or (nil, nil) when none exists.
func (c *RedisSessionCache) Load(ctx context.Context) (*domain.CacheRecord, error) {
	data, err := c.client.Get(ctx, c.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get %s: %w", c.key, err)
	}

	var rec domain.CacheRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w: %v", c.key, domain.ErrCacheCorrupt, err)
	}
	if rec.IsAuthenticated != (rec.User != nil) {
		return nil, fmt.Errorf("decode %s: %w: isAuthenticated disagrees with user", c.key, domain.ErrCacheCorrupt)
	}

	return &rec, nil
}

// Save replaces the stored record.
func (c *RedisSessionCache) Save(ctx context.Context, rec domain.CacheRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode cache record: %w", err)
	}
	if err := c.client.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set %s: %w", c.key, err)
	}
	return nil
}

// Delete removes the stored record.
func (c *RedisSessionCache) Delete(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("del %s: %w", c.key, err)
	}
	return nil
}
