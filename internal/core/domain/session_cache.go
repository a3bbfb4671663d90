package domain

import (
	"context"
	"errors"
	"time"
)

// ErrCacheCorrupt indicates the persisted cache record could not be decoded.
var ErrCacheCorrupt = errors.New("session cache record corrupt")

// CacheRecord is the persisted snapshot of the last known session state.
type CacheRecord struct {
	User               *User `json:"user"`
	IsAuthenticated    bool  `json:"isAuthenticated"`
	LastFetchTimestamp int64 `json:"lastFetchTimestamp"`
}

// FetchedAt returns LastFetchTimestamp as a time.
func (r CacheRecord) FetchedAt() time.Time {
	return time.UnixMilli(r.LastFetchTimestamp)
}

// IsFresh reports whether the record is younger than window at now.
func (r CacheRecord) IsFresh(now time.Time, window time.Duration) bool {
	return now.UnixMilli()-r.LastFetchTimestamp < window.Milliseconds()
}

// SessionCache persists the single cache record of the session manager.
// Implementations live in internal/core/cache.
type SessionCache interface {
	// Load returns the stored record, or (nil, nil) when none exists.
	// An unparsable record yields an error wrapping ErrCacheCorrupt.
	Load(ctx context.Context) (*CacheRecord, error)

	// Save replaces the stored record.
	Save(ctx context.Context, rec CacheRecord) error

	// Delete removes the stored record. Deleting a missing record is not an error.
	Delete(ctx context.Context) error
}
