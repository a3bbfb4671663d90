// Package cache provides Redis-backed stores for the session cache record
// and the content query cache.
//
// Both stores are best-effort from the caller's point of view: callers treat
// any error as a cache miss and fall back to the authoritative source.
package cache
