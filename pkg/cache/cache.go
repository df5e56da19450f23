// Package cache provides pluggable byte-level caching for registry responses.
//
// Three backends are available:
//   - [FileCache]: per-user cache directory, used by the CLI
//   - [RedisCache]: shared cache for CI fleets packaging many crates
//   - [NullCache]: no-op backend for tests and --no-cache runs
//
// All backends store opaque byte payloads with a per-entry TTL. Keys are
// hashed before hitting the backend, so callers may use arbitrary strings
// (URLs, crate@version pairs) without worrying about key syntax.
package cache

import (
	"context"
	"time"
)

// Cache is the backend interface for cached registry data.
//
// Get returns (data, true, nil) on a hit, (nil, false, nil) on a miss.
// Expired entries are treated as misses. A TTL of 0 means no expiration.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}
