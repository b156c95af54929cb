// Handles TTL-bounded caching of fetched payloads
package cache

import (
	"regexp"
	"time"
)

// Store interface for cache backends
type Store interface {
	// retrieves the cached payload if it exists and is not expired.
	// returns nil, nil when not found or expired
	Get(key string) ([]byte, error)
	// stores a payload under key; ttl <= 0 uses the backend default
	Set(key string, value []byte, ttl time.Duration) error
	// unconditionally removes a single key
	Delete(key string) error
	// removes all entries
	Clear() error
	// removes every entry whose key contains the given substring,
	// returning how many were removed
	InvalidatePattern(pattern string) (int, error)
	// removes every entry whose key matches the regexp,
	// returning how many were removed
	InvalidateRegexp(re *regexp.Regexp) (int, error)
	// number of live entries
	Len() int
	// maximum number of entries, 0 when the backend is unbounded
	MaxSize() int
	// initializes the backend (e.g., creates necessary directories)
	Init() error
}
