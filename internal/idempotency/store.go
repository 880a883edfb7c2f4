// Package idempotency provides a TTL-bounded store of completed
// responses keyed by client-supplied idempotency keys.
package idempotency

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// DefaultTTL is how long a stored response stays replayable.
const DefaultTTL = time.Hour

// Store caches the serialized bytes of successful responses so a
// retried request with the same key replays the original response
// byte for byte.
type Store struct {
	cache *cache.Cache
}

// NewStore creates a store whose entries expire after ttl. The
// backing cache runs a janitor that evicts expired entries; expired
// entries are never returned even before the janitor runs.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		cache: cache.New(ttl, ttl*2),
	}
}

// Get returns the stored response bytes for key, if present and not
// expired.
func (s *Store) Get(key string) ([]byte, bool) {
	val, found := s.cache.Get(key)
	if !found {
		return nil, false
	}
	body, ok := val.([]byte)
	if !ok {
		return nil, false
	}
	return body, true
}

// Set stores the response bytes under key with the store's TTL.
// Empty keys are ignored.
func (s *Store) Set(key string, body []byte) {
	if key == "" {
		return
	}
	s.cache.Set(key, body, cache.DefaultExpiration)
}

// Has reports whether key currently maps to an unexpired entry.
func (s *Store) Has(key string) bool {
	_, found := s.cache.Get(key)
	return found
}

// Len returns the number of live entries, for observability.
func (s *Store) Len() int {
	return s.cache.ItemCount()
}

// Flush drops all entries. Used by tests.
func (s *Store) Flush() {
	s.cache.Flush()
}
