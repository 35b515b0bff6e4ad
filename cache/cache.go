// Package cache memoizes action results. It offers an in-process L1 backed
// by ristretto, a Redis L2, a Tiered cache that reads through both, and
// Memo, which wraps an action function so repeated calls with the same key
// are served from cache.
package cache

import (
	"bytes"
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// Layer is a single storage level.
type Layer interface {
	// Get retrieves a value by key. The boolean reports a hit.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores val under key. A zero TTL means no automatic expiry.
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
}

// Cache is a Layer that can also load missing values.
type Cache interface {
	Layer

	// GetOrSet returns the cached value for key. On a miss it calls loader,
	// stores the result and returns it. Concurrent misses for the same key
	// share a single loader call.
	GetOrSet(ctx context.Context, key string, ttl time.Duration, loader func(context.Context) ([]byte, error)) ([]byte, error)
}

// Loader produces the value for a missing key.
type Loader = func(context.Context) ([]byte, error)

// loadOnce runs loader for key at most once across concurrent callers and
// stores a successful result through store. Every caller gets its own copy
// of the bytes.
func loadOnce(ctx context.Context, g *singleflight.Group, key string, loader Loader, store func([]byte)) ([]byte, error) {
	v, err, _ := g.Do(key, func() (any, error) {
		val, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		store(val)
		return val, nil
	})
	if err != nil {
		return nil, err
	}
	return bytes.Clone(v.([]byte)), nil
}
