package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// Tiered reads through an ordered list of layers, fastest first. A hit in a
// lower layer is copied into every layer above it. Writes go to all layers,
// slowest first, so a reader never finds a value in L1 that L2 lacks.
type Tiered struct {
	layers []Layer
	loads  singleflight.Group
}

// NewTiered creates a cache over the given layers, typically an *L1 followed
// by an *L2.
func NewTiered(layers ...Layer) *Tiered {
	return &Tiered{layers: layers}
}

// Get implements Layer. Values promoted from a lower layer are stored
// without a TTL since the original one is unknown.
func (t *Tiered) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return t.lookup(ctx, key, 0)
}

func (t *Tiered) lookup(ctx context.Context, key string, promoteTTL time.Duration) ([]byte, bool, error) {
	for i, layer := range t.layers {
		v, ok, err := layer.Get(ctx, key)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}
		for _, upper := range t.layers[:i] {
			_ = upper.Set(ctx, key, v, promoteTTL)
		}
		return v, true, nil
	}
	return nil, false, nil
}

// Set implements Layer. The first layer error is returned after every layer
// has been written.
func (t *Tiered) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	var first error
	for i := len(t.layers) - 1; i >= 0; i-- {
		if err := t.layers[i].Set(ctx, key, val, ttl); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// GetOrSet implements Cache.
func (t *Tiered) GetOrSet(ctx context.Context, key string, ttl time.Duration, loader Loader) ([]byte, error) {
	if v, ok, err := t.lookup(ctx, key, ttl); err == nil && ok {
		return v, nil
	}
	return loadOnce(ctx, &t.loads, key, loader, func(val []byte) {
		_ = t.Set(ctx, key, val, ttl)
	})
}
