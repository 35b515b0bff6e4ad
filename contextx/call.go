package contextx

import (
	"context"
	"sync"
)

// Call is scratch state shared by every stage of a single pipeline run.
// Middleware that spans stages keeps its per-call bookkeeping here, keyed by
// a value of its own unexported type.
type Call struct {
	mu   sync.Mutex
	vals map[any]any
}

// WithCall attaches a fresh Call to ctx. Nested runs get their own Call and
// do not see the outer one.
func WithCall(ctx context.Context) (context.Context, *Call) {
	c := &Call{}
	return context.WithValue(ctx, callKey, c), c
}

// CallFromContext returns the Call of the running pipeline, or nil.
func CallFromContext(ctx context.Context) *Call {
	c, _ := ctx.Value(callKey).(*Call)
	return c
}

// Load returns the value stored under key.
func (c *Call) Load(key any) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.vals[key]
	return v, ok
}

// Store sets the value for key.
func (c *Call) Store(key, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vals == nil {
		c.vals = make(map[any]any)
	}
	c.vals[key] = v
}

// CompareAndSwap stores next under key if the current value equals old. A
// missing key compares equal to nil.
func (c *Call) CompareAndSwap(key, old, next any) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vals[key] != old {
		return false
	}
	if c.vals == nil {
		c.vals = make(map[any]any)
	}
	c.vals[key] = next
	return true
}
