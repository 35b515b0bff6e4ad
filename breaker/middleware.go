package breaker

import (
	"context"

	"github.com/Keksclan/actionmw"
	"github.com/Keksclan/actionmw/contextx"
)

// callKey identifies one breaker's bookkeeping in a call.
type callKey struct{ b *Breaker }

// per-call phases
const (
	admitted = iota + 1
	settled
)

// Middleware returns a declaration that puts b in front of every matching
// action. The before stage rejects calls with ErrOpen while the breaker is
// open. Each admitted call then counts exactly once: as a success when it
// reaches the breaker's after handler, or as a failure when it reaches the
// error stage first. A handler that fails after the breaker's after handler
// does not turn a recorded success into a failure, and calls rejected before
// the breaker admitted them are not counted at all.
//
// The error handler passes the error through unchanged, so error handlers
// registered later still see it.
//
// Set Filter on the result to scope the breaker to some action types:
//
//	mw := breaker.Middleware(b)
//	mw.Filter = filter.Prefix("payments.")
//	e.Use(mw)
func Middleware(b *Breaker) actionmw.Stages {
	key := callKey{b}
	return actionmw.Stages{
		Before: []actionmw.Handler{func(ctx context.Context, inv actionmw.Invocation) (any, error) {
			if !b.Allow() {
				return nil, ErrOpen
			}
			if c := contextx.CallFromContext(ctx); c != nil {
				c.Store(key, admitted)
			}
			return inv.Payload, nil
		}},
		After: []actionmw.Handler{func(ctx context.Context, inv actionmw.Invocation) (any, error) {
			if settle(ctx, key) {
				b.OnSuccess()
			}
			return inv.Payload, nil
		}},
		Error: []actionmw.Handler{func(ctx context.Context, inv actionmw.Invocation) (any, error) {
			if err, ok := inv.Payload.(error); ok && settle(ctx, key) {
				b.Record(err)
			}
			return inv.Payload, nil
		}},
	}
}

// settle marks the call's outcome as recorded and reports whether the caller
// should record it. Outside a pipeline every outcome is recorded.
func settle(ctx context.Context, key callKey) bool {
	c := contextx.CallFromContext(ctx)
	if c == nil {
		return true
	}
	return c.CompareAndSwap(key, admitted, settled)
}
