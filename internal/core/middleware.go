package core

import (
	"context"
	"slices"
	"sync"
)

// Entry is the token returned for a single registration. Handlers are not
// comparable in Go, so removal is keyed on the Entry instead of the function.
type Entry struct {
	h Handler
}

// Queue is an ordered list of handlers for one stage. Writers replace the
// backing slice instead of editing it in place, so a composition that is
// already running keeps iterating the snapshot it started with.
type Queue struct {
	mu      sync.RWMutex
	entries []*Entry
}

// Use appends handlers in order and returns one Entry per registered
// handler. Nil handlers are skipped.
func (q *Queue) Use(hs ...Handler) []*Entry {
	added := make([]*Entry, 0, len(hs))
	for _, h := range hs {
		if h != nil {
			added = append(added, &Entry{h: h})
		}
	}
	if len(added) == 0 {
		return nil
	}

	q.mu.Lock()
	q.entries = append(slices.Clip(q.entries), added...)
	q.mu.Unlock()
	return added
}

// Remove drops the given registrations. Entries that are not (or no longer)
// in the queue are ignored.
func (q *Queue) Remove(tokens ...*Entry) {
	if len(tokens) == 0 {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	kept := make([]*Entry, 0, len(q.entries))
	for _, e := range q.entries {
		if !slices.Contains(tokens, e) {
			kept = append(kept, e)
		}
	}
	q.entries = kept
}

// Len reports the number of registered handlers.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.entries)
}

// Compose runs inv through every handler front to back, feeding each
// handler's result into the next one's Payload. An empty queue resolves with
// inv.Payload. The first handler error aborts the fold.
func (q *Queue) Compose(ctx context.Context, inv Invocation) (any, error) {
	q.mu.RLock()
	entries := q.entries
	q.mu.RUnlock()

	for _, e := range entries {
		out, err := e.h(ctx, inv)
		if err != nil {
			return nil, err
		}
		inv.Payload = out
	}
	return inv.Payload, nil
}
