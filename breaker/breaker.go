// Package breaker guards actions with a circuit breaker.
//
// A breaker starts Closed and counts consecutive failed calls. Once the
// count reaches Config.FailureThreshold it trips Open and rejects every call
// until Config.OpenTimeout has passed. It then lets probe calls through in
// HalfOpen: Config.HalfOpenMaxSuccess consecutive successes close it again,
// a single failure reopens it.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned for calls rejected by an open breaker.
var ErrOpen = errors.New("breaker: circuit open")

// State is a breaker position.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	}
	return "unknown"
}

// Config holds the breaker parameters.
type Config struct {
	// FailureThreshold is the number of consecutive failures in Closed
	// before the breaker trips. Values below 1 are treated as 1.
	FailureThreshold int

	// OpenTimeout is how long the breaker rejects calls before probing.
	OpenTimeout time.Duration

	// HalfOpenMaxSuccess is the number of consecutive successful probes that
	// close the breaker. Values below 1 are treated as 1.
	HalfOpenMaxSuccess int

	// IsFailure decides whether an error counts against the breaker. When
	// nil every error except ErrOpen counts.
	IsFailure func(error) bool

	// OnStateChange, when set, is called after every transition. It runs
	// with the breaker's lock released.
	OnStateChange func(from, to State)
}

// Breaker is safe for concurrent use.
type Breaker struct {
	mu  sync.Mutex
	cfg Config

	state     State
	failures  int
	successes int
	openedAt  time.Time
	nowFunc   func() time.Time
}

// New creates a closed Breaker.
func New(cfg Config) *Breaker {
	cfg.FailureThreshold = max(cfg.FailureThreshold, 1)
	cfg.HalfOpenMaxSuccess = max(cfg.HalfOpenMaxSuccess, 1)
	return &Breaker{cfg: cfg, nowFunc: time.Now}
}

// State returns the current position. An Open breaker whose timeout has
// elapsed reports HalfOpen.
func (b *Breaker) State() State {
	b.mu.Lock()
	s, change := b.refresh()
	b.mu.Unlock()
	b.notify(change)
	return s
}

// Allow reports whether a call may go through.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	s, change := b.refresh()
	ok := s == Closed || (s == HalfOpen && b.successes < b.cfg.HalfOpenMaxSuccess)
	b.mu.Unlock()
	b.notify(change)
	return ok
}

// OnSuccess records a successful call.
func (b *Breaker) OnSuccess() {
	b.mu.Lock()
	var change *transition
	switch b.state {
	case Closed:
		b.failures = 0
	case HalfOpen:
		b.successes++
		if b.successes >= b.cfg.HalfOpenMaxSuccess {
			change = b.moveTo(Closed)
		}
	}
	b.mu.Unlock()
	b.notify(change)
}

// OnFailure records a failed call.
func (b *Breaker) OnFailure() {
	b.mu.Lock()
	var change *transition
	switch b.state {
	case Closed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			change = b.moveTo(Open)
		}
	case HalfOpen:
		change = b.moveTo(Open)
	}
	b.mu.Unlock()
	b.notify(change)
}

// Record feeds the result of one call into the breaker.
func (b *Breaker) Record(err error) {
	if err == nil {
		b.OnSuccess()
		return
	}
	if b.isFailure(err) {
		b.OnFailure()
	}
}

func (b *Breaker) isFailure(err error) bool {
	if errors.Is(err, ErrOpen) {
		return false
	}
	if b.cfg.IsFailure != nil {
		return b.cfg.IsFailure(err)
	}
	return true
}

type transition struct{ from, to State }

// refresh moves Open to HalfOpen once the timeout has elapsed. b.mu must be
// held.
func (b *Breaker) refresh() (State, *transition) {
	var change *transition
	if b.state == Open && b.nowFunc().Sub(b.openedAt) >= b.cfg.OpenTimeout {
		change = b.moveTo(HalfOpen)
	}
	return b.state, change
}

// moveTo switches state and resets the counters. b.mu must be held.
func (b *Breaker) moveTo(s State) *transition {
	t := &transition{from: b.state, to: s}
	b.state = s
	b.failures = 0
	b.successes = 0
	if s == Open {
		b.openedAt = b.nowFunc()
	}
	return t
}

func (b *Breaker) notify(t *transition) {
	if t != nil && b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(t.from, t.to)
	}
}
