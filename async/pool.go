// Package async runs actions on a bounded goroutine pool and hands back
// futures for their results.
package async

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Keksclan/actionmw"
	"github.com/panjf2000/ants/v2"
)

// ErrPoolFull is returned by Submit on a non-blocking pool with no idle
// worker.
var ErrPoolFull = errors.New("async: pool is full")

// ErrPoolClosed is returned by Submit after Release.
var ErrPoolClosed = errors.New("async: pool is closed")

// Option configures a Pool.
type Option func(*poolConfig)

type poolConfig struct {
	nonblocking bool
	expiry      time.Duration
}

// WithNonblocking makes Submit fail with ErrPoolFull instead of waiting for
// a free worker.
func WithNonblocking() Option {
	return func(c *poolConfig) {
		c.nonblocking = true
	}
}

// WithIdleExpiry sets how long an idle worker is kept before it exits.
func WithIdleExpiry(d time.Duration) Option {
	return func(c *poolConfig) {
		c.expiry = d
	}
}

// Pool executes actions through an engine on at most size goroutines.
type Pool struct {
	engine *actionmw.Engine
	pool   *ants.Pool
}

// NewPool creates a pool running actions on e.
func NewPool(e *actionmw.Engine, size int, opts ...Option) (*Pool, error) {
	var cfg poolConfig
	for _, o := range opts {
		o(&cfg)
	}

	antsOpts := []ants.Option{ants.WithNonblocking(cfg.nonblocking)}
	if cfg.expiry > 0 {
		antsOpts = append(antsOpts, ants.WithExpiryDuration(cfg.expiry))
	}
	p, err := ants.NewPool(size, antsOpts...)
	if err != nil {
		return nil, fmt.Errorf("async: create pool: %w", err)
	}
	return &Pool{engine: e, pool: p}, nil
}

// Submit schedules a on the pool. The returned future settles once the
// whole pipeline has run. ctx is passed to ExecAction unchanged; cancelling
// it does not unschedule work that has already been accepted.
func (p *Pool) Submit(ctx context.Context, a actionmw.Action) (*Future, error) {
	f := newFuture()
	err := p.pool.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				f.settle(nil, &actionmw.PanicError{Stage: "async", Value: r})
			}
		}()
		f.settle(p.engine.ExecAction(ctx, a))
	})
	switch {
	case errors.Is(err, ants.ErrPoolOverload):
		return nil, ErrPoolFull
	case errors.Is(err, ants.ErrPoolClosed):
		return nil, ErrPoolClosed
	case err != nil:
		return nil, err
	}
	return f, nil
}

// Running reports how many workers are busy.
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Release stops accepting work and waits up to timeout for running actions
// to finish.
func (p *Pool) Release(timeout time.Duration) error {
	return p.pool.ReleaseTimeout(timeout)
}
