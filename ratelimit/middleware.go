package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Keksclan/actionmw"
	"github.com/Keksclan/actionmw/filter"
)

// ErrRateLimited is returned by the before stage when the applicable limiter
// has no tokens left.
var ErrRateLimited = errors.New("ratelimit: rate limit exceeded")

// Rule allows Rate calls per Window for one group of action types.
type Rule struct {
	Rate   int
	Window time.Duration
}

func (r Rule) limiter() *Limiter {
	return NewLimiter(float64(r.Rate)/r.Window.Seconds(), r.Rate)
}

// Option configures Middleware.
type Option func(*state)

// WithGroups routes action types through per-group limiters. The resolver
// picks the group name for an action type and rules maps group names to
// their limits. Types that resolve to a group without a rule, or to no group
// at all, use the global limiter.
func WithGroups(r *filter.Resolver, rules map[string]Rule) Option {
	return func(s *state) {
		s.resolver = r
		s.rules = rules
	}
}

// WithWait makes the before stage block until a token is available instead
// of failing immediately. The wait honours the call's context.
func WithWait() Option {
	return func(s *state) {
		s.wait = true
	}
}

// state holds the global limiter, an optional group resolver, and a cache of
// per-group limiters created lazily from the resolved rules.
type state struct {
	global   *Limiter
	resolver *filter.Resolver
	rules    map[string]Rule
	wait     bool

	mu     sync.Mutex
	groups map[string]*Limiter
}

// limiterFor returns the per-group limiter when actionType resolves to a
// group with a rule, otherwise the global limiter. It may return nil when no
// global limiter was configured.
func (s *state) limiterFor(actionType string) *Limiter {
	if s.resolver == nil {
		return s.global
	}
	name, ok := s.resolver.Resolve(actionType)
	if !ok {
		return s.global
	}
	rule, ok := s.rules[name]
	if !ok || rule.Rate <= 0 || rule.Window <= 0 {
		return s.global
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.groups[name]; ok {
		return l
	}
	l := rule.limiter()
	s.groups[name] = l
	return l
}

// Middleware returns a before-stage declaration that rejects calls with
// ErrRateLimited once the applicable limiter is exhausted. global may be nil
// when only grouped limits should apply.
func Middleware(global *Limiter, opts ...Option) actionmw.Stages {
	s := &state{global: global, groups: make(map[string]*Limiter)}
	for _, o := range opts {
		o(s)
	}

	return actionmw.Stages{
		Before: []actionmw.Handler{func(ctx context.Context, inv actionmw.Invocation) (any, error) {
			l := s.limiterFor(inv.Type)
			if l == nil {
				return inv.Payload, nil
			}
			if s.wait {
				if err := l.Wait(ctx); err != nil {
					return nil, errors.Join(ErrRateLimited, err)
				}
				return inv.Payload, nil
			}
			if !l.Allow() {
				return nil, ErrRateLimited
			}
			return inv.Payload, nil
		}},
	}
}
