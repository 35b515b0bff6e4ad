// Package filter builds the predicates that decide whether a middleware
// handler applies to an invocation. Predicates are matched against the
// invocation's action type ("<model>.<name>") unless the caller supplies a
// predicate function, which sees the full invocation.
package filter

import (
	"context"
	"fmt"
	"regexp"

	"github.com/Keksclan/actionmw/internal/core"
)

// Invocation is the value a predicate is evaluated against.
type Invocation = core.Invocation

// Predicate reports whether a guarded handler should run. It receives the
// same arguments as the handler it guards.
type Predicate func(ctx context.Context, inv Invocation) bool

// TypeError is returned by [From] for values that cannot be turned into a
// predicate.
type TypeError struct {
	Value any
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("filter must be a pattern, string, or function, got %T", e.Value)
}

// From converts a filter classification value into a Predicate:
//
//   - *regexp.Regexp tests the action type against the pattern
//   - string matches the action type exactly
//   - Predicate (or the equivalent func literal) is used as is
//   - Rule and *GroupBuilder use their own matching rules
//
// Any other value yields a *TypeError.
func From(v any) (Predicate, error) {
	switch f := v.(type) {
	case *regexp.Regexp:
		if f == nil {
			return nil, &TypeError{Value: v}
		}
		return Pattern(f).Predicate(), nil
	case string:
		return Exact(f).Predicate(), nil
	case Predicate:
		if f == nil {
			return nil, &TypeError{Value: v}
		}
		return f, nil
	case func(context.Context, Invocation) bool:
		if f == nil {
			return nil, &TypeError{Value: v}
		}
		return f, nil
	case Rule:
		return f.Predicate(), nil
	case *GroupBuilder:
		if f == nil {
			return nil, &TypeError{Value: v}
		}
		return f.Predicate(), nil
	}
	return nil, &TypeError{Value: v}
}

// Any returns a predicate that matches when at least one rule matches.
func Any(rules ...Rule) Predicate {
	return func(_ context.Context, inv Invocation) bool {
		for i := range rules {
			if ok, _ := rules[i].match(inv.Type); ok {
				return true
			}
		}
		return false
	}
}

// Not inverts p.
func Not(p Predicate) Predicate {
	return func(ctx context.Context, inv Invocation) bool {
		return !p(ctx, inv)
	}
}
