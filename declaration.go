package actionmw

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"sort"

	"github.com/Keksclan/actionmw/filter"
	"github.com/Keksclan/actionmw/internal/core"
)

// Declaration is a middleware set accepted by [Engine.Use]. The interface is
// sealed: the only implementations are [Func], [Stages] and [Map].
type Declaration interface {
	stages() (Stages, error)
}

// Func is the single-handler form of a declaration. It registers the
// handler in the after stage.
type Func Handler

func (f Func) stages() (Stages, error) {
	return Stages{After: []Handler{Handler(f)}}, nil
}

// Stages is the stage-map form of a declaration. Empty stages are skipped.
// Filter, when set, restricts every handler in the declaration to matching
// invocations; see [filter.From] for the accepted values.
type Stages struct {
	Before []Handler
	After  []Handler
	Error  []Handler
	Filter any
}

func (s Stages) stages() (Stages, error) {
	return s, nil
}

func (s Stages) of(stage Stage) []Handler {
	switch stage {
	case Before:
		return s.Before
	case After:
		return s.After
	case Error:
		return s.Error
	}
	return nil
}

// Map is the untyped stage-map form, for declarations assembled at runtime.
// Keys must be "before", "after", "error" or "filter". Stage values may be a
// Handler, a func with the Handler signature, a Func, or a slice of
// handlers; nil and empty values are dropped.
type Map map[string]any

func (m Map) stages() (Stages, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var s Stages
	for _, k := range keys {
		v := m[k]
		if k == "filter" {
			s.Filter = v
			continue
		}
		stage, ok := core.ParseStage(k)
		if !ok {
			return Stages{}, &ConfigError{Key: k}
		}
		hs, err := handlersOf(v)
		if err != nil {
			return Stages{}, &ConfigError{Key: k, Reason: err.Error()}
		}
		switch stage {
		case Before:
			s.Before = hs
		case After:
			s.After = hs
		case Error:
			s.Error = hs
		}
	}
	return s, nil
}

func handlersOf(v any) ([]Handler, error) {
	switch h := v.(type) {
	case nil:
		return nil, nil
	case bool:
		if !h {
			return nil, nil
		}
	case Handler:
		return []Handler{h}, nil
	case Func:
		return []Handler{Handler(h)}, nil
	case func(context.Context, Invocation) (any, error):
		return []Handler{h}, nil
	case []Handler:
		return h, nil
	case []Func:
		hs := make([]Handler, len(h))
		for i, f := range h {
			hs[i] = Handler(f)
		}
		return hs, nil
	case []any:
		hs := make([]Handler, 0, len(h))
		for _, item := range h {
			one, err := handlersOf(item)
			if err != nil {
				return nil, err
			}
			if len(one) > 1 {
				return nil, fmt.Errorf("nested handler lists are not allowed")
			}
			hs = append(hs, one...)
		}
		return hs, nil
	}
	return nil, fmt.Errorf("expected a handler or a list of handlers, got %T", v)
}

// Declare converts an arbitrary value into a Declaration. It accepts every
// Declaration implementation, *Stages, a bare handler func and
// map[string]any; anything else yields a *TypeError naming the value.
func Declare(v any) (Declaration, error) {
	switch d := v.(type) {
	case *Stages:
		if d == nil {
			return nil, &TypeError{Value: v}
		}
		return *d, nil
	case Declaration:
		if isNil(d) {
			return nil, &TypeError{Value: v}
		}
		return d, nil
	case Handler:
		if d == nil {
			return nil, &TypeError{Value: v}
		}
		return Func(d), nil
	case func(context.Context, Invocation) (any, error):
		if d == nil {
			return nil, &TypeError{Value: v}
		}
		return Func(d), nil
	case map[string]any:
		return Map(d), nil
	}
	return nil, &TypeError{Value: v}
}

func isNil(d Declaration) bool {
	switch v := d.(type) {
	case Func:
		return v == nil
	case Map:
		return v == nil
	case *Stages:
		return v == nil
	}
	return false
}

// Record is the canonical form of a declaration: every stage present maps to
// a non-empty, ordered list of handlers with any filter already applied.
type Record map[Stage][]Handler

// Normalize turns d into a fresh Record. The declaration itself is never
// modified. Stages without handlers are dropped. If the declaration carries
// a filter, each handler is wrapped in a guard that passes the payload
// through untouched for invocations the filter rejects.
func Normalize(d Declaration) (Record, error) {
	if d == nil || isNil(d) {
		return nil, &TypeError{Value: d}
	}
	s, err := d.stages()
	if err != nil {
		return nil, err
	}

	rec := make(Record, len(core.Stages))
	for _, stage := range core.Stages {
		hs := slices.DeleteFunc(slices.Clone(s.of(stage)), func(h Handler) bool { return h == nil })
		if len(hs) > 0 {
			rec[stage] = hs
		}
	}

	if !hasFilter(s.Filter) {
		return rec, nil
	}
	pred, err := filter.From(s.Filter)
	if err != nil {
		return nil, err
	}
	for stage, hs := range rec {
		for i, h := range hs {
			hs[i] = guard(pred, h)
		}
		rec[stage] = hs
	}
	return rec, nil
}

// hasFilter reports whether v names a filter at all. Falsy values (nil,
// false, "", zero numbers) and nil patterns or predicates mean "no filter",
// the same as leaving the key out.
func hasFilter(v any) bool {
	switch f := v.(type) {
	case nil:
		return false
	case bool:
		return f
	case string:
		return f != ""
	case int:
		return f != 0
	case int64:
		return f != 0
	case int32:
		return f != 0
	case uint:
		return f != 0
	case uint64:
		return f != 0
	case float64:
		return f != 0
	case float32:
		return f != 0
	case *regexp.Regexp:
		return f != nil
	case filter.Predicate:
		return f != nil
	case func(context.Context, Invocation) bool:
		return f != nil
	case *filter.GroupBuilder:
		return f != nil
	}
	return true
}

// guard skips h for invocations pred rejects, returning the payload as is so
// the rest of the stage sees no change.
func guard(pred filter.Predicate, h Handler) Handler {
	return func(ctx context.Context, inv Invocation) (any, error) {
		if !pred(ctx, inv) {
			return inv.Payload, nil
		}
		return h(ctx, inv)
	}
}
