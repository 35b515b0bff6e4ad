package filter

import (
	"context"
	"regexp"
)

// matchKind distinguishes the matching strategies. Lower values win when a
// Resolver has to pick between groups.
type matchKind int

const (
	kindExact  matchKind = iota // highest priority
	kindPrefix                  // medium priority
	kindGlob                    // dotted wildcard segments
	kindRegex                   // lowest priority
)

// Rule is a single matching rule over action types.
type Rule struct {
	kind    matchKind
	pattern string         // used for exact, prefix and glob matches
	re      *regexp.Regexp // used for regex matches
}

// Exact matches an action type equal to pattern.
func Exact(pattern string) Rule {
	return Rule{kind: kindExact, pattern: pattern}
}

// Prefix matches action types starting with pattern.
func Prefix(pattern string) Rule {
	return Rule{kind: kindPrefix, pattern: pattern}
}

// Glob matches dotted action types segment by segment: "*" stands for one
// segment and "**" for any number of trailing segments, so "calc.*" matches
// "calc.double" but not "calc.ops.double", while "calc.**" matches both.
func Glob(pattern string) Rule {
	return Rule{kind: kindGlob, pattern: pattern}
}

// Regex compiles expr into a rule.
func Regex(expr string) (Rule, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return Rule{}, err
	}
	return Pattern(re), nil
}

// MustRegex is like [Regex] but panics if expr does not compile.
func MustRegex(expr string) Rule {
	return Pattern(regexp.MustCompile(expr))
}

// Pattern wraps an already compiled expression.
func Pattern(re *regexp.Regexp) Rule {
	return Rule{kind: kindRegex, pattern: re.String(), re: re}
}

// Match reports whether actionType satisfies the rule.
func (r Rule) Match(actionType string) bool {
	ok, _ := r.match(actionType)
	return ok
}

// Predicate adapts the rule for use as a handler guard.
func (r Rule) Predicate() Predicate {
	return func(_ context.Context, inv Invocation) bool {
		return r.Match(inv.Type)
	}
}

func (r Rule) String() string {
	return r.pattern
}

// GroupBuilder constructs a named group of rules. Groups are resolved by a
// [Resolver] or used directly as a filter.
type GroupBuilder struct {
	name  string
	rules []Rule
}

// Group starts building a new group with the given name.
func Group(name string) *GroupBuilder {
	return &GroupBuilder{name: name}
}

// Name returns the group's name.
func (g *GroupBuilder) Name() string {
	return g.name
}

// Exact adds an exact-match rule for pattern.
func (g *GroupBuilder) Exact(pattern string) *GroupBuilder {
	g.rules = append(g.rules, Exact(pattern))
	return g
}

// Prefix adds a prefix-match rule for pattern.
func (g *GroupBuilder) Prefix(pattern string) *GroupBuilder {
	g.rules = append(g.rules, Prefix(pattern))
	return g
}

// Glob adds a glob rule for pattern.
func (g *GroupBuilder) Glob(pattern string) *GroupBuilder {
	g.rules = append(g.rules, Glob(pattern))
	return g
}

// Regex adds a regex-match rule for pattern.
// The pattern is compiled immediately; an invalid regex will panic.
func (g *GroupBuilder) Regex(pattern string) *GroupBuilder {
	g.rules = append(g.rules, MustRegex(pattern))
	return g
}

// Rule adds an already built rule.
func (g *GroupBuilder) Rule(r Rule) *GroupBuilder {
	g.rules = append(g.rules, r)
	return g
}

// Predicate matches when any rule of the group matches.
func (g *GroupBuilder) Predicate() Predicate {
	return Any(g.rules...)
}
