// Package actionmw intercepts named actions with before, after and error
// middleware.
//
// An action is any function identified by a model (the object or namespace
// it belongs to) and a name. The [Engine] runs it through three stages:
//
//	before → action → after
//	   └──────┴────────┴──→ error
//
// Before handlers receive and return the action's argument list, after
// handlers receive and return the action's result, and error handlers
// receive the failure and either recover with a replacement value or let
// the error propagate.
//
// Middleware is registered with [Engine.Use], which returns a function that
// undoes exactly that registration:
//
//	e := actionmw.New(actionmw.DefaultOptions()...)
//	remove, err := e.Use(actionmw.Stages{
//		Before: []actionmw.Handler{validate},
//		After:  []actionmw.Handler{audit},
//		Filter: "orders.create",
//	})
//	defer remove()
//
//	out, err := e.ExecAction(ctx, actionmw.Action{
//		Fn:      createOrder,
//		Args:    []any{order},
//		Name:    "create",
//		Context: "orders",
//	})
//
// Filters restrict a declaration to a subset of action types
// ("<model>.<name>") and may be a literal string, a *regexp.Regexp, a
// predicate function or any rule from package filter.
package actionmw

import "github.com/Keksclan/actionmw/internal/core"

// Invocation is the value every stage handler receives.
type Invocation = core.Invocation

// Handler is a single stage handler. Its result becomes the next handler's
// Payload; a non-nil error fails the stage.
type Handler = core.Handler

// Stage names a pipeline position.
type Stage = core.Stage

const (
	Before = core.Before
	After  = core.After
	Error  = core.Error
)
