// Package core holds the stage queues that back the composition engine and
// the invocation types every handler sees. It has no dependencies on the rest
// of the module so that filters and the engine can both build on it.
package core

import "context"

// Stage identifies one of the three pipeline positions a handler can occupy.
type Stage int

const (
	Before Stage = iota
	After
	Error
)

// Stages lists every stage in registration order.
var Stages = [...]Stage{Before, After, Error}

func (s Stage) String() string {
	switch s {
	case Before:
		return "before"
	case After:
		return "after"
	case Error:
		return "error"
	}
	return "unknown"
}

// ParseStage maps a stage name back to its Stage. ok is false for anything
// other than "before", "after" or "error".
func ParseStage(name string) (s Stage, ok bool) {
	switch name {
	case "before":
		return Before, true
	case "after":
		return After, true
	case "error":
		return Error, true
	}
	return 0, false
}

// Invocation is the value threaded through a stage. It is rebuilt for every
// stage of a call; only Payload changes from one handler to the next.
type Invocation struct {
	// Action is "<model>/<name>".
	Action string
	// Model is the string form of the action's target.
	Model string
	// Type is "<model>.<name>" and is what filters match against.
	Type string
	// Payload is the argument list in the before stage, the action result in
	// the after stage and the failure in the error stage.
	Payload any
	// Pos is the stage currently running.
	Pos Stage
	// Target is the action's target as supplied by the caller.
	Target any
}

// Handler is a single stage handler. Its return value becomes the Payload
// seen by the next handler in the same stage. A non-nil error stops the
// stage.
type Handler func(ctx context.Context, inv Invocation) (any, error)
