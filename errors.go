package actionmw

import (
	"errors"
	"fmt"
	"strings"
)

// stageKeys lists the keys a Map declaration may use.
var stageKeys = []string{"before", "after", "error", "filter"}

// ErrBeforeContract is returned when the before stage resolves to anything
// other than an argument list.
var ErrBeforeContract = errors.New("actionmw: pre middleware must return arguments")

// ErrNilAction is returned by ExecAction when Action.Fn is nil.
var ErrNilAction = errors.New("actionmw: action function is nil")

// ConfigError reports an invalid middleware declaration. It is returned
// synchronously by Use and nothing from the offending call is registered.
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("actionmw: middleware key %q: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("actionmw: invalid middleware key %q, must be one of %q", e.Key, strings.Join(stageKeys, ", "))
}

// TypeError reports a value that cannot be used as a middleware declaration.
type TypeError struct {
	Value any
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("actionmw: middleware must be a function or stage map but got %T(%v)", e.Value, e.Value)
}

// PanicError wraps a value recovered from a panicking handler or action when
// the engine runs with recovery enabled.
type PanicError struct {
	Stage string
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("actionmw: panic in %s: %v", e.Stage, e.Value)
}

// Unwrap exposes the panic value when it was itself an error.
func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// contractError is the concrete error behind ErrBeforeContract. It is
// unexported so the engine can tell a genuine contract violation from a
// handler that happens to return ErrBeforeContract.
type contractError struct {
	got any
}

func (e *contractError) Error() string {
	return fmt.Sprintf("%s, got %T", ErrBeforeContract.Error(), e.got)
}

func (e *contractError) Is(target error) bool {
	return target == ErrBeforeContract
}
