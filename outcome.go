package actionmw

// Outcome is the settled result of the error stage: either a recovered value
// or an error to propagate.
type Outcome struct {
	value any
	err   error
}

// Recovered builds an outcome that resolves the call with v.
func Recovered(v any) Outcome {
	return Outcome{value: v}
}

// Failed builds an outcome that fails the call with err.
func Failed(err error) Outcome {
	return Outcome{err: err}
}

// Err returns the propagated error, or nil for a recovered outcome.
func (o Outcome) Err() error {
	return o.err
}

// Value returns the recovered value.
func (o Outcome) Value() any {
	return o.value
}

// Unwrap returns the outcome as the (value, error) pair ExecAction hands
// back.
func (o Outcome) Unwrap() (any, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.value, nil
}

// settle classifies the error stage's fold once, at the boundary. A handler
// error escalates. So does a payload that is still an error, which covers
// an empty error stage and handlers that pass the failure through. Anything
// else is a replacement value.
func settle(payload any, err error) Outcome {
	if err != nil {
		return Failed(err)
	}
	if out, ok := payload.(Outcome); ok {
		return out
	}
	if perr, ok := payload.(error); ok && perr != nil {
		return Failed(perr)
	}
	return Recovered(payload)
}
