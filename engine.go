package actionmw

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Keksclan/actionmw/contextx"
	"github.com/Keksclan/actionmw/internal/core"
	"github.com/Keksclan/actionmw/metrics"
	"github.com/Keksclan/actionmw/tracing"
	"go.opentelemetry.io/otel/trace"
)

// ActionFunc is the function an engine wraps. target is the action's
// Context value and args the argument list produced by the before stage.
type ActionFunc func(ctx context.Context, target any, args ...any) (any, error)

// Action describes one call to ExecAction.
type Action struct {
	// Fn is the action to run. Required.
	Fn ActionFunc
	// Args is the initial argument list; nil is treated as empty.
	Args []any
	// Name is the action's name within its model.
	Name string
	// Context is the model the action belongs to. Its string form is used to
	// build the invocation's Model, Action and Type fields, and the value
	// itself is passed to Fn as target.
	Context any
}

// Engine holds three stage queues and runs actions through them. It is safe
// for concurrent use: registrations may interleave with running calls, and
// each stage iterates the handlers registered when it starts.
//
//	e := actionmw.New(actionmw.WithRecovery())
//	remove, _ := e.Use(actionmw.Func(audit))
//	defer remove()
//	out, err := e.ExecAction(ctx, actionmw.Action{Fn: fn, Name: "double", Context: "calc"})
type Engine struct {
	stages core.Registry
	cfg    config
	tracer trace.Tracer
}

// New creates an Engine with empty before, after and error stages.
func New(opts ...Option) *Engine {
	var cfg config
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Engine{
		cfg:    cfg,
		tracer: cfg.tracing.Tracer(),
	}
}

// Use registers the declarations in order and returns a function that
// removes exactly those registrations. Every declaration is normalized
// before anything is registered, so a *ConfigError or *TypeError leaves the
// engine untouched. Registering the same handler twice runs it twice.
func (e *Engine) Use(decls ...Declaration) (remove func(), err error) {
	records := make([]Record, 0, len(decls))
	for i, d := range decls {
		rec, err := Normalize(d)
		if err != nil {
			return nil, fmt.Errorf("middleware %d: %w", i, err)
		}
		records = append(records, rec)
	}

	var undo []func()
	for _, rec := range records {
		for _, stage := range core.Stages {
			hs, ok := rec[stage]
			if !ok {
				continue
			}
			q := e.stages.Queue(stage)
			tokens := q.Use(hs...)
			undo = append(undo, func() { q.Remove(tokens...) })
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for _, u := range undo {
				u()
			}
		})
	}, nil
}

// MustUse is like Use but panics on an invalid declaration.
func (e *Engine) MustUse(decls ...Declaration) func() {
	remove, err := e.Use(decls...)
	if err != nil {
		panic(err)
	}
	return remove
}

// Stats reports how many handlers each stage holds.
type Stats struct {
	Before int
	After  int
	Error  int
}

// Stats returns the current registration counts.
func (e *Engine) Stats() Stats {
	return Stats{
		Before: e.stages.Len(Before),
		After:  e.stages.Len(After),
		Error:  e.stages.Len(Error),
	}
}

// descriptor is the part of the invocation shared by every stage of a call.
type descriptor struct {
	action string
	model  string
	typ    string
	name   string
	target any
}

func describe(target any, name string) descriptor {
	model := fmt.Sprint(target)
	return descriptor{
		action: model + "/" + name,
		model:  model,
		typ:    model + "." + name,
		name:   name,
		target: target,
	}
}

func (d descriptor) invocation(stage Stage, payload any) Invocation {
	return Invocation{
		Action:  d.action,
		Model:   d.model,
		Type:    d.typ,
		Payload: payload,
		Pos:     stage,
		Target:  d.target,
	}
}

// ExecAction runs a through the pipeline:
//
//  1. the before stage folds the argument list, which must stay a []any;
//  2. a.Fn is called with a.Context as target and the resulting arguments;
//  3. the after stage folds the result, which becomes the return value.
//
// A failure in any of these steps runs the error stage with the error as
// payload. If that stage settles on a non-error value the call succeeds with
// it; otherwise the error is returned. A before stage that does not return
// an argument list fails with ErrBeforeContract without running the error
// stage, unless the engine was built WithRoutedContractErrors.
//
// Each stage runs exactly once per call and nothing is retried.
func (e *Engine) ExecAction(ctx context.Context, a Action) (result any, err error) {
	if a.Fn == nil {
		return nil, ErrNilAction
	}

	d := describe(a.Context, a.Name)
	ctx, reqID := contextx.EnsureRequestID(ctx)
	ctx, _ = contextx.WithCall(ctx)
	ctx, span := tracing.Start(ctx, e.tracer, tracing.Action{
		Name: d.name, Model: d.model, Type: d.typ, RequestID: reqID,
	})
	start := time.Now()
	outcome := metrics.OutcomeOK

	defer func() {
		if err != nil {
			outcome = metrics.OutcomeFailed
			e.cfg.logger.LogAttrs(ctx, slog.LevelWarn, "action failed",
				slog.String("type", d.typ),
				slog.String("request_id", reqID),
				slog.String("error", err.Error()),
			)
		}
		tracing.End(span, outcome, err)
		if e.cfg.metrics != nil {
			e.cfg.metrics.ObserveAction(d.typ, outcome, time.Since(start))
		}
	}()

	out, runErr := e.run(ctx, span, d, a)
	if runErr == nil {
		return out, nil
	}

	var contract *contractError
	if errors.As(runErr, &contract) && !e.cfg.routeContractErrors {
		return nil, runErr
	}

	payload, stageErr := e.compose(ctx, span, d, Error, runErr)
	result, err = settle(payload, stageErr).Unwrap()
	if err == nil {
		outcome = metrics.OutcomeRecovered
	}
	return result, err
}

// run covers the Before → Invoke → After edge of the state machine.
func (e *Engine) run(ctx context.Context, span trace.Span, d descriptor, a Action) (any, error) {
	args := a.Args
	if args == nil {
		args = []any{}
	}

	payload, err := e.compose(ctx, span, d, Before, args)
	if err != nil {
		return nil, err
	}
	resolved, ok := payload.([]any)
	if !ok {
		return nil, &contractError{got: payload}
	}

	res, err := e.invoke(ctx, a, resolved)
	if err != nil {
		return nil, err
	}

	return e.compose(ctx, span, d, After, res)
}

func (e *Engine) invoke(ctx context.Context, a Action, args []any) (res any, err error) {
	if e.cfg.recovery {
		defer func() {
			if r := recover(); r != nil {
				res, err = nil, &PanicError{Stage: "action", Value: r}
			}
		}()
	}
	return a.Fn(ctx, a.Context, args...)
}

func (e *Engine) compose(ctx context.Context, span trace.Span, d descriptor, stage Stage, payload any) (out any, err error) {
	q := e.stages.Queue(stage)
	defer func() {
		tracing.Stage(span, stage.String(), q.Len(), err)
		if e.cfg.metrics != nil {
			e.cfg.metrics.ObserveStage(stage.String())
		}
		e.cfg.logger.LogAttrs(ctx, slog.LevelDebug, "stage composed",
			slog.String("stage", stage.String()),
			slog.String("type", d.typ),
			slog.Bool("failed", err != nil),
		)
	}()
	if e.cfg.recovery {
		defer func() {
			if r := recover(); r != nil {
				out, err = nil, &PanicError{Stage: stage.String(), Value: r}
			}
		}()
	}

	return q.Compose(contextx.WithStage(ctx, stage.String()), d.invocation(stage, payload))
}
