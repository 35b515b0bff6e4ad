// Package tracing provides OpenTelemetry spans for action pipelines. Spans
// are only recorded when a [Config] is wired in via the engine's
// WithOpenTelemetry option.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/Keksclan/actionmw/tracing"

// Config holds the OpenTelemetry configuration used by the engine.
type Config struct {
	// TracerProvider supplies the Tracer used to create spans. When nil the
	// global otel.GetTracerProvider() is used.
	TracerProvider trace.TracerProvider

	// Propagators extracts trace context from carriers such as gRPC
	// metadata. When nil the global otel.GetTextMapPropagator() is used.
	Propagators propagation.TextMapPropagator
}

// Tracer returns a configured [trace.Tracer]. A nil Config yields a no-op
// tracer so callers never have to branch on whether tracing is enabled.
func (c *Config) Tracer() trace.Tracer {
	if c == nil {
		return noop.NewTracerProvider().Tracer(instrumentationName)
	}
	tp := c.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(instrumentationName)
}

// Propagator returns the configured propagator (or global default).
func (c *Config) Propagator() propagation.TextMapPropagator {
	if c != nil && c.Propagators != nil {
		return c.Propagators
	}
	return otel.GetTextMapPropagator()
}

// Action describes the call a span covers.
type Action struct {
	Name      string
	Model     string
	Type      string
	RequestID string
}

// Start opens the span for one action call. The span is named after the
// action type.
func Start(ctx context.Context, tracer trace.Tracer, a Action) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, a.Type, trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(
		attribute.String("action.name", a.Name),
		attribute.String("action.model", a.Model),
		attribute.String("action.type", a.Type),
	)
	if a.RequestID != "" {
		span.SetAttributes(attribute.String("action.request_id", a.RequestID))
	}
	return ctx, span
}

// Stage records that a pipeline stage finished.
func Stage(span trace.Span, stage string, handlers int, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("stage", stage),
		attribute.Int("stage.handlers", handlers),
	}
	if err != nil {
		attrs = append(attrs, attribute.String("stage.error", err.Error()))
	}
	span.AddEvent("stage."+stage, trace.WithAttributes(attrs...))
}

// End sets the final status and closes the span. outcome is one of "ok",
// "recovered" or "failed".
func End(span trace.Span, outcome string, err error) {
	span.SetAttributes(attribute.String("action.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
