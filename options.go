package actionmw

import (
	"log/slog"

	"github.com/Keksclan/actionmw/metrics"
	"github.com/Keksclan/actionmw/tracing"
)

// Option configures an Engine.
type Option func(*config)

// WithLogger sets the structured logger. Stage runs are logged at debug
// level and failures that escape the error stage at warn level.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithRecovery converts panics raised by handlers or the action into a
// *PanicError. Panics before or inside the action are routed to the error
// stage like any other failure; a panic inside the error stage fails the
// call.
func WithRecovery() Option {
	return func(c *config) {
		c.recovery = true
	}
}

// WithRoutedContractErrors sends a before stage that does not return an
// argument list through the error stage instead of failing the call
// directly.
func WithRoutedContractErrors() Option {
	return func(c *config) {
		c.routeContractErrors = true
	}
}

// WithOpenTelemetry enables one span per ExecAction call, with an event per
// stage.
func WithOpenTelemetry(cfg tracing.Config) Option {
	return func(c *config) {
		c.tracing = &cfg
	}
}

// WithMetrics records per-action outcomes, latencies and stage runs.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *config) {
		c.metrics = m
	}
}
