// Package metrics exports Prometheus instruments for action pipelines.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels recorded per call.
const (
	OutcomeOK        = "ok"
	OutcomeRecovered = "recovered"
	OutcomeFailed    = "failed"
)

// Collector records per-action counters and latencies. All methods are safe
// for concurrent use.
type Collector struct {
	actions  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	stages   *prometheus.CounterVec
	gatherer prometheus.Gatherer
}

// NewCollector creates a Collector and registers its instruments with reg.
// A nil reg uses a fresh private registry, which is what tests usually want.
// Registering twice against the same registry reuses the existing
// instruments.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	var gatherer prometheus.Gatherer
	if reg == nil {
		r := prometheus.NewRegistry()
		reg, gatherer = r, r
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	} else {
		gatherer = prometheus.DefaultGatherer
	}

	c := &Collector{
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "actionmw",
			Name:      "actions_total",
			Help:      "Number of executed actions by type and outcome.",
		}, []string{"type", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "actionmw",
			Name:      "action_duration_seconds",
			Help:      "Wall time of a full pipeline run, stages included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
		stages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "actionmw",
			Name:      "stage_runs_total",
			Help:      "Number of stage compositions by stage.",
		}, []string{"stage"}),
		gatherer: gatherer,
	}

	var err error
	c.actions, err = register(reg, c.actions)
	if err != nil {
		return nil, err
	}
	c.duration, err = register(reg, c.duration)
	if err != nil {
		return nil, err
	}
	c.stages, err = register(reg, c.stages)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// ObserveAction records one finished call.
func (c *Collector) ObserveAction(actionType, outcome string, d time.Duration) {
	c.actions.WithLabelValues(actionType, outcome).Inc()
	c.duration.WithLabelValues(actionType).Observe(d.Seconds())
}

// ObserveStage records one stage composition.
func (c *Collector) ObserveStage(stage string) {
	c.stages.WithLabelValues(stage).Inc()
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// Handler returns an http.Handler that serves the default Prometheus
// registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
