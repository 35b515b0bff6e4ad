package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_ObserveAction(t *testing.T) {
	c, err := NewCollector(nil)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	c.ObserveAction("calc.double", OutcomeOK, 5*time.Millisecond)
	c.ObserveAction("calc.double", OutcomeOK, 5*time.Millisecond)
	c.ObserveAction("calc.double", OutcomeFailed, time.Millisecond)

	if got := testutil.ToFloat64(c.actions.WithLabelValues("calc.double", OutcomeOK)); got != 2 {
		t.Fatalf("ok count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.actions.WithLabelValues("calc.double", OutcomeFailed)); got != 1 {
		t.Fatalf("failed count = %v, want 1", got)
	}
}

func TestCollector_ObserveStage(t *testing.T) {
	c, err := NewCollector(nil)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	c.ObserveStage("before")
	if got := testutil.ToFloat64(c.stages.WithLabelValues("before")); got != 1 {
		t.Fatalf("before count = %v, want 1", got)
	}
}

func TestNewCollector_ReusesRegisteredInstruments(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("first NewCollector: %v", err)
	}
	b, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("second NewCollector: %v", err)
	}

	a.ObserveAction("x.y", OutcomeOK, 0)
	if got := testutil.ToFloat64(b.actions.WithLabelValues("x.y", OutcomeOK)); got != 1 {
		t.Fatalf("collectors do not share instruments: %v", got)
	}
}

func TestCollector_Handler(t *testing.T) {
	c, err := NewCollector(nil)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	c.ObserveAction("calc.double", OutcomeRecovered, time.Millisecond)

	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `actionmw_actions_total{outcome="recovered",type="calc.double"} 1`) {
		t.Fatalf("metric missing from output:\n%s", rr.Body.String())
	}
}
