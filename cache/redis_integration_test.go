package cache

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Keksclan/actionmw"
)

// sharedRedis connects to the server named by REDIS_ADDR and skips the test
// when none is configured.
func sharedRedis(t *testing.T, prefix string) *L2 {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("set REDIS_ADDR to run tests against a real Redis")
	}
	l2 := NewL2(addr, "", 0, WithKeyPrefix(prefix))
	t.Cleanup(func() { _ = l2.Close() })
	if err := l2.Ping(t.Context()); err != nil {
		t.Fatalf("ping %s: %v", addr, err)
	}
	return l2
}

// runID keeps keys from earlier runs out of the way.
func runID(t *testing.T) string {
	return fmt.Sprintf("%s-%d", t.Name(), time.Now().UnixNano())
}

// quote is a memoised pricing action that counts how often it really runs.
func quote(c Cache, ns string, runs *atomic.Int32) actionmw.ActionFunc {
	return Memo{Cache: c, TTL: 30 * time.Second, Codec: JSON[float64](), Namespace: ns}.Wrap(
		func(_ context.Context, _ any, args ...any) (any, error) {
			runs.Add(1)
			return float64(len(args[0].(string))) * 1.5, nil
		})
}

func TestMemo_ReplicasShareResultsThroughRedis(t *testing.T) {
	l2 := sharedRedis(t, "actionmw-test:")
	ns := runID(t)

	// Two replicas with private L1s in front of the same Redis.
	var runs atomic.Int32
	replicaA := quote(NewTiered(mustNewL1(t), l2), ns, &runs)
	replicaB := quote(NewTiered(mustNewL1(t), l2), ns, &runs)

	a, err := replicaA(t.Context(), "pricing", "widget")
	if err != nil {
		t.Fatalf("replica A: %v", err)
	}
	b, err := replicaB(t.Context(), "pricing", "widget")
	if err != nil {
		t.Fatalf("replica B: %v", err)
	}
	if a != 9.0 || b != 9.0 {
		t.Fatalf("quotes %v and %v, want 9", a, b)
	}
	if n := runs.Load(); n != 1 {
		t.Fatalf("pricing ran %d times across replicas, want 1", n)
	}
}

func TestMemo_PrefixesKeepTenantsApart(t *testing.T) {
	ns := runID(t)
	var runs atomic.Int32
	tenantA := quote(sharedRedis(t, "tenant-a:"), ns, &runs)
	tenantB := quote(sharedRedis(t, "tenant-b:"), ns, &runs)

	for _, fn := range []actionmw.ActionFunc{tenantA, tenantB, tenantA} {
		if _, err := fn(t.Context(), "pricing", "gadget"); err != nil {
			t.Fatal(err)
		}
	}
	if n := runs.Load(); n != 2 {
		t.Fatalf("pricing ran %d times, want once per tenant", n)
	}
}

func TestMemo_InsideEnginePipelineWithRedis(t *testing.T) {
	l2 := sharedRedis(t, "actionmw-test:")
	var runs atomic.Int32
	fn := quote(NewTiered(mustNewL1(t), l2), runID(t), &runs)

	e := actionmw.New()
	var afterRuns atomic.Int32
	e.MustUse(actionmw.Func(func(_ context.Context, inv actionmw.Invocation) (any, error) {
		afterRuns.Add(1)
		return inv.Payload, nil
	}))

	for range 3 {
		out, err := e.ExecAction(t.Context(), actionmw.Action{Fn: fn, Args: []any{"bolt"}, Name: "quote", Context: "pricing"})
		if err != nil || out != 6.0 {
			t.Fatalf("got %v, %v", out, err)
		}
	}
	if runs.Load() != 1 || afterRuns.Load() != 3 {
		t.Fatalf("action ran %d times and after stage %d times, want 1 and 3", runs.Load(), afterRuns.Load())
	}
}

func TestMemo_UnreachableRedisFallsBackToL1(t *testing.T) {
	down := NewL2("localhost:1", "", 0)
	t.Cleanup(func() { _ = down.Close() })

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()

	var runs atomic.Int32
	fn := quote(NewTiered(mustNewL1(t), down), runID(t), &runs)
	for range 2 {
		out, err := fn(ctx, "pricing", "nut")
		if err != nil {
			t.Fatalf("a dead Redis must not fail the call: %v", err)
		}
		if out != 4.5 {
			t.Fatalf("got %v, want 4.5", out)
		}
	}
	if n := runs.Load(); n != 1 {
		t.Fatalf("pricing ran %d times, want 1 (served from L1)", n)
	}
}
