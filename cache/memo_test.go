package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Keksclan/actionmw"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func TestMemo_ServesRepeatedCallsFromCache(t *testing.T) {
	c := mustNewL1(t)
	e := actionmw.New()

	calls := 0
	square := func(_ context.Context, _ any, args ...any) (any, error) {
		calls++
		n := args[0].(int)
		return n * n, nil
	}
	fn := Memo{Cache: c, TTL: time.Minute, Codec: JSON[int]()}.Wrap(square)

	for range 3 {
		got, err := e.ExecAction(t.Context(), actionmw.Action{Fn: fn, Args: []any{7}, Name: "square", Context: "calc"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != 49 {
			t.Fatalf("expected 49, got %v", got)
		}
	}
	if calls != 1 {
		t.Fatalf("action ran %d times, want 1", calls)
	}

	if _, err := e.ExecAction(t.Context(), actionmw.Action{Fn: fn, Args: []any{8}, Name: "square", Context: "calc"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Fatalf("different arguments must miss, calls = %d", calls)
	}
}

func TestMemo_FailuresAreNotCached(t *testing.T) {
	c := mustNewL1(t)
	boom := errors.New("boom")

	calls := 0
	fn := Memo{Cache: c, TTL: time.Minute}.Wrap(func(context.Context, any, ...any) (any, error) {
		calls++
		return nil, boom
	})

	for range 2 {
		if _, err := fn(t.Context(), "svc", 1); !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestMemo_NamespaceSeparatesActions(t *testing.T) {
	c := mustNewL1(t)

	mk := func(ns, out string) actionmw.ActionFunc {
		return Memo{Cache: c, Codec: JSON[string](), Namespace: ns}.Wrap(func(context.Context, any, ...any) (any, error) {
			return out, nil
		})
	}
	a, b := mk("users.get", "a"), mk("users.find", "b")

	if v, _ := a(t.Context(), "users", 1); v != "a" {
		t.Fatalf("a returned %v", v)
	}
	if v, _ := b(t.Context(), "users", 1); v != "b" {
		t.Fatalf("b returned %v, namespaces collided", v)
	}
}

func TestMemo_ProtoCodec(t *testing.T) {
	c := mustNewL1(t)

	calls := 0
	fn := Memo{
		Cache: c,
		Codec: Proto(func() proto.Message { return &wrapperspb.StringValue{} }),
	}.Wrap(func(_ context.Context, _ any, args ...any) (any, error) {
		calls++
		return wrapperspb.String("user-" + args[0].(string)), nil
	})

	var last any
	for range 2 {
		v, err := fn(t.Context(), "users", "42")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		last = v
	}
	msg, ok := last.(*wrapperspb.StringValue)
	if !ok || msg.GetValue() != "user-42" {
		t.Fatalf("unexpected cached message %v", last)
	}
	if calls != 1 {
		t.Fatalf("action ran %d times, want 1", calls)
	}
}

func TestMemo_KeyError(t *testing.T) {
	c := mustNewL1(t)
	keyErr := errors.New("unkeyable")

	fn := Memo{Cache: c, Key: func(any, []any) (string, error) { return "", keyErr }}.Wrap(
		func(context.Context, any, ...any) (any, error) {
			t.Fatal("action must not run without a key")
			return nil, nil
		})

	if _, err := fn(t.Context(), "svc"); !errors.Is(err, keyErr) {
		t.Fatalf("expected key error, got %v", err)
	}
}

func TestProtoCodec_RejectsNonMessages(t *testing.T) {
	if _, err := Proto(func() proto.Message { return &wrapperspb.StringValue{} }).Marshal(3); err == nil {
		t.Fatal("expected error for non-proto value")
	}
}
