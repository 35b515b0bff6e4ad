package interceptors

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/Keksclan/actionmw"
	"github.com/Keksclan/actionmw/breaker"
	"github.com/Keksclan/actionmw/contextx"
	"github.com/Keksclan/actionmw/ratelimit"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func codeOf(err error) codes.Code {
	return status.Code(err)
}

func TestSplitFullMethod(t *testing.T) {
	svc, m := splitFullMethod("/pkg.Orders/Create")
	if svc != "pkg.Orders" || m != "Create" {
		t.Fatalf("got %q, %q", svc, m)
	}
	svc, m = splitFullMethod("broken")
	if svc != "broken" || m != "" {
		t.Fatalf("got %q, %q", svc, m)
	}
}

func TestUnary_RunsRPCAsAction(t *testing.T) {
	e := actionmw.New()

	var inv actionmw.Invocation
	e.MustUse(actionmw.Stages{
		Before: []actionmw.Handler{func(_ context.Context, i actionmw.Invocation) (any, error) {
			inv = i
			return []any{i.Payload.([]any)[0].(string) + "!"}, nil
		}},
		After: []actionmw.Handler{func(_ context.Context, i actionmw.Invocation) (any, error) {
			return "<" + i.Payload.(string) + ">", nil
		}},
	})

	ic := Unary(e)
	resp, err := ic(t.Context(), "hi", &grpc.UnaryServerInfo{FullMethod: "/pkg.Echo/Say"},
		func(_ context.Context, req any) (any, error) { return req, nil })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "<hi!>" {
		t.Fatalf("unexpected response %v", resp)
	}
	if inv.Type != "pkg.Echo.Say" || inv.Model != "pkg.Echo" || inv.Action != "pkg.Echo/Say" {
		t.Fatalf("unexpected invocation %+v", inv)
	}
}

func TestUnary_RequestIDFromMetadata(t *testing.T) {
	e := actionmw.New()
	ic := Unary(e)

	ctx := metadata.NewIncomingContext(t.Context(), metadata.Pairs(RequestIDHeader, "req-7"))
	var got string
	_, err := ic(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/svc/M"}, func(ctx context.Context, _ any) (any, error) {
		got = contextx.RequestIDFromContext(ctx)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "req-7" {
		t.Fatalf("request ID = %q, want req-7", got)
	}
}

func TestUnary_ExtractsTraceContext(t *testing.T) {
	e := actionmw.New()
	ic := Unary(e, WithPropagator(propagation.TraceContext{}))

	ctx := metadata.NewIncomingContext(t.Context(), metadata.Pairs(
		"traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
	))
	var sc trace.SpanContext
	_, err := ic(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/svc/M"}, func(ctx context.Context, _ any) (any, error) {
		sc = trace.SpanContextFromContext(ctx)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sc.TraceID().String() != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("trace ID not propagated: %v", sc.TraceID())
	}
}

func TestUnary_PanicBecomesInternal(t *testing.T) {
	e := actionmw.New(actionmw.WithRecovery())
	ic := Unary(e)

	resp, err := ic(t.Context(), "req", &grpc.UnaryServerInfo{FullMethod: "/svc/M"}, func(context.Context, any) (any, error) {
		panic("boom")
	})
	if resp != nil {
		t.Fatalf("expected nil response, got %v", resp)
	}
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Internal || st.Message() != "internal server error" {
		t.Fatalf("expected Internal status, got %v", err)
	}
}

func TestUnary_RateLimitedIsResourceExhausted(t *testing.T) {
	e := actionmw.New()
	e.MustUse(ratelimit.Middleware(ratelimit.NewLimiter(0.001, 1)))
	ic := Unary(e)

	info := &grpc.UnaryServerInfo{FullMethod: "/svc/M"}
	ok := func(context.Context, any) (any, error) { return "ok", nil }

	if _, err := ic(t.Context(), nil, info, ok); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := ic(t.Context(), nil, info, ok); codeOf(err) != codes.ResourceExhausted {
		t.Fatalf("expected ResourceExhausted, got %v", err)
	}
}

func TestUnary_ErrorStageRecoveryReachesClient(t *testing.T) {
	e := actionmw.New()
	e.MustUse(actionmw.Stages{
		Error:  []actionmw.Handler{func(context.Context, actionmw.Invocation) (any, error) { return "fallback", nil }},
		Filter: "svc.M",
	})
	ic := Unary(e)

	resp, err := ic(t.Context(), nil, &grpc.UnaryServerInfo{FullMethod: "/svc/M"}, func(context.Context, any) (any, error) {
		return nil, status.Error(codes.Unavailable, "down")
	})
	if err != nil || resp != "fallback" {
		t.Fatalf("got %v, %v", resp, err)
	}
}

func TestStatus_Mapping(t *testing.T) {
	cases := []struct {
		err  error
		want codes.Code
	}{
		{&actionmw.PanicError{Stage: "action", Value: "x"}, codes.Internal},
		{ratelimit.ErrRateLimited, codes.ResourceExhausted},
		{breaker.ErrOpen, codes.Unavailable},
		{actionmw.ErrBeforeContract, codes.Internal},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{status.Error(codes.NotFound, "nope"), codes.NotFound},
		{errors.New("plain"), codes.Unknown},
	}
	for _, c := range cases {
		if got := codeOf(Status(c.err)); got != c.want {
			t.Fatalf("Status(%v) = %v, want %v", c.err, got, c.want)
		}
	}
	if Status(nil) != nil {
		t.Fatal("Status(nil) must be nil")
	}
}

// fakeStream is a minimal grpc.ServerStream for driving Stream directly.
type fakeStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (f *fakeStream) Context() context.Context { return f.ctx }

func TestStream_RunsRPCAsAction(t *testing.T) {
	e := actionmw.New()

	var types []string
	e.MustUse(actionmw.Stages{Before: []actionmw.Handler{func(_ context.Context, inv actionmw.Invocation) (any, error) {
		types = append(types, inv.Type)
		return inv.Payload, nil
	}}})

	ic := Stream(e)
	ss := &fakeStream{ctx: contextx.WithRequestID(t.Context(), "req-s")}

	var got string
	err := ic(nil, ss, &grpc.StreamServerInfo{FullMethod: "/pkg.Feed/Watch"}, func(_ any, s grpc.ServerStream) error {
		got = contextx.RequestIDFromContext(s.Context())
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "req-s" {
		t.Fatalf("handler saw request ID %q", got)
	}
	if len(types) != 1 || types[0] != "pkg.Feed.Watch" {
		t.Fatalf("unexpected types %v", types)
	}
}

func TestStream_ErrorMapped(t *testing.T) {
	e := actionmw.New()
	b := breaker.New(breaker.Config{FailureThreshold: 1, OpenTimeout: time.Hour})
	b.OnFailure()
	e.MustUse(breaker.Middleware(b))

	ic := Stream(e)
	err := ic(nil, &fakeStream{ctx: t.Context()}, &grpc.StreamServerInfo{FullMethod: "/svc/S"}, func(any, grpc.ServerStream) error {
		t.Fatal("handler must not run while the breaker is open")
		return nil
	})
	if codeOf(err) != codes.Unavailable {
		t.Fatalf("expected Unavailable, got %v", err)
	}
}

func TestUnary_OverRealServer(t *testing.T) {
	e := actionmw.New(actionmw.WithRecovery())

	var seen []string
	e.MustUse(actionmw.Stages{
		Before: []actionmw.Handler{func(_ context.Context, inv actionmw.Invocation) (any, error) {
			seen = append(seen, inv.Type)
			return inv.Payload, nil
		}},
		Filter: "grpc.health.v1.Health.Check",
	})

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(Unary(e)),
		grpc.ChainStreamInterceptor(Stream(e)),
	)
	healthpb.RegisterHealthServer(srv, health.NewServer())
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	resp, err := healthpb.NewHealthClient(conn).Check(t.Context(), &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("unexpected status %v", resp.GetStatus())
	}
	if len(seen) != 1 || seen[0] != "grpc.health.v1.Health.Check" {
		t.Fatalf("unexpected action types %v", seen)
	}
}
