// Package interceptors runs gRPC server calls through an actionmw engine.
//
// Every RPC becomes one action: the service name is the action's model, the
// method name its name, so "/pkg.Orders/Create" has type "pkg.Orders.Create"
// and filters written against action types apply to RPCs unchanged.
//
//	e := actionmw.New(actionmw.DefaultOptions()...)
//	e.Use(ratelimit.Middleware(limiter))
//	srv := grpc.NewServer(
//		grpc.ChainUnaryInterceptor(interceptors.Unary(e)),
//		grpc.ChainStreamInterceptor(interceptors.Stream(e)),
//	)
package interceptors

import (
	"context"
	"strings"

	"github.com/Keksclan/actionmw"
	"github.com/Keksclan/actionmw/contextx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// RequestIDHeader is the metadata key a caller-supplied request ID is read
// from.
const RequestIDHeader = "x-request-id"

// Option configures the interceptors.
type Option func(*options)

type options struct {
	propagator propagation.TextMapPropagator
	toStatus   func(error) error
}

// WithPropagator extracts trace context from incoming metadata with p
// instead of the global propagator.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(o *options) {
		o.propagator = p
	}
}

// WithErrorMapper replaces Status as the mapping from pipeline errors to
// the error returned to the client.
func WithErrorMapper(fn func(error) error) Option {
	return func(o *options) {
		o.toStatus = fn
	}
}

func newOptions(opts []Option) *options {
	o := &options{toStatus: Status}
	for _, fn := range opts {
		fn(o)
	}
	if o.propagator == nil {
		o.propagator = otel.GetTextMapPropagator()
	}
	return o
}

// incoming picks up the trace context and request ID the client sent.
func (o *options) incoming(ctx context.Context) context.Context {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx
	}
	ctx = o.propagator.Extract(ctx, metadataCarrier(md))
	if ids := md.Get(RequestIDHeader); len(ids) > 0 && ids[0] != "" && contextx.RequestIDFromContext(ctx) == "" {
		ctx = contextx.WithRequestID(ctx, ids[0])
	}
	return ctx
}

// Unary returns a unary server interceptor that runs each call as an action
// on e. The request is the action's only argument, so before handlers may
// replace it; the response passes through the after stage.
func Unary(e *actionmw.Engine, opts ...Option) grpc.UnaryServerInterceptor {
	o := newOptions(opts)
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		service, method := splitFullMethod(info.FullMethod)
		resp, err := e.ExecAction(o.incoming(ctx), actionmw.Action{
			Fn: func(ctx context.Context, _ any, args ...any) (any, error) {
				var in any
				if len(args) > 0 {
					in = args[0]
				}
				return handler(ctx, in)
			},
			Args:    []any{req},
			Name:    method,
			Context: service,
		})
		if err != nil {
			return nil, o.toStatus(err)
		}
		return resp, nil
	}
}

// Stream returns a stream server interceptor that runs each call as an
// action on e. The server stream is the action's only argument and the
// action resolves with nil; the handler sees the pipeline's context through
// the stream.
func Stream(e *actionmw.Engine, opts ...Option) grpc.StreamServerInterceptor {
	o := newOptions(opts)
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		service, method := splitFullMethod(info.FullMethod)
		_, err := e.ExecAction(o.incoming(ss.Context()), actionmw.Action{
			Fn: func(ctx context.Context, _ any, args ...any) (any, error) {
				stream := ss
				if len(args) > 0 {
					if s, ok := args[0].(grpc.ServerStream); ok {
						stream = s
					}
				}
				return nil, handler(srv, &wrappedStream{ServerStream: stream, ctx: ctx})
			},
			Args:    []any{ss},
			Name:    method,
			Context: service,
		})
		if err != nil {
			return o.toStatus(err)
		}
		return nil
	}
}

// splitFullMethod splits "/service/method" into ("service", "method").
func splitFullMethod(fullMethod string) (string, string) {
	fullMethod = strings.TrimPrefix(fullMethod, "/")
	service, method, ok := strings.Cut(fullMethod, "/")
	if !ok {
		return fullMethod, ""
	}
	return service, method
}

// metadataCarrier adapts gRPC metadata to propagation.TextMapCarrier.
type metadataCarrier metadata.MD

func (mc metadataCarrier) Get(key string) string {
	vals := metadata.MD(mc).Get(key)
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

func (mc metadataCarrier) Set(key, value string) {
	metadata.MD(mc).Set(key, value)
}

func (mc metadataCarrier) Keys() []string {
	keys := make([]string, 0, len(mc))
	for k := range mc {
		keys = append(keys, k)
	}
	return keys
}

// wrappedStream overrides Context() to carry the pipeline's context.
type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedStream) Context() context.Context { return w.ctx }
