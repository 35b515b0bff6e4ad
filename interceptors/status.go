package interceptors

import (
	"context"
	"errors"

	"github.com/Keksclan/actionmw"
	"github.com/Keksclan/actionmw/breaker"
	"github.com/Keksclan/actionmw/ratelimit"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Status maps a pipeline error to a gRPC status error. Errors that already
// carry a status keep it. Panic details never reach the client.
func Status(err error) error {
	if err == nil {
		return nil
	}
	var pe *actionmw.PanicError
	if errors.As(err, &pe) {
		return status.Error(codes.Internal, "internal server error")
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, ratelimit.ErrRateLimited):
		return status.Error(codes.ResourceExhausted, "rate limit exceeded")
	case errors.Is(err, breaker.ErrOpen):
		return status.Error(codes.Unavailable, "service unavailable")
	case errors.Is(err, actionmw.ErrBeforeContract):
		return status.Error(codes.Internal, "internal server error")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	}
	return status.Error(codes.Unknown, err.Error())
}
