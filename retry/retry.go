package retry

import (
	"context"
	"slices"
	"time"

	"github.com/Keksclan/actionmw"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Config controls how often and when an action is retried.
type Config struct {
	// MaxAttempts is the total number of calls, the first one included.
	// Values ≤ 1 disable retries.
	MaxAttempts int

	// BaseDelay is the wait before the first retry; each further retry
	// doubles it.
	BaseDelay time.Duration

	// MaxDelay caps the computed wait. Zero means no cap.
	MaxDelay time.Duration

	// Jitter spreads each wait by up to ±Jitter of its value (0.2 = ±20 %).
	Jitter float64

	// RetryCodes lists gRPC status codes worth retrying.
	RetryCodes []codes.Code

	// ShouldRetry, when set, is consulted for errors that RetryCodes does not
	// already accept.
	ShouldRetry func(error) bool

	// OnRetry, when set, is called before each wait with the failed
	// attempt's number (starting at 1) and its error.
	OnRetry func(attempt int, err error)
}

func (cfg Config) retryable(err error) bool {
	if st, ok := status.FromError(err); ok && slices.Contains(cfg.RetryCodes, st.Code()) {
		return true
	}
	return cfg.ShouldRetry != nil && cfg.ShouldRetry(err)
}

// Do calls fn until it succeeds, returns an error that is not retryable, or
// cfg.MaxAttempts calls have been made. ctx is checked while waiting; when it
// ends first, its error is returned.
func Do[T any](ctx context.Context, cfg Config, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	attempts := max(cfg.MaxAttempts, 1)

	for i := 1; ; i++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if i >= attempts || !cfg.retryable(err) {
			return zero, err
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(i, err)
		}

		timer := time.NewTimer(backoff(cfg, i-1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}

// Wrap returns an action function that retries fn according to cfg. Use it
// as Action.Fn so the engine's stages run once around all attempts:
//
//	e.ExecAction(ctx, actionmw.Action{Fn: retry.Wrap(cfg, fetch), Name: "fetch", Context: "users"})
func Wrap(cfg Config, fn actionmw.ActionFunc) actionmw.ActionFunc {
	return func(ctx context.Context, target any, args ...any) (any, error) {
		return Do(ctx, cfg, func(ctx context.Context) (any, error) {
			return fn(ctx, target, args...)
		})
	}
}
