package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Keksclan/actionmw"
	"github.com/Keksclan/actionmw/async"
	"github.com/Keksclan/actionmw/breaker"
	"github.com/Keksclan/actionmw/cache"
	"github.com/Keksclan/actionmw/filter"
	"github.com/Keksclan/actionmw/metrics"
	"github.com/Keksclan/actionmw/ratelimit"
	"github.com/Keksclan/actionmw/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Stack is everything Build assembles from a Config. Optional parts are
// nil when their section is disabled.
type Stack struct {
	Engine  *actionmw.Engine
	Logger  *slog.Logger
	Metrics *metrics.Collector
	Breaker *breaker.Breaker
	Cache   cache.Cache
	Pool    *async.Pool

	closers []func(context.Context) error
}

// Logger builds the slog logger described by c.Log, writing to w.
func (c *Config) Logger(w io.Writer) (*slog.Logger, error) {
	lvl, err := c.logLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// timeoutOf converts ctx's deadline into the timeout the pool release
// expects. Without a deadline the pool gets a few seconds.
func timeoutOf(ctx context.Context) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		return max(time.Until(dl), 0)
	}
	return 5 * time.Second
}

// Build creates an engine configured by c and registers the rate-limit and
// breaker middleware it enables. Logs and stdout spans go to out. reg
// receives the metrics; nil means a private registry.
func (c *Config) Build(out io.Writer, reg prometheus.Registerer) (_ *Stack, err error) {
	logger, err := c.Logger(out)
	if err != nil {
		return nil, err
	}
	s := &Stack{Logger: logger}
	defer func() {
		if err != nil {
			_ = s.Close(context.Background())
		}
	}()

	opts := []actionmw.Option{actionmw.WithLogger(logger)}
	if c.Recovery {
		opts = append(opts, actionmw.WithRecovery())
	}
	if c.RouteContractErrors {
		opts = append(opts, actionmw.WithRoutedContractErrors())
	}

	if c.Tracing.Enabled {
		tc, err := s.tracing(c.Tracing, out)
		if err != nil {
			return nil, err
		}
		opts = append(opts, actionmw.WithOpenTelemetry(tc))
	}

	if c.Metrics.Enabled {
		m, err := metrics.NewCollector(reg)
		if err != nil {
			return nil, fmt.Errorf("config: metrics: %w", err)
		}
		s.Metrics = m
		opts = append(opts, actionmw.WithMetrics(m))
	}

	s.Engine = actionmw.New(opts...)

	mw, ok, err := c.RateLimit.middleware()
	if err != nil {
		return nil, err
	}
	if ok {
		if _, err := s.Engine.Use(mw); err != nil {
			return nil, err
		}
	}

	if c.Breaker.Enabled {
		s.Breaker = breaker.New(breaker.Config{
			FailureThreshold:   c.Breaker.FailureThreshold,
			OpenTimeout:        c.Breaker.OpenTimeout,
			HalfOpenMaxSuccess: c.Breaker.HalfOpenMaxSuccess,
			OnStateChange: func(from, to breaker.State) {
				logger.Info("breaker state changed", slog.String("from", from.String()), slog.String("to", to.String()))
			},
		})
		mw := breaker.Middleware(s.Breaker)
		if c.Breaker.Filter != "" {
			mw.Filter = filter.Prefix(c.Breaker.Filter)
		}
		if _, err := s.Engine.Use(mw); err != nil {
			return nil, err
		}
	}

	if err := s.cache(c.Cache); err != nil {
		return nil, err
	}

	if c.Async.Workers > 0 {
		var popts []async.Option
		if c.Async.Nonblocking {
			popts = append(popts, async.WithNonblocking())
		}
		p, err := async.NewPool(s.Engine, c.Async.Workers, popts...)
		if err != nil {
			return nil, err
		}
		s.Pool = p
		s.closers = append(s.closers, func(ctx context.Context) error {
			return p.Release(timeoutOf(ctx))
		})
	}

	return s, nil
}

func (s *Stack) tracing(tc TracingConfig, out io.Writer) (tracing.Config, error) {
	if !tc.Stdout {
		return tracing.Config{}, nil
	}
	exp, err := stdouttrace.New(stdouttrace.WithWriter(out))
	if err != nil {
		return tracing.Config{}, fmt.Errorf("config: stdout exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	s.closers = append(s.closers, tp.Shutdown)
	return tracing.Config{TracerProvider: tp}, nil
}

func (s *Stack) cache(cc CacheConfig) error {
	if cc.L1MaxCost <= 0 {
		return nil
	}
	l1, err := cache.NewL1(cc.L1MaxCost)
	if err != nil {
		return fmt.Errorf("config: cache: %w", err)
	}
	s.closers = append(s.closers, func(context.Context) error {
		l1.Close()
		return nil
	})
	if cc.RedisAddr == "" {
		s.Cache = l1
		return nil
	}

	l2 := cache.NewL2(cc.RedisAddr, cc.RedisPassword, cc.RedisDB, cache.WithKeyPrefix(cc.KeyPrefix))
	s.closers = append(s.closers, func(context.Context) error { return l2.Close() })
	s.Cache = cache.NewTiered(l1, l2)
	return nil
}

// Close releases the pool, flushes spans and closes caches, in reverse
// order of creation.
func (s *Stack) Close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

func (rc RateLimitConfig) middleware() (actionmw.Stages, bool, error) {
	if rc.RPS <= 0 && len(rc.Groups) == 0 {
		return actionmw.Stages{}, false, nil
	}

	var global *ratelimit.Limiter
	if rc.RPS > 0 {
		global = ratelimit.NewLimiter(rc.RPS, max(rc.Burst, 1))
	}

	var opts []ratelimit.Option
	if rc.Wait {
		opts = append(opts, ratelimit.WithWait())
	}
	if len(rc.Groups) > 0 {
		groups := make([]*filter.GroupBuilder, 0, len(rc.Groups))
		rules := make(map[string]ratelimit.Rule, len(rc.Groups))
		for _, g := range rc.Groups {
			gb := filter.Group(g.Name)
			for _, p := range g.Exact {
				gb.Exact(p)
			}
			for _, p := range g.Prefix {
				gb.Prefix(p)
			}
			for _, p := range g.Glob {
				gb.Glob(p)
			}
			for _, p := range g.Regex {
				r, err := filter.Regex(p)
				if err != nil {
					return actionmw.Stages{}, false, fmt.Errorf("config: ratelimit group %q: %w", g.Name, err)
				}
				gb.Rule(r)
			}
			groups = append(groups, gb)
			rules[g.Name] = ratelimit.Rule{Rate: g.Rate, Window: g.Window}
		}
		opts = append(opts, ratelimit.WithGroups(filter.NewResolver(groups...), rules))
	}
	return ratelimit.Middleware(global, opts...), true, nil
}
