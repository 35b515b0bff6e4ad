// Package config loads engine settings from a YAML file and ACTIONMW_*
// environment variables and assembles a ready-to-use engine from them.
//
// Environment variables override the file. Nested keys are separated by a
// double underscore, so ACTIONMW_BREAKER__FAILURE_THRESHOLD=5 sets
// breaker.failure_threshold.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables read by Load.
const EnvPrefix = "ACTIONMW_"

// Config is the file and environment configuration.
type Config struct {
	Recovery            bool            `koanf:"recovery"`
	RouteContractErrors bool            `koanf:"route_contract_errors"`
	Log                 LogConfig       `koanf:"log"`
	RateLimit           RateLimitConfig `koanf:"ratelimit"`
	Breaker             BreakerConfig   `koanf:"breaker"`
	Cache               CacheConfig     `koanf:"cache"`
	Tracing             TracingConfig   `koanf:"tracing"`
	Metrics             MetricsConfig   `koanf:"metrics"`
	Async               AsyncConfig     `koanf:"async"`
}

type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // text or json
}

// RateLimitConfig enables the rate-limit middleware when RPS > 0 or any
// group is configured.
type RateLimitConfig struct {
	RPS    float64          `koanf:"rps"`
	Burst  int              `koanf:"burst"`
	Wait   bool             `koanf:"wait"`
	Groups []RateLimitGroup `koanf:"groups"`
}

// RateLimitGroup allows Rate calls per Window for action types matching any
// of its patterns.
type RateLimitGroup struct {
	Name   string        `koanf:"name"`
	Exact  []string      `koanf:"exact"`
	Prefix []string      `koanf:"prefix"`
	Glob   []string      `koanf:"glob"`
	Regex  []string      `koanf:"regex"`
	Rate   int           `koanf:"rate"`
	Window time.Duration `koanf:"window"`
}

type BreakerConfig struct {
	Enabled            bool          `koanf:"enabled"`
	FailureThreshold   int           `koanf:"failure_threshold"`
	OpenTimeout        time.Duration `koanf:"open_timeout"`
	HalfOpenMaxSuccess int           `koanf:"half_open_max_success"`
	// Filter scopes the breaker to action types with this prefix.
	Filter string `koanf:"filter"`
}

// CacheConfig enables an L1 cache when L1MaxCost > 0 and adds a Redis L2
// when RedisAddr is set.
type CacheConfig struct {
	L1MaxCost     int64         `koanf:"l1_max_cost"`
	RedisAddr     string        `koanf:"redis_addr"`
	RedisPassword string        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db"`
	KeyPrefix     string        `koanf:"key_prefix"`
	TTL           time.Duration `koanf:"ttl"`
}

type TracingConfig struct {
	Enabled bool `koanf:"enabled"`
	// Stdout exports spans as JSON to the writer given to Build.
	Stdout bool `koanf:"stdout"`
}

type MetricsConfig struct {
	Enabled bool `koanf:"enabled"`
}

// AsyncConfig creates a worker pool when Workers > 0.
type AsyncConfig struct {
	Workers     int  `koanf:"workers"`
	Nonblocking bool `koanf:"nonblocking"`
}

var defaults = map[string]any{
	"recovery":                      true,
	"log.level":                     "info",
	"log.format":                    "text",
	"breaker.failure_threshold":     5,
	"breaker.open_timeout":          "30s",
	"breaker.half_open_max_success": 1,
	"cache.ttl":                     "5m",
}

// Load reads path (skipped when empty) and then the environment. A missing
// file is an error only when path was given explicitly.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	for key, v := range defaults {
		if !k.Exists(key) {
			if err := k.Set(key, v); err != nil {
				return nil, fmt.Errorf("config: default %s: %w", key, err)
			}
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.logLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: log.format must be text or json, got %q", c.Log.Format))
	}
	if c.RateLimit.RPS < 0 || c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("config: ratelimit.rps and ratelimit.burst must not be negative"))
	}
	for i, g := range c.RateLimit.Groups {
		if g.Name == "" {
			errs = append(errs, fmt.Errorf("config: ratelimit.groups[%d] has no name", i))
		}
		if g.Rate <= 0 || g.Window <= 0 {
			errs = append(errs, fmt.Errorf("config: ratelimit group %q needs a positive rate and window", g.Name))
		}
	}
	if c.Breaker.Enabled && c.Breaker.OpenTimeout <= 0 {
		errs = append(errs, errors.New("config: breaker.open_timeout must be positive"))
	}
	if c.Cache.L1MaxCost < 0 {
		errs = append(errs, errors.New("config: cache.l1_max_cost must not be negative"))
	}
	if c.Async.Workers < 0 {
		errs = append(errs, errors.New("config: async.workers must not be negative"))
	}
	return errors.Join(errs...)
}

func (c *Config) logLevel() (slog.Level, error) {
	var lvl slog.Level
	if c.Log.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("config: log.level: %w", err)
	}
	return lvl, nil
}
