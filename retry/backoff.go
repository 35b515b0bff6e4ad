// Package retry re-runs failing actions with exponential backoff and jitter.
// It wraps the action function itself, so the engine's before and after
// stages still run once per call while only the action is repeated.
package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

// backoff returns the delay before retry number attempt (0-indexed):
// BaseDelay doubled per attempt, capped at MaxDelay when MaxDelay > 0, then
// spread by ±Jitter.
func backoff(cfg Config, attempt int) time.Duration {
	delay := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt))
	if limit := float64(cfg.MaxDelay); limit > 0 && delay > limit {
		delay = limit
	}
	if cfg.Jitter > 0 {
		delay += delay * cfg.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(max(delay, 0))
}
