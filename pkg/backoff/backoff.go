// Package backoff provides wait-interval calculation for poll loops. The
// client library never retries on its own; callers use this to pace their
// own state polling.
package backoff

import (
	"context"
	"math"
	"time"
)

// Config for exponential growth. Zero values use defaults.
type Config struct {
	Initial time.Duration // default: 500ms
	Max     time.Duration // default: 10s
	Factor  float64       // default: 2.0
}

// Exponential returns the wait before the given attempt. Attempt 1 returns
// Initial, each following attempt grows by Factor, capped at Max.
func Exponential(attempt int, cfg *Config) time.Duration {
	initial := 500 * time.Millisecond
	maxWait := 10 * time.Second
	factor := 2.0
	if cfg != nil {
		if cfg.Initial > 0 {
			initial = cfg.Initial
		}
		if cfg.Max > 0 {
			maxWait = cfg.Max
		}
		if cfg.Factor > 1 {
			factor = cfg.Factor
		}
	}

	if attempt < 1 {
		return initial
	}
	wait := float64(initial) * math.Pow(factor, float64(attempt-1))
	if wait > float64(maxWait) {
		wait = float64(maxWait)
	}
	return time.Duration(wait)
}

// Sleep waits for d or until ctx is cancelled, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
