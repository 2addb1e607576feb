package transport

import (
	"math"
	"math/rand"
	"time"
)

// NextBackoffDelay returns the reconnect delay for attempt N (1-based). With
// jitter the delay is scaled by a factor in [0.5, 1.5); a nil rng uses 0.5.
// MaxDelay caps the result.
func NextBackoffDelay(cfg BackoffConfig, attempt int, rng *rand.Rand) time.Duration {
	if cfg.InitialDelay <= 0 {
		return 0
	}
	delay := float64(cfg.InitialDelay)
	if attempt > 1 {
		mult := math.Max(cfg.Multiplier, 1.0)
		delay *= math.Pow(mult, float64(attempt-1))
	}
	if cfg.MaxDelay > 0 {
		delay = math.Min(delay, float64(cfg.MaxDelay))
	}
	if cfg.Jitter {
		factor := 0.5
		if rng != nil {
			factor += rng.Float64()
		}
		delay *= factor
		if cfg.MaxDelay > 0 {
			delay = math.Min(delay, float64(cfg.MaxDelay))
		}
	}
	return time.Duration(delay)
}
