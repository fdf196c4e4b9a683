package backoff

import (
	"math"
	"time"
)

// Config holds exponential backoff parameters.
type Config struct {
	InitialDelay time.Duration // Delay before the first retry
	MaxDelay     time.Duration // Cap applied to the computed delay
	Multiplier   float64       // Exponential growth factor (typically 2.0)
}

// DefaultConfig returns the reconnection backoff used by the player:
// 1s, 2s, 4s, ... capped at 5s.
func DefaultConfig() Config {
	return Config{
		InitialDelay: time.Second,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// Delay returns the wait before retry number attempt (1-based):
// min(initial * multiplier^(attempt-1), max). Attempts below 1 are
// treated as the first attempt.
func (c Config) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(c.InitialDelay) * math.Pow(c.Multiplier, float64(attempt-1))
	if delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}
	return time.Duration(delay)
}
