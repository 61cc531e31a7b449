// Package resilience provides retry with exponential backoff.
package resilience

import (
	"context"
	"math"
	"time"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxRetries     int           // Max number of retries (0 = no retry, <0 = until ctx is done)
	InitialBackoff time.Duration // Initial backoff duration
	MaxBackoff     time.Duration // Maximum backoff duration
	Multiplier     float64       // Backoff multiplier (e.g., 2.0 for exponential)
}

// DefaultRetryConfig returns sensible defaults for dialing.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2.0,
	}
}

// BackpressureConfig retries forever with a short ceiling. It suits a
// writer waiting for a reader on the other side to drain a buffer.
func BackpressureConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     -1,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
		Multiplier:     2.0,
	}
}

// Retry executes fn with exponential backoff until it succeeds, the retry
// budget runs out or ctx is done. It returns the last error from fn, or
// ctx.Err() if the context ended the wait.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error
	for attempt := 0; cfg.MaxRetries < 0 || attempt <= cfg.MaxRetries; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if cfg.MaxRetries >= 0 && attempt == cfg.MaxRetries {
			break
		}

		t := time.NewTimer(BackoffDuration(attempt, cfg.InitialBackoff, cfg.MaxBackoff, cfg.Multiplier))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return lastErr
}

// BackoffDuration calculates exponential backoff.
func BackoffDuration(attempt int, initial, max time.Duration, multiplier float64) time.Duration {
	d := time.Duration(float64(initial) * math.Pow(multiplier, float64(attempt)))
	if d > max || d <= 0 {
		return max
	}
	return d
}
