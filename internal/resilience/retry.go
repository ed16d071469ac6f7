// Package resilience holds the retry policy applied to calls against the
// external TTS service.
package resilience

import (
	"context"
	"time"
)

// RetryConfig bounds how often and how patiently a failing call is retried.
type RetryConfig struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// IsRetryableError decides whether an error is worth another attempt.
type IsRetryableError func(error) bool

// Retry runs fn up to cfg.MaxAttempts times with exponential backoff between
// attempts. It returns nil on the first success, the last error once attempts
// are exhausted or isRetryable rejects it, or ctx.Err() if the context ends
// while waiting. A nil isRetryable retries every error.
func Retry(ctx context.Context, cfg *RetryConfig, fn func() error, isRetryable IsRetryableError) error {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}

	var lastErr error
	backoff := cfg.InitialBackoff
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if isRetryable != nil && !isRetryable(lastErr) {
			return lastErr
		}

		if attempt == cfg.MaxAttempts-1 {
			break
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * cfg.BackoffMultiplier)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}
	return lastErr
}
