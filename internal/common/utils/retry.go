package utils

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"metadata-enricher/internal/common/errors"
)

// RetryConfig holds configuration for retry operations with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial attempt)
	MaxAttempts int

	// InitialDelay is the delay before the first retry
	InitialDelay time.Duration

	// MaxDelay is the maximum delay between retries (caps exponential growth)
	MaxDelay time.Duration

	// BackoffFactor is the multiplier for exponential backoff (e.g., 2.0 doubles delay)
	BackoffFactor float64

	// JitterFactor adds up to this fraction of the delay on top of it (0.1 = 10%)
	JitterFactor float64

	// RetryableErrors determines which errors should trigger a retry.
	// If nil, all errors are considered retryable.
	RetryableErrors func(error) bool

	// OnRetry is called before each wait with the failed attempt number,
	// its error and the delay about to be slept.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultRetryConfig returns the enrichment retry policy defaults.
//
// Default settings:
//   - MaxAttempts: 4 (initial attempt + 3 retries)
//   - InitialDelay: 1 second, doubling each attempt
//   - MaxDelay: 30 seconds
//   - JitterFactor: 0.1
//   - RetryableErrors: transport failures and timeouts only
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:     4,
		InitialDelay:    1 * time.Second,
		MaxDelay:        30 * time.Second,
		BackoffFactor:   2.0,
		JitterFactor:    0.1,
		RetryableErrors: errors.IsRetryable,
	}
}

// NewRetryConfig builds a policy from the caller-facing max_retries and
// initial_backoff_seconds knobs. Negative values fall back to the defaults.
// The delay doubles on every retry with no cap; max_retries bounds it.
func NewRetryConfig(maxRetries int, initialBackoffSeconds float64) RetryConfig {
	config := DefaultRetryConfig()
	config.MaxDelay = 0
	if maxRetries >= 0 {
		config.MaxAttempts = maxRetries + 1
	}
	if initialBackoffSeconds >= 0 {
		config.InitialDelay = SecondsToDuration(initialBackoffSeconds)
	}
	return config
}

// MaxBackoff returns the longest total time the policy can spend sleeping
// between attempts, jitter included.
func (c RetryConfig) MaxBackoff() time.Duration {
	var total time.Duration
	delay := c.InitialDelay
	for attempt := 1; attempt < c.MaxAttempts; attempt++ {
		total += delay + time.Duration(float64(delay)*c.JitterFactor)
		delay = c.next(delay)
	}
	return total
}

func (c RetryConfig) next(delay time.Duration) time.Duration {
	factor := c.BackoffFactor
	if factor <= 0 {
		factor = 1
	}
	delay = time.Duration(float64(delay) * factor)
	if c.MaxDelay > 0 && delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}

// RetryWithBackoff executes a function with exponential backoff retry strategy.
//
// Returns:
//   - nil if the function succeeds within the attempt limit
//   - the original error if it's determined to be non-retryable
//   - a cancelled error if ctx is done while waiting
//   - "max retries exceeded" wrapping the last error once attempts run out
//
// The delay before retry n is InitialDelay * BackoffFactor^(n-1), capped at
// MaxDelay, plus up to JitterFactor of itself.
func RetryWithBackoff(ctx context.Context, config RetryConfig, fn func() error) error {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}

	var lastErr error
	delay := config.InitialDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if config.RetryableErrors != nil && !config.RetryableErrors(err) {
			return err
		}

		if attempt == config.MaxAttempts {
			break
		}

		wait := delay
		if config.JitterFactor > 0 && delay > 0 {
			wait += time.Duration(rand.Int64N(int64(float64(delay)*config.JitterFactor) + 1))
		}

		if config.OnRetry != nil {
			config.OnRetry(attempt, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.CancelledError("retry", ctx.Err())
		case <-timer.C:
		}

		delay = config.next(delay)
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}
