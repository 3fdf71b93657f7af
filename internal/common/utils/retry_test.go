package utils

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metadata-enricher/internal/common/errors"
)

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	assert.Equal(t, 4, config.MaxAttempts)
	assert.Equal(t, 1*time.Second, config.InitialDelay)
	assert.Equal(t, 30*time.Second, config.MaxDelay)
	assert.Equal(t, 2.0, config.BackoffFactor)
	assert.Equal(t, 0.1, config.JitterFactor)
	require.NotNil(t, config.RetryableErrors)

	assert.True(t, config.RetryableErrors(errors.TransportError("down", nil)))
	assert.True(t, config.RetryableErrors(errors.TimeoutError("fetch", nil)))
	assert.False(t, config.RetryableErrors(errors.HTTPStatusError(404, "X", "")))
	assert.False(t, config.RetryableErrors(stderrors.New("plain")))
}

func TestNewRetryConfig(t *testing.T) {
	config := NewRetryConfig(5, 0.25)
	assert.Equal(t, 6, config.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, config.InitialDelay)

	zero := NewRetryConfig(0, 0)
	assert.Equal(t, 1, zero.MaxAttempts)
	assert.Equal(t, time.Duration(0), zero.InitialDelay)

	fallback := NewRetryConfig(-1, -1)
	assert.Equal(t, 4, fallback.MaxAttempts)
	assert.Equal(t, time.Second, fallback.InitialDelay)
}

func TestNewRetryConfig_DoublesWithoutCap(t *testing.T) {
	config := NewRetryConfig(3, 20)
	config.JitterFactor = 0

	assert.Equal(t, time.Duration(0), config.MaxDelay)
	// 20s + 40s + 80s
	assert.Equal(t, 140*time.Second, config.MaxBackoff())
}

func TestRetryConfig_MaxBackoff(t *testing.T) {
	config := RetryConfig{
		MaxAttempts:   4,
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
	}
	assert.Equal(t, 7*time.Second, config.MaxBackoff())

	config.JitterFactor = 0.5
	assert.Equal(t, 10500*time.Millisecond, config.MaxBackoff())
}

func TestRetryWithBackoff_Success(t *testing.T) {
	config := DefaultRetryConfig()
	config.InitialDelay = 10 * time.Millisecond

	attempts := 0
	err := RetryWithBackoff(context.Background(), config, func() error {
		attempts++
		if attempts < 2 {
			return errors.TransportError("temporary", nil)
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestRetryWithBackoff_AllAttemptsFail(t *testing.T) {
	config := NewRetryConfig(3, 0.01)

	attempts := 0
	testError := errors.TransportError("persistent", nil)

	err := RetryWithBackoff(context.Background(), config, func() error {
		attempts++
		return testError
	})

	assert.Error(t, err)
	assert.Equal(t, 4, attempts)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.ErrorIs(t, err, testError)
	assert.True(t, errors.IsType(err, errors.ErrTypeTransport))
}

func TestRetryWithBackoff_NonRetryableError(t *testing.T) {
	config := NewRetryConfig(3, 0.01)

	attempts := 0
	notFound := errors.HTTPStatusError(404, "X", "")

	err := RetryWithBackoff(context.Background(), config, func() error {
		attempts++
		return notFound
	})

	assert.Equal(t, 1, attempts)
	assert.Equal(t, notFound, err)
}

func TestRetryWithBackoff_ContextCancellation(t *testing.T) {
	config := NewRetryConfig(4, 0.1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	attempts := 0
	err := RetryWithBackoff(ctx, config, func() error {
		attempts++
		return errors.TransportError("always fails", nil)
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "retry cancelled")
	assert.True(t, errors.IsType(err, errors.ErrTypeCancelled))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, attempts)
}

func TestRetryWithBackoff_ExponentialBackoff(t *testing.T) {
	config := RetryConfig{
		MaxAttempts:     4,
		InitialDelay:    10 * time.Millisecond,
		MaxDelay:        100 * time.Millisecond,
		BackoffFactor:   2.0,
		RetryableErrors: func(err error) bool { return true },
	}

	var waits []time.Duration
	config.OnRetry = func(attempt int, err error, delay time.Duration) {
		waits = append(waits, delay)
	}

	err := RetryWithBackoff(context.Background(), config, func() error {
		return stderrors.New("always fails")
	})

	assert.Error(t, err)
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond}, waits)
}

func TestRetryWithBackoff_MaxDelay(t *testing.T) {
	config := RetryConfig{
		MaxAttempts:     4,
		InitialDelay:    5 * time.Millisecond,
		MaxDelay:        6 * time.Millisecond,
		BackoffFactor:   2.0,
		RetryableErrors: func(err error) bool { return true },
	}

	var waits []time.Duration
	config.OnRetry = func(attempt int, err error, delay time.Duration) {
		waits = append(waits, delay)
	}

	_ = RetryWithBackoff(context.Background(), config, func() error {
		return stderrors.New("always fails")
	})

	assert.Equal(t, []time.Duration{5 * time.Millisecond, 6 * time.Millisecond, 6 * time.Millisecond}, waits)
}

func TestRetryWithBackoff_JitterBounds(t *testing.T) {
	config := RetryConfig{
		MaxAttempts:     3,
		InitialDelay:    10 * time.Millisecond,
		MaxDelay:        time.Second,
		BackoffFactor:   2.0,
		JitterFactor:    0.5,
		RetryableErrors: func(err error) bool { return true },
	}

	var waits []time.Duration
	config.OnRetry = func(attempt int, err error, delay time.Duration) {
		waits = append(waits, delay)
	}

	_ = RetryWithBackoff(context.Background(), config, func() error {
		return stderrors.New("always fails")
	})

	require.Len(t, waits, 2)
	assert.GreaterOrEqual(t, waits[0], 10*time.Millisecond)
	assert.LessOrEqual(t, waits[0], 15*time.Millisecond)
	assert.GreaterOrEqual(t, waits[1], 20*time.Millisecond)
	assert.LessOrEqual(t, waits[1], 30*time.Millisecond)
}

func TestRetryWithBackoff_ZeroAttemptsRunsOnce(t *testing.T) {
	attempts := 0
	err := RetryWithBackoff(context.Background(), RetryConfig{}, func() error {
		attempts++
		return stderrors.New("boom")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestSecondsToDuration(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, SecondsToDuration(1.5))
	assert.Equal(t, time.Duration(0), SecondsToDuration(-2))
	assert.Equal(t, 30*time.Second, DurationOr(0, 30*time.Second))
	assert.Equal(t, 2*time.Second, DurationOr(2, 30*time.Second))
}

func TestNewInvocationID(t *testing.T) {
	a, b := NewInvocationID(), NewInvocationID()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
