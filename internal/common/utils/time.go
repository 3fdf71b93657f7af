package utils

import "time"

// SecondsToDuration converts fractional seconds from configuration into a Duration.
func SecondsToDuration(seconds float64) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// DurationOr returns the duration for seconds, or fallback when seconds is not positive.
func DurationOr(seconds float64, fallback time.Duration) time.Duration {
	if d := SecondsToDuration(seconds); d > 0 {
		return d
	}
	return fallback
}
