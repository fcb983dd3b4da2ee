// Package backoff provides delay schedules for retry.Backoff.
package backoff

import (
	"math"
	"time"
)

// Strategy returns the delay before the next attempt, given the number of
// attempts made so far (starting at 1).
type Strategy func(attempts uint) time.Duration

// Constant waits interval between every attempt.
func Constant(interval time.Duration) Strategy {
	return func(uint) time.Duration {
		return interval
	}
}

// Linear waits baseDelay * attempts, e.g. 2s, 4s, 6s for a 2s base.
func Linear(baseDelay time.Duration) Strategy {
	return func(attempts uint) time.Duration {
		return clamp(float64(baseDelay) * float64(attempts))
	}
}

// Exponential waits baseDelay * base^(attempts-1), e.g. 2s, 6s, 18s for a
// 2s base delay and a base of 3.
func Exponential(baseDelay time.Duration, base float64) Strategy {
	return func(attempts uint) time.Duration {
		return clamp(float64(baseDelay) * math.Pow(base, float64(attempts)-1))
	}
}

// BinaryExponential is Exponential with a base of 2.
func BinaryExponential(baseDelay time.Duration) Strategy {
	return Exponential(baseDelay, 2)
}

// clamp converts a delay to a Duration, saturating instead of overflowing.
func clamp(delay float64) time.Duration {
	if delay >= math.MaxInt64 {
		return math.MaxInt64
	}
	return time.Duration(delay)
}
