package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/pkg/errors"

	"github.com/code-payments/account-provisioner/pkg/retry/backoff"
)

// Strategy decides whether an action should be attempted again after its
// attempts'th failure with err. Strategies may sleep.
type Strategy func(ctx context.Context, attempts uint, err error) bool

// Limit returns a strategy that allows at most maxAttempts attempts in total.
func Limit(maxAttempts uint) Strategy {
	return func(_ context.Context, attempts uint, _ error) bool {
		return attempts < maxAttempts
	}
}

// RetriableErrors returns a strategy that only retries errors matching one of
// retriableErrors.
func RetriableErrors(retriableErrors ...error) Strategy {
	return func(_ context.Context, _ uint, err error) bool {
		for _, e := range retriableErrors {
			if errors.Is(err, e) {
				return true
			}
		}
		return false
	}
}

// NonRetriableErrors returns a strategy that retries everything except errors
// matching one of nonRetriableErrors.
func NonRetriableErrors(nonRetriableErrors ...error) Strategy {
	return func(_ context.Context, _ uint, err error) bool {
		for _, e := range nonRetriableErrors {
			if errors.Is(err, e) {
				return false
			}
		}
		return true
	}
}

// RetriableFunc returns a strategy that retries any error for which
// isRetriable returns true.
func RetriableFunc(isRetriable func(error) bool) Strategy {
	return func(_ context.Context, _ uint, err error) bool {
		return isRetriable(err)
	}
}

// Backoff returns a strategy that sleeps for the delay given by strategy,
// capped at maxBackoff. It stops retrying if ctx is done while sleeping.
func Backoff(strategy backoff.Strategy, maxBackoff time.Duration) Strategy {
	return func(ctx context.Context, attempts uint, _ error) bool {
		return sleeperImpl.Sleep(ctx, capDelay(strategy(attempts), maxBackoff))
	}
}

// BackoffWithJitter is Backoff with the capped delay shifted randomly by up
// to +/- jitter (a fraction of the delay).
func BackoffWithJitter(strategy backoff.Strategy, maxBackoff time.Duration, jitter float64) Strategy {
	return func(ctx context.Context, attempts uint, _ error) bool {
		delay := capDelay(strategy(attempts), maxBackoff)
		delay = time.Duration(float64(delay) * (1 + (rand.Float64()*2-1)*jitter))
		return sleeperImpl.Sleep(ctx, delay)
	}
}

func capDelay(delay, maxDelay time.Duration) time.Duration {
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

type sleeper interface {
	// Sleep waits for d and reports whether ctx is still live afterwards.
	Sleep(ctx context.Context, d time.Duration) bool
}

type timerSleeper struct{}

func (timerSleeper) Sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

var sleeperImpl sleeper = timerSleeper{}
