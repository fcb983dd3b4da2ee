package retry

import (
	"context"
)

// Action is a function to be performed in a retriable manner.
type Action func() error

// Retrier retries actions with a fixed set of strategies.
type Retrier interface {
	Retry(ctx context.Context, action Action) (uint, error)
}

type retrier struct {
	strategies []Strategy
}

// NewRetrier returns a Retrier bound to strategies. With no strategies the
// retrier loops until the action succeeds or ctx is done.
func NewRetrier(strategies ...Strategy) Retrier {
	return &retrier{
		strategies: strategies,
	}
}

func (r *retrier) Retry(ctx context.Context, action Action) (uint, error) {
	return Retry(ctx, action, r.strategies...)
}

// Retry executes action until it succeeds, a strategy declines another
// attempt, or ctx is done. It returns the number of attempts made and the
// error of the last one.
//
// Strategies are evaluated in order, so strategies that sleep should be
// specified last.
func Retry(ctx context.Context, action Action, strategies ...Strategy) (uint, error) {
	for attempt := uint(1); ; attempt++ {
		err := action()
		if err == nil {
			return attempt, nil
		}

		if ctx.Err() != nil {
			return attempt, err
		}

		for _, s := range strategies {
			if !s(ctx, attempt, err) {
				return attempt, err
			}
		}
	}
}
