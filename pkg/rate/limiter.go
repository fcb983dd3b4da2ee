package rate

import (
	"math"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter limits operations based on a provided key.
type Limiter interface {
	Allow(key string) (bool, error)
}

// LimiterCtor allows the creation of a Limiter using a provided rate.
type LimiterCtor func(rate float64) Limiter

type localRateLimiter struct {
	limit rate.Limit
	burst int

	sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewLocalRateLimiter returns an in memory limiter. The burst is the limit
// rounded up, so fractional limits such as one request per minute still allow
// a first request.
func NewLocalRateLimiter(limit rate.Limit) Limiter {
	burst := 1
	if limit > 1 && limit != rate.Inf {
		burst = int(math.Ceil(float64(limit)))
	}

	return &localRateLimiter{
		limit:    limit,
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// NewLocalRateLimiterCtor returns a LimiterCtor for in memory limiters.
func NewLocalRateLimiterCtor() LimiterCtor {
	return func(r float64) Limiter {
		if r <= 0 {
			return &NoLimiter{}
		}
		return NewLocalRateLimiter(rate.Limit(r))
	}
}

// Allow implements limiter.Allow.
func (l *localRateLimiter) Allow(key string) (bool, error) {
	l.Lock()
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = limiter
	}
	l.Unlock()

	return limiter.Allow(), nil
}

// NoLimiter never limits operations
type NoLimiter struct {
}

// Allow implements limiter.Allow.
func (n *NoLimiter) Allow(key string) (bool, error) {
	return true, nil
}
