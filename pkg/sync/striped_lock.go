package sync

import (
	base "sync"
)

const (
	replicasPerStripe = 500
)

// StripedLock maps an unbounded key space, such as account addresses, onto a
// fixed set of mutexes. Distinct keys may share a stripe, so holders must not
// acquire a second key while holding one.
type StripedLock struct {
	locks []base.Mutex
	ring  *ring
}

// NewStripedLock returns a StripedLock with a static number of stripes.
func NewStripedLock(stripes uint) *StripedLock {
	if stripes == 0 {
		stripes = 1
	}

	return &StripedLock{
		locks: make([]base.Mutex, stripes),
		ring:  newRing(stripes, replicasPerStripe),
	}
}

// Get returns the mutex for key.
func (l *StripedLock) Get(key []byte) *base.Mutex {
	return &l.locks[l.ring.shard(key)]
}

// Lock acquires the mutex for key and returns the function that releases it.
func (l *StripedLock) Lock(key []byte) func() {
	mu := l.Get(key)
	mu.Lock()
	return mu.Unlock
}
