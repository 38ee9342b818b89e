package sync

import (
	base "sync"
)

const (
	ringPointsPerStripe = 200
)

// StripedLock maps an unbounded key space onto a fixed set of locks. Keys
// sharing a stripe contend with each other, which bounds memory while still
// letting most keys proceed in parallel.
type StripedLock struct {
	locks []base.RWMutex
	ring  *ring
}

// NewStripedLock returns a StripedLock with the given number of stripes
func NewStripedLock(stripes uint) *StripedLock {
	if stripes == 0 {
		stripes = 1
	}

	return &StripedLock{
		locks: make([]base.RWMutex, stripes),
		ring:  newRing(stripes, ringPointsPerStripe),
	}
}

// Get returns the lock guarding key
func (l *StripedLock) Get(key []byte) *base.RWMutex {
	return &l.locks[l.ring.slot(key)]
}

// Stripes returns the number of locks
func (l *StripedLock) Stripes() int {
	return len(l.locks)
}
