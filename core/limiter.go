package core

import "sync"

// ConcurrencyLimiter bounds the number of simultaneously active runs. The
// invariant 0 <= active <= max holds as long as callers only use TryDispatch
// (or CanDispatch followed by MarkDispatched under their own lock) and
// MarkFinished.
type ConcurrencyLimiter struct {
	max    int
	active int
	mu     sync.Mutex
}

// NewConcurrencyLimiter creates a limiter allowing max active runs.
// Values below 1 are raised to 1.
func NewConcurrencyLimiter(max int) *ConcurrencyLimiter {
	if max < 1 {
		max = 1
	}
	return &ConcurrencyLimiter{max: max}
}

// CanDispatch reports whether another run may become active.
func (cl *ConcurrencyLimiter) CanDispatch() bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	return cl.active < cl.max
}

// MarkDispatched records one more active run. It does not clamp; callers
// must have checked CanDispatch first.
func (cl *ConcurrencyLimiter) MarkDispatched() {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	cl.active++
}

// TryDispatch atomically checks capacity and increments the active count.
func (cl *ConcurrencyLimiter) TryDispatch() bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.active >= cl.max {
		return false
	}
	cl.active++

	return true
}

// MarkFinished releases one active slot, never going below zero.
func (cl *ConcurrencyLimiter) MarkFinished() {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.active > 0 {
		cl.active--
	}
}

// Active returns the current number of active runs.
func (cl *ConcurrencyLimiter) Active() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	return cl.active
}

// Max returns the configured bound.
func (cl *ConcurrencyLimiter) Max() int {
	return cl.max
}
