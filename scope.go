package manifold

import (
	"sync"
)

// Scope owns a worker pool shared across the links of a pipe chain. Passing
// a Scope to NewPipe, or carrying one through Then, enables pool reuse:
// every parallel link borrows the same pool instead of creating its own, and
// none of them closes it. The creator closes the Scope exactly once, after
// the chain's final output has been consumed. Links sharing a scope evaluate
// strictly one after another, so borrowers never submit concurrently.
type Scope struct {
	mu     sync.Mutex
	pool   *Pool
	closed bool
}

// NewScope creates an empty scope. Its pool is created lazily by the first
// parallel link that acquires it.
func NewScope() *Scope {
	return &Scope{}
}

// Acquire returns the scope's shared pool, creating it with the given worker
// count on first use. Later acquisitions return the same pool regardless of
// the requested size: the first link to execute sizes the pool for the whole
// chain.
func (s *Scope) Acquire(workers int) *Pool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		panic("manifold.Scope: Acquire after Close")
	}
	if s.pool == nil {
		s.pool = NewPool(workers)
	}
	return s.pool
}

// Close drains and joins the shared pool. It must be called exactly once,
// after every borrowing executor has fully consumed its output; closing
// twice panics. A scope whose pool was never acquired closes trivially.
func (s *Scope) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		panic("manifold.Scope: Close called twice")
	}
	s.closed = true
	if s.pool != nil {
		s.pool.Close()
		s.pool.Join()
	}
}
