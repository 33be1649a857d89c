package manifold

import (
	"sync"
)

// StageHelper provides common utilities for building stateful stages. Embed
// it into a stage struct to get one-time initialization with error capture
// and a small thread-safe state store. The zero value is ready to use.
type StageHelper struct {
	mu        sync.RWMutex
	setupOnce sync.Once
	setupErr  error
	state     map[string]any
}

// DoOnceWithError executes f exactly once for this helper instance. If f
// fails, the error is stored and returned by this and every subsequent call;
// if it succeeds, subsequent calls return nil without re-executing f.
// Typically used to open a connection or prompt for input lazily from
// Process or Operate, which may run concurrently.
func (h *StageHelper) DoOnceWithError(f func() error) error {
	h.setupOnce.Do(func() {
		// Run f outside the lock; it may block for a while.
		err := f()
		h.mu.Lock()
		h.setupErr = err
		h.mu.Unlock()
	})
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.setupErr
}

// SetupError returns the error captured by DoOnceWithError, if any.
func (h *StageHelper) SetupError() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.setupErr
}

// SetState stores a value in the helper's thread-safe state map.
func (h *StageHelper) SetState(key string, value any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == nil {
		h.state = make(map[string]any)
	}
	h.state[key] = value
}

// GetState retrieves a value from the helper's state map, reporting whether
// the key exists.
func (h *StageHelper) GetState(key string) (any, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.state == nil {
		return nil, false
	}
	v, ok := h.state[key]
	return v, ok
}
