// Package session implements the Session Registry: the process-wide mapping
// from device identity to the session currently bound to it.
//
// At most one session is bound per device. A newer registration replaces the
// binding without closing the older connection, and removal is
// compare-and-delete so a late disconnect from a superseded session cannot
// evict the newer binding.
package session

import "sync"

// Registry maps device IDs to session IDs. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	bindings map[string]string // device ID → session ID

	locksMu sync.Mutex
	locks   map[string]*deviceLock
}

// deviceLock is a reference-counted mutex so idle devices don't leak entries.
type deviceLock struct {
	mu   sync.Mutex
	refs int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		bindings: make(map[string]string),
		locks:    make(map[string]*deviceLock),
	}
}

// Register binds sessionID to deviceID, replacing any previous binding.
// It returns the replaced session ID, if any.
func (r *Registry) Register(deviceID, sessionID string) (previous string, replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous, replaced = r.bindings[deviceID]
	r.bindings[deviceID] = sessionID
	return previous, replaced && previous != sessionID
}

// Resolve returns the session bound to deviceID.
func (r *Registry) Resolve(deviceID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessionID, ok := r.bindings[deviceID]
	return sessionID, ok
}

// Unregister removes the binding for deviceID only if it is still sessionID.
// It reports whether a binding was removed.
func (r *Registry) Unregister(deviceID, sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.bindings[deviceID]; !ok || current != sessionID {
		return false
	}
	delete(r.bindings, deviceID)
	return true
}

// Len returns the number of bound devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bindings)
}

// Lock serializes work on a single device across connections. The returned
// function releases the lock and must be called exactly once.
func (r *Registry) Lock(deviceID string) (unlock func()) {
	r.locksMu.Lock()
	l, ok := r.locks[deviceID]
	if !ok {
		l = &deviceLock{}
		r.locks[deviceID] = l
	}
	l.refs++
	r.locksMu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		r.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(r.locks, deviceID)
		}
		r.locksMu.Unlock()
	}
}
