// Package emitter provides a small synchronous event-notification component.
//
// An [Emitter] maps event kinds to listeners. Listeners are invoked in
// registration order on the goroutine that calls [Emitter.Emit], outside of
// the emitter's lock, so a listener may register or remove listeners
// (including itself) without deadlocking.
package emitter

import "sync"

// ID identifies a registered listener. The zero ID is never issued.
type ID uint64

type listener[K comparable, V any] struct {
	id   ID
	kind K
	fn   func(V)
}

// Emitter delivers values of type V to listeners registered for a kind K.
//
// The zero value is ready to use. All methods are safe for concurrent use.
type Emitter[K comparable, V any] struct {
	mu        sync.RWMutex
	nextID    ID
	listeners []listener[K, V]
}

// On registers fn for kind and returns an ID that can be passed to [Emitter.Off].
func (e *Emitter[K, V]) On(kind K, fn func(V)) ID {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	e.listeners = append(e.listeners, listener[K, V]{id: e.nextID, kind: kind, fn: fn})
	return e.nextID
}

// Off removes the listener with the given ID. It reports whether a listener
// was removed.
func (e *Emitter[K, V]) Off(id ID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, l := range e.listeners {
		if l.id == id {
			e.listeners = append(e.listeners[:i:i], e.listeners[i+1:]...)
			return true
		}
	}
	return false
}

// Clear removes every listener.
func (e *Emitter[K, V]) Clear() {
	e.mu.Lock()
	e.listeners = nil
	e.mu.Unlock()
}

// Len returns the number of registered listeners.
func (e *Emitter[K, V]) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.listeners)
}

// Emit calls every listener registered for kind at the time of the call.
func (e *Emitter[K, V]) Emit(kind K, v V) {
	e.mu.RLock()
	matched := make([]func(V), 0, len(e.listeners))
	for _, l := range e.listeners {
		if l.kind == kind {
			matched = append(matched, l.fn)
		}
	}
	e.mu.RUnlock()

	for _, fn := range matched {
		fn(v)
	}
}
