package store

import (
	"sync"
	"time"
)

const subscriberBuffer = 100

// MemoryStore is an in-memory implementation of [Store].
type MemoryStore struct {
	mu          sync.RWMutex
	activities  map[string]Activity
	subscribers map[chan Activity]struct{}
	subMu       sync.RWMutex
}

// NewMemoryStore creates an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		activities:  make(map[string]Activity),
		subscribers: make(map[chan Activity]struct{}),
	}
}

// Record folds a into the stored activity and notifies subscribers.
func (m *MemoryStore) Record(a Activity) Activity {
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now()
	}

	m.mu.Lock()
	prev := m.activities[a.PollerID]
	a.Attempts = prev.Attempts
	a.Successes = prev.Successes
	a.Failures = prev.Failures
	errMsg := a.Error
	a.Error = prev.Error
	if a.Name == "" {
		a.Name = prev.Name
	}

	switch a.Event {
	case EventFetch:
		a.Attempts++
	case EventSuccess:
		a.Successes++
		a.Error = nil
	case EventError:
		a.Failures++
		a.Error = errMsg
	}
	m.activities[a.PollerID] = a
	m.mu.Unlock()

	m.notifySubscribers(a)
	return a
}

// Get returns the activity recorded for pollerID.
func (m *MemoryStore) Get(pollerID string) (Activity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.activities[pollerID]
	return a, ok
}

// GetAll returns a snapshot of all records. Order is not guaranteed.
func (m *MemoryStore) GetAll() []Activity {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]Activity, 0, len(m.activities))
	for _, a := range m.activities {
		results = append(results, a)
	}
	return results
}

// Subscribe creates a subscription with a buffer of 100 updates. If the
// buffer fills, further updates are dropped for this subscriber.
func (m *MemoryStore) Subscribe() <-chan Activity {
	ch := make(chan Activity, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (m *MemoryStore) Unsubscribe(ch <-chan Activity) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// notifySubscribers sends a to every subscriber without blocking.
func (m *MemoryStore) notifySubscribers(a Activity) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- a:
		default:
			// subscriber is slow, drop the update
		}
	}
}
