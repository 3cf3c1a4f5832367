package pollster

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jpalmerr/pollster/internal/clock"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestRegistry returns an isolated registry driven by a fake clock.
func newTestRegistry() (*Registry, *clock.Fake) {
	fc := clock.NewFake()
	return NewRegistry(WithLogger(testLogger()), withClock(fc)), fc
}

var errFetch = errors.New("fetch failed")

// stubResource is a scriptable Resource.
type stubResource struct {
	fail   atomic.Bool
	result any

	// block makes Fetch wait for ctx cancellation or release.
	block   bool
	release chan struct{}

	calls   atomic.Int32
	aborted atomic.Int32

	mu   sync.Mutex
	data []map[string]any
}

func (s *stubResource) Fetch(ctx context.Context, data map[string]any) (any, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.data = append(s.data, data)
	s.mu.Unlock()

	if s.block {
		select {
		case <-ctx.Done():
			s.aborted.Add(1)
			return nil, ctx.Err()
		case <-s.release:
		}
	}
	if s.fail.Load() {
		return nil, errFetch
	}
	return s.result, nil
}

func (s *stubResource) seenData() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.data...)
}

// recorder captures every event a poller emits.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func record(p *Poller) *recorder {
	r := &recorder{}
	for _, kind := range EventKinds() {
		p.On(kind, r.add)
	}
	return r
}

func (r *recorder) add(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

func (r *recorder) last(kind EventKind) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind == kind {
			return r.events[i], true
		}
	}
	return Event{}, false
}

// waitFor polls cond until it holds or the timeout elapses.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// tick waits for the poller to arm its next timer, then advances the fake
// clock by d.
func tick(t *testing.T, fc *clock.Fake, p *Poller, d time.Duration) {
	t.Helper()
	waitFor(t, "next attempt to be scheduled", func() bool {
		_, timer := p.pending()
		return timer
	})
	fc.Advance(d)
}
