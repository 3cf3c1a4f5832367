package pollster

import "github.com/jpalmerr/pollster/internal/emitter"

// EventKind names a poller lifecycle transition.
type EventKind string

const (
	// EventStart fires when a stopped poller is started.
	EventStart EventKind = "start"

	// EventStop fires on every non-silent call to [Poller.Stop].
	EventStop EventKind = "stop"

	// EventFetch fires immediately before the resource is fetched.
	EventFetch EventKind = "fetch"

	// EventSuccess fires after a fetch completes without error.
	EventSuccess EventKind = "success"

	// EventError fires after a fetch fails.
	EventError EventKind = "error"

	// EventComplete fires when the poll condition ends polling.
	EventComplete EventKind = "complete"
)

// String implements fmt.Stringer.
func (k EventKind) String() string {
	return string(k)
}

var eventKinds = [...]EventKind{EventStart, EventStop, EventFetch, EventSuccess, EventError, EventComplete}

// EventKinds returns every kind in lifecycle order. The slice is a fresh
// copy on each call.
func EventKinds() []EventKind {
	kinds := eventKinds
	return kinds[:]
}

// Event is delivered to listeners registered with [Poller.On].
type Event struct {
	// Kind is the transition that occurred.
	Kind EventKind

	// Poller is the poller that emitted the event.
	Poller *Poller

	// Resource is the resource bound to the poller.
	Resource Resource

	// Result is the value returned by a successful fetch ([EventSuccess] only).
	Result any

	// Err is the fetch failure ([EventError] only).
	Err error
}

// Listener receives poller events.
type Listener func(Event)

// ListenerID identifies a listener registered with [Poller.On].
type ListenerID = emitter.ID
