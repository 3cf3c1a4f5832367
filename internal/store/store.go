package store

import "time"

// Event names as recorded in [Activity.Event].
const (
	EventStart    = "start"
	EventStop     = "stop"
	EventFetch    = "fetch"
	EventSuccess  = "success"
	EventError    = "error"
	EventComplete = "complete"
)

// Activity is the folded state of one poller.
type Activity struct {
	// PollerID is the poller's unique identifier.
	PollerID string `json:"poller_id"`

	// Name is the display name of the polled resource.
	Name string `json:"name"`

	// Event is the most recent lifecycle event.
	Event string `json:"event"`

	// Active reports whether the poller was running after the event.
	Active bool `json:"active"`

	// Attempts counts fetch events since the record was created.
	Attempts int `json:"attempts"`

	// Successes counts successful fetches.
	Successes int `json:"successes"`

	// Failures counts failed fetches.
	Failures int `json:"failures"`

	// Error is the message of the last failure. It is cleared by the next
	// successful fetch.
	Error *string `json:"error"`

	// UpdatedAt is when the event was recorded.
	UpdatedAt time.Time `json:"updated_at"`
}

// Store records poller activity and publishes changes.
//
// Implementations must be safe for concurrent access.
type Store interface {
	// Record folds a into the stored activity for a.PollerID and notifies
	// subscribers. Counters in a are ignored; they are derived from a.Event.
	// Returns the updated record.
	Record(a Activity) Activity

	// Get returns the activity recorded for a poller.
	Get(pollerID string) (Activity, bool)

	// GetAll returns a snapshot of all records in no particular order.
	GetAll() []Activity

	// Subscribe returns a buffered channel receiving every updated record.
	// Caller must call Unsubscribe when done.
	Subscribe() <-chan Activity

	// Unsubscribe removes a subscription and closes its channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan Activity)
}
