package pollster

import (
	"context"

	"github.com/google/uuid"
)

// Resource is anything a [Poller] can fetch.
//
// Fetch performs one remote read. A nil error is a successful attempt and the
// returned value is forwarded unmodified to [EventSuccess] listeners; a
// non-nil error is a failed attempt routed to [EventError].
//
// The context is the abort capability of the attempt: it is cancelled when
// the poller stops while the fetch is in flight. Implementations that ignore
// the context are still safe; a late result is discarded.
//
// data carries the passthrough parameters configured with [WithData]. It is
// the same map on every attempt and must be treated as read-only.
//
// Resources are keyed by identity in a [Registry], so implementations must
// be pointer types.
type Resource interface {
	Fetch(ctx context.Context, data map[string]any) (any, error)
}

// DestroyNotifier is implemented by resources that announce their own
// destruction. When fn is invoked, a poller bound to such a resource stops,
// emitting [EventStop], and leaves its [Registry]. Listeners stay attached.
type DestroyNotifier interface {
	// OnDestroy registers fn and returns a function that unregisters it.
	OnDestroy(fn func()) (cancel func())
}

// FetchFunc is the signature of [Resource.Fetch].
type FetchFunc func(ctx context.Context, data map[string]any) (any, error)

// FuncResource adapts a [FetchFunc] to a [Resource].
//
// Each FuncResource carries a unique ID so that two resources wrapping the
// same function are still distinct registry entries.
type FuncResource struct {
	id    uuid.UUID
	fetch FetchFunc
}

// NewFuncResource wraps fn as a [Resource].
func NewFuncResource(fn FetchFunc) *FuncResource {
	return &FuncResource{id: uuid.New(), fetch: fn}
}

// ID returns the resource's unique identifier.
func (r *FuncResource) ID() uuid.UUID {
	return r.id
}

// Fetch calls the wrapped function.
func (r *FuncResource) Fetch(ctx context.Context, data map[string]any) (any, error) {
	return r.fetch(ctx, data)
}
