package pollster

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/jpalmerr/pollster/internal/clock"
)

var (
	// ErrNilResource is returned by [Registry.Get] for a nil resource.
	ErrNilResource = errors.New("resource cannot be nil")

	// ErrUnidentifiableResource is returned by [Registry.Get] when the
	// resource is not a pointer and therefore has no stable identity.
	ErrUnidentifiableResource = errors.New("resource must be a pointer to be keyed by identity")
)

// Registry maps resources to their pollers and guarantees at most one
// [Poller] per resource.
//
// Resources are keyed by identity: two distinct resources with identical
// contents get distinct pollers. A process-wide registry is available via
// [Default] and the package-level [Get], [Size] and [Reset] functions;
// tests and embedders can create isolated registries with [NewRegistry].
//
// All methods are safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	pollers map[Resource]*Poller
	clock   clock.Clock
	logger  *slog.Logger
}

// NewRegistry creates an empty [Registry].
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		pollers: make(map[Resource]*Poller),
		clock:   clock.Real(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the poller for res, creating it on first use, and configures
// it with opts.
//
// An existing poller is reconfigured, which stops it silently: options are
// replaced, not merged. With [WithAutostart] the poller is started silently
// after configuration.
//
// Returns an error if res has no identity or an option is invalid. When a
// new poller fails configuration it is not registered.
func (r *Registry) Get(res Resource, opts ...Option) (*Poller, error) {
	if err := checkIdentity(res); err != nil {
		return nil, err
	}

	r.mu.Lock()
	p, existed := r.pollers[res]
	if !existed {
		p = newPoller(r, res)
		r.pollers[res] = p
	}
	r.mu.Unlock()

	if !existed {
		r.logger.Debug("poller registered", "poller_id", p.id.String())
	}

	if _, err := p.Configure(opts...); err != nil {
		if !existed {
			r.remove(p)
		}
		return nil, fmt.Errorf("failed to configure poller: %w", err)
	}

	if p.Options().Autostart {
		p.Start(Silent())
	}
	return p, nil
}

// Size returns the number of registered pollers.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pollers)
}

// Pollers returns a snapshot of the registered pollers in no particular order.
func (r *Registry) Pollers() []*Poller {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*Poller, 0, len(r.pollers))
	for _, p := range r.pollers {
		out = append(out, p)
	}
	return out
}

// Reset stops every registered poller and empties the registry.
//
// Listeners are kept, so each poller emits [EventStop]. Pollers obtained
// before Reset remain usable but are no longer registered; a later [Get]
// for the same resource creates a new poller.
func (r *Registry) Reset() {
	r.mu.Lock()
	pollers := make([]*Poller, 0, len(r.pollers))
	for _, p := range r.pollers {
		pollers = append(pollers, p)
	}
	r.pollers = make(map[Resource]*Poller)
	r.mu.Unlock()

	for _, p := range pollers {
		p.Stop()
		p.detachResource()
	}
	r.logger.Debug("registry reset", "pollers", len(pollers))
}

// remove unregisters p. It reports whether p was registered.
func (r *Registry) remove(p *Poller) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.pollers[p.resource]; !ok || current != p {
		return false
	}
	delete(r.pollers, p.resource)
	return true
}

// checkIdentity rejects resources that cannot be keyed by identity.
func checkIdentity(res Resource) error {
	if res == nil {
		return ErrNilResource
	}
	v := reflect.ValueOf(res)
	if v.Kind() != reflect.Pointer {
		return fmt.Errorf("%w: got %T", ErrUnidentifiableResource, res)
	}
	if v.IsNil() {
		return ErrNilResource
	}
	return nil
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide [Registry].
func Default() *Registry {
	return defaultRegistry
}

// Get returns the poller for res from the [Default] registry.
func Get(res Resource, opts ...Option) (*Poller, error) {
	return defaultRegistry.Get(res, opts...)
}

// Size returns the number of pollers in the [Default] registry.
func Size() int {
	return defaultRegistry.Size()
}

// Reset stops and removes every poller in the [Default] registry.
func Reset() {
	defaultRegistry.Reset()
}
