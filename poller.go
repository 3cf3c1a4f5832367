package pollster

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/pollster/internal/backoff"
	"github.com/jpalmerr/pollster/internal/clock"
	"github.com/jpalmerr/pollster/internal/emitter"
)

// Poller owns the polling lifecycle of a single [Resource].
//
// A Poller is either stopped or running. While running it fetches the
// resource, waits for the configured delay and fetches again, until it is
// stopped, its condition returns false, or a fetch fails without
// [WithContinueOnError]. Every transition is reported as an [Event].
//
// Pollers are obtained from a [Registry], which guarantees one poller per
// resource. The same Poller survives any number of start/stop cycles.
//
// All methods are safe for concurrent use. Listeners run synchronously on
// the goroutine that caused the transition, which is the caller's goroutine
// for Start and Stop, and a timer or fetch goroutine otherwise.
type Poller struct {
	id       uuid.UUID
	resource Resource
	registry *Registry
	clock    clock.Clock
	logger   *slog.Logger
	events   emitter.Emitter[EventKind, Event]

	mu     sync.Mutex
	opts   Options
	active bool

	// gen identifies the current run. It changes on every start and stop so
	// that timers and fetches belonging to an earlier run are ignored.
	gen uint64

	// factor is the backoff factor since the last start; 0 means reset.
	factor float64

	// cancelOp aborts the in-flight fetch; timer is the scheduled attempt.
	cancelOp context.CancelFunc
	timer    clock.Timer

	bound      []emitter.ID // listeners bound from Options callbacks
	subscribed bool
	detach     func()
}

func newPoller(r *Registry, res Resource) *Poller {
	opts, _ := resolveOptions(nil)
	id := uuid.New()
	return &Poller{
		id:       id,
		resource: res,
		registry: r,
		clock:    r.clock,
		logger:   r.logger.With("poller_id", id.String()),
		opts:     opts,
	}
}

// ID returns the poller's unique identifier, used in logs.
func (p *Poller) ID() uuid.UUID {
	return p.id
}

// Resource returns the resource the poller is bound to.
func (p *Poller) Resource() Resource {
	return p.resource
}

// Options returns a copy of the current configuration with defaults applied.
func (p *Poller) Options() Options {
	p.mu.Lock()
	defer p.mu.Unlock()

	o := p.opts
	o.Data = copyData(o.Data)
	return o
}

// Configure replaces the poller's options.
//
// Options are applied over the defaults, not over the previous
// configuration. Callbacks from the previous configuration are unbound and
// the new ones bound, so configuring twice with the same callback does not
// make it fire twice. [WithFlush] additionally removes listeners added with
// [Poller.On].
//
// Configure always leaves the poller stopped, without emitting
// [EventStop]. On a validation error the poller is left unchanged.
func (p *Poller) Configure(opts ...Option) (*Poller, error) {
	o, err := resolveOptions(opts)
	if err != nil {
		return p, err
	}

	p.mu.Lock()
	p.opts = o
	if o.Flush {
		p.events.Clear()
	} else {
		for _, id := range p.bound {
			p.events.Off(id)
		}
	}
	p.bound = p.bound[:0]
	callbacks := o.callbacks()
	for _, kind := range eventKinds {
		if fn, ok := callbacks[kind]; ok {
			p.bound = append(p.bound, p.events.On(kind, p.guard(kind, fn)))
		}
	}
	subscribe := !p.subscribed
	p.subscribed = true
	p.mu.Unlock()

	if notifier, ok := p.resource.(DestroyNotifier); ok && subscribe {
		cancel := notifier.OnDestroy(func() {
			p.logger.Debug("resource destroyed")
			p.Stop()
			p.registry.remove(p)
			p.detachResource()
		})
		p.mu.Lock()
		p.detach = cancel
		p.mu.Unlock()
	}

	p.Stop(Silent())
	return p, nil
}

// Start begins polling.
//
// Start is a no-op if the poller is already running; in particular it does
// not emit [EventStart] again or restart the backoff sequence. Otherwise it
// emits [EventStart] (unless [Silent]), resets the backoff sequence and runs
// the first attempt immediately, or schedules it when the poller is
// configured with [WithDelayed] or [WithInitialDelay].
func (p *Poller) Start(opts ...ControlOption) *Poller {
	ctl := resolveControl(opts)

	p.mu.Lock()
	if p.active {
		p.mu.Unlock()
		return p
	}
	p.active = true
	p.gen++
	p.factor = 0
	gen := p.gen
	delayed := p.opts.Delayed
	p.mu.Unlock()

	p.logger.Debug("poller started")
	if !ctl.silent {
		p.emit(Event{Kind: EventStart})
	}

	if !delayed {
		p.run(gen)
		return p
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current(gen) {
		d := p.opts.InitialDelay
		if d == 0 {
			d = p.nextDelayLocked()
		}
		p.scheduleLocked(gen, d)
	}
	return p
}

// Stop halts polling.
//
// Stop aborts an in-flight fetch by cancelling its context, cancels the
// scheduled attempt and emits [EventStop] (unless [Silent]). It may be
// called any number of times; every non-silent call emits [EventStop], but
// an in-flight fetch is only aborted once.
func (p *Poller) Stop(opts ...ControlOption) *Poller {
	ctl := resolveControl(opts)

	p.mu.Lock()
	wasActive := p.active
	cancel, timer := p.haltLocked()
	p.mu.Unlock()

	release(cancel, timer)
	if wasActive {
		p.logger.Debug("poller stopped")
	}
	if !ctl.silent {
		p.emit(Event{Kind: EventStop})
	}
	return p
}

// Active reports whether the poller is running.
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Destroy stops the poller, removes all of its listeners, stops watching the
// resource for destruction and removes the poller from its registry.
//
// Destroy is a no-op for a poller that is no longer registered, so calling
// it twice is safe.
func (p *Poller) Destroy() {
	if !p.registry.remove(p) {
		return
	}
	p.Stop()
	p.events.Clear()

	p.mu.Lock()
	p.bound = nil
	p.mu.Unlock()
	p.detachResource()
	p.logger.Debug("poller destroyed")
}

// On registers fn for events of the given kind.
func (p *Poller) On(kind EventKind, fn Listener) ListenerID {
	return p.events.On(kind, p.guard(kind, fn))
}

// Off removes a listener registered with [Poller.On]. It reports whether a
// listener was removed.
func (p *Poller) Off(id ListenerID) bool {
	return p.events.Off(id)
}

// NextDelay advances the backoff sequence and returns the delay it yields,
// exactly as the scheduler does before each attempt.
func (p *Poller) NextDelay() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nextDelayLocked()
}

// run performs one attempt of run gen.
func (p *Poller) run(gen uint64) {
	p.mu.Lock()
	if !p.current(gen) {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	cond := p.opts.Condition
	p.mu.Unlock()

	if !p.check(cond) {
		p.complete(gen)
		return
	}

	p.emit(Event{Kind: EventFetch})

	p.mu.Lock()
	if !p.current(gen) {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancelOp = cancel
	data := p.opts.Data
	p.mu.Unlock()

	go func() {
		result, err := p.fetch(ctx, data)
		p.settle(gen, result, err)
	}()
}

// settle handles the outcome of a fetch started by run gen.
func (p *Poller) settle(gen uint64, result any, err error) {
	p.mu.Lock()
	if !p.current(gen) {
		p.mu.Unlock()
		return
	}
	cancel := p.cancelOp
	p.cancelOp = nil
	opts := p.opts
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if err != nil {
		p.logger.Warn("fetch failed", "error", err.Error(), "continue", opts.ContinueOnError)
		if opts.ContinueOnError {
			p.emit(Event{Kind: EventError, Err: err})
			p.scheduleNext(gen)
			return
		}
		p.stopRun(gen)
		p.emit(Event{Kind: EventError, Err: err})
		return
	}

	p.emit(Event{Kind: EventSuccess, Result: result})

	p.mu.Lock()
	live := p.current(gen)
	p.mu.Unlock()
	if !live {
		return
	}
	if !p.check(opts.Condition) {
		p.complete(gen)
		return
	}
	p.scheduleNext(gen)
}

// complete ends run gen because its condition returned false.
func (p *Poller) complete(gen uint64) {
	if !p.stopRun(gen) {
		return
	}
	p.logger.Debug("poller complete")
	p.emit(Event{Kind: EventComplete})
}

// stopRun silently stops the poller if gen is still the current run.
func (p *Poller) stopRun(gen uint64) bool {
	p.mu.Lock()
	if !p.current(gen) {
		p.mu.Unlock()
		return false
	}
	cancel, timer := p.haltLocked()
	p.mu.Unlock()

	release(cancel, timer)
	return true
}

func (p *Poller) scheduleNext(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current(gen) {
		p.scheduleLocked(gen, p.nextDelayLocked())
	}
}

// scheduleLocked arms the timer for the next attempt of run gen.
// Must be called with p.mu held.
func (p *Poller) scheduleLocked(gen uint64, d time.Duration) {
	p.timer = p.clock.AfterFunc(d, func() { p.run(gen) })
}

// nextDelayLocked must be called with p.mu held.
func (p *Poller) nextDelayLocked() time.Duration {
	d, factor := backoff.Next(p.opts.Delay, p.factor)
	p.factor = factor
	return d
}

// current reports whether gen is the live run. Must be called with p.mu held.
func (p *Poller) current(gen uint64) bool {
	return p.active && p.gen == gen
}

// haltLocked marks the poller stopped and detaches the pending operation and
// timer. Must be called with p.mu held; the returned handles are released by
// the caller after unlocking.
func (p *Poller) haltLocked() (context.CancelFunc, clock.Timer) {
	p.active = false
	p.gen++
	cancel, timer := p.cancelOp, p.timer
	p.cancelOp = nil
	p.timer = nil
	return cancel, timer
}

func release(cancel context.CancelFunc, timer clock.Timer) {
	if cancel != nil {
		cancel()
	}
	if timer != nil {
		timer.Stop()
	}
}

func (p *Poller) detachResource() {
	p.mu.Lock()
	detach := p.detach
	p.detach = nil
	p.subscribed = false
	p.mu.Unlock()

	if detach != nil {
		detach()
	}
}

// pending reports whether an operation and a timer handle are held.
func (p *Poller) pending() (op, timer bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancelOp != nil, p.timer != nil
}

func (p *Poller) emit(e Event) {
	e.Poller = p
	e.Resource = p.resource
	p.events.Emit(e.Kind, e)
}

// guard wraps a listener with panic recovery so that a misbehaving listener
// cannot break the poll loop or the remaining listeners.
func (p *Poller) guard(kind EventKind, fn Listener) func(Event) {
	return func(e Event) {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("listener panicked",
					"correlation_id", uuid.NewString(),
					"event", kind.String(),
					"panic", fmt.Sprintf("%v", r),
					"stack", string(debug.Stack()),
				)
			}
		}()
		fn(e)
	}
}

// check evaluates the condition. A panicking condition ends polling like a
// false result.
func (p *Poller) check(cond func(Resource) bool) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("condition panicked",
				"correlation_id", uuid.NewString(),
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			ok = false
		}
	}()
	return cond(p.resource)
}

// fetch calls the resource with panic recovery. A panic becomes a failed
// attempt carrying a correlation ID; the stack is logged.
func (p *Poller) fetch(ctx context.Context, data map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			p.logger.Error("fetch panicked",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			result = nil
			err = fmt.Errorf("fetch panic (correlation_id: %s)", correlationID)
		}
	}()
	return p.resource.Fetch(ctx, data)
}
