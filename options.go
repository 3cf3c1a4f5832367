package pollster

import (
	"errors"
	"log/slog"
	"time"

	"github.com/jpalmerr/pollster/internal/backoff"
	"github.com/jpalmerr/pollster/internal/clock"
)

// DefaultDelay is the fixed delay between attempts when none is configured.
const DefaultDelay = time.Second

// Delay describes the wait between attempts: either a fixed Interval, or an
// exponential backoff sequence when Min is positive. See [WithDelay] and
// [WithBackoff].
type Delay = backoff.Config

// StepFunc derives the next backoff factor from the previous one.
type StepFunc = backoff.StepFunc

// Options is the complete configuration of a [Poller].
//
// Options are built from [Option] values by [Registry.Get] and
// [Poller.Configure]; every call starts from the defaults, so options are
// replaced rather than accumulated across calls.
type Options struct {
	// Delay controls the wait between attempts. Defaults to a fixed
	// [DefaultDelay].
	Delay Delay

	// Delayed makes the first attempt wait for the configured delay instead
	// of running immediately on start.
	Delayed bool

	// InitialDelay overrides the first attempt's wait when Delayed is set.
	InitialDelay time.Duration

	// Condition is evaluated before every attempt and after every successful
	// fetch, so a stateful predicate sees two calls per attempt. Polling
	// completes the first time it returns false. Defaults to always true.
	Condition func(Resource) bool

	// ContinueOnError keeps polling after a failed fetch instead of stopping.
	ContinueOnError bool

	// Data is passed verbatim to every [Resource.Fetch] call.
	Data map[string]any

	// Flush removes every listener on the poller, including those added with
	// [Poller.On], before the callbacks below are bound.
	Flush bool

	// Autostart silently starts the poller after [Registry.Get] configures it.
	Autostart bool

	// Lifecycle callbacks, each bound as a listener for its event kind.
	OnStart    Listener
	OnStop     Listener
	OnFetch    Listener
	OnSuccess  Listener
	OnError    Listener
	OnComplete Listener
}

// callbacks returns the non-nil lifecycle callbacks keyed by event kind.
func (o Options) callbacks() map[EventKind]Listener {
	all := map[EventKind]Listener{
		EventStart:    o.OnStart,
		EventStop:     o.OnStop,
		EventFetch:    o.OnFetch,
		EventSuccess:  o.OnSuccess,
		EventError:    o.OnError,
		EventComplete: o.OnComplete,
	}
	for kind, fn := range all {
		if fn == nil {
			delete(all, kind)
		}
	}
	return all
}

// Option configures a [Poller].
//
// Option implements the functional options pattern. Options return an error
// if validation fails, in which case the poller keeps its previous
// configuration.
type Option func(*Options) error

// WithOptions replaces the whole configuration with o. Later options still
// apply on top of it.
func WithOptions(o Options) Option {
	return func(opts *Options) error {
		*opts = o
		opts.Data = copyData(o.Data)
		return nil
	}
}

// WithDelay sets a fixed delay between attempts.
//
// Returns an error if d is negative. Zero selects [DefaultDelay].
func WithDelay(d time.Duration) Option {
	return func(opts *Options) error {
		if d < 0 {
			return errors.New("delay cannot be negative")
		}
		opts.Delay = backoff.Fixed(d)
		return nil
	}
}

// WithBackoff sets an exponential delay: min, then min×multiplier,
// min×multiplier², and so on, capped at max when max is positive.
// A multiplier of zero selects the default of 2.
//
// The backoff sequence restarts every time the poller is started.
//
// Example:
//
//	poller, err := pollster.Get(res, pollster.WithBackoff(100*time.Millisecond, 10*time.Second, 2))
func WithBackoff(minDelay, maxDelay time.Duration, multiplier float64) Option {
	return func(opts *Options) error {
		if minDelay <= 0 {
			return errors.New("backoff min must be positive")
		}
		cfg := backoff.Exponential(minDelay, maxDelay, multiplier)
		if err := cfg.Validate(); err != nil {
			return err
		}
		opts.Delay = cfg
		return nil
	}
}

// WithBackoffFunc is like [WithBackoff] but derives each factor from the
// previous one with step. The first factor is always 1.
func WithBackoffFunc(minDelay, maxDelay time.Duration, step StepFunc) Option {
	return func(opts *Options) error {
		if step == nil {
			return errors.New("backoff step function cannot be nil")
		}
		if minDelay <= 0 {
			return errors.New("backoff min must be positive")
		}
		cfg := backoff.Config{Min: minDelay, Max: maxDelay, Step: step}
		if err := cfg.Validate(); err != nil {
			return err
		}
		opts.Delay = cfg
		return nil
	}
}

// WithDelayed delays the first attempt by the configured delay.
func WithDelayed() Option {
	return func(opts *Options) error {
		opts.Delayed = true
		return nil
	}
}

// WithInitialDelay delays the first attempt by d, independent of the
// configured delay. It implies [WithDelayed].
func WithInitialDelay(d time.Duration) Option {
	return func(opts *Options) error {
		if d < 0 {
			return errors.New("initial delay cannot be negative")
		}
		opts.Delayed = true
		opts.InitialDelay = d
		return nil
	}
}

// WithCondition sets the predicate that keeps polling alive. When it returns
// false the poller stops and fires [EventComplete]. It is called before each
// attempt and again after each successful fetch.
func WithCondition(fn func(Resource) bool) Option {
	return func(opts *Options) error {
		if fn == nil {
			return errors.New("condition cannot be nil")
		}
		opts.Condition = fn
		return nil
	}
}

// WithContinueOnError keeps the poller running after a failed fetch.
func WithContinueOnError() Option {
	return func(opts *Options) error {
		opts.ContinueOnError = true
		return nil
	}
}

// WithData sets the passthrough parameters forwarded to every fetch.
// The map is copied.
func WithData(data map[string]any) Option {
	return func(opts *Options) error {
		opts.Data = copyData(data)
		return nil
	}
}

// WithFlush removes all existing listeners when the options are applied.
func WithFlush() Option {
	return func(opts *Options) error {
		opts.Flush = true
		return nil
	}
}

// WithAutostart silently starts the poller returned by [Registry.Get].
func WithAutostart() Option {
	return func(opts *Options) error {
		opts.Autostart = true
		return nil
	}
}

// OnEvent binds fn as the callback for kind. Applying options again with the
// same callback replaces the earlier binding rather than adding a second one.
func OnEvent(kind EventKind, fn Listener) Option {
	return func(opts *Options) error {
		switch kind {
		case EventStart:
			opts.OnStart = fn
		case EventStop:
			opts.OnStop = fn
		case EventFetch:
			opts.OnFetch = fn
		case EventSuccess:
			opts.OnSuccess = fn
		case EventError:
			opts.OnError = fn
		case EventComplete:
			opts.OnComplete = fn
		default:
			return errors.New("unknown event kind: " + string(kind))
		}
		return nil
	}
}

// OnStart binds the [EventStart] callback.
func OnStart(fn Listener) Option { return OnEvent(EventStart, fn) }

// OnStop binds the [EventStop] callback.
func OnStop(fn Listener) Option { return OnEvent(EventStop, fn) }

// OnFetch binds the [EventFetch] callback.
func OnFetch(fn Listener) Option { return OnEvent(EventFetch, fn) }

// OnSuccess binds the [EventSuccess] callback.
func OnSuccess(fn Listener) Option { return OnEvent(EventSuccess, fn) }

// OnError binds the [EventError] callback.
func OnError(fn Listener) Option { return OnEvent(EventError, fn) }

// OnComplete binds the [EventComplete] callback.
func OnComplete(fn Listener) Option { return OnEvent(EventComplete, fn) }

// resolveOptions applies opts over an empty configuration and fills defaults.
func resolveOptions(opts []Option) (Options, error) {
	var o Options
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return Options{}, err
		}
	}

	if err := o.Delay.Validate(); err != nil {
		return Options{}, err
	}
	if o.InitialDelay < 0 {
		return Options{}, errors.New("initial delay cannot be negative")
	}
	if !o.Delay.Enabled() && o.Delay.Interval == 0 {
		o.Delay = backoff.Fixed(DefaultDelay)
	}
	if o.Condition == nil {
		o.Condition = alwaysTrue
	}
	if o.InitialDelay > 0 {
		o.Delayed = true
	}
	return o, nil
}

func alwaysTrue(Resource) bool { return true }

// copyData returns a shallow copy of the map, or nil if input is nil.
func copyData(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cp := make(map[string]any, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// control holds per-call flags for Start and Stop.
type control struct {
	silent bool
}

// ControlOption adjusts a single call to [Poller.Start] or [Poller.Stop].
type ControlOption func(*control)

// Silent suppresses the start or stop event for that call only.
func Silent() ControlOption {
	return func(c *control) {
		c.silent = true
	}
}

func resolveControl(opts []ControlOption) control {
	var c control
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// RegistryOption configures a [Registry] during construction.
type RegistryOption func(*Registry)

// WithLogger sets the logger used by the registry and its pollers.
// Defaults to slog.Default().
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// withClock replaces the timer service. Used by tests.
func withClock(c clock.Clock) RegistryOption {
	return func(r *Registry) {
		r.clock = c
	}
}
