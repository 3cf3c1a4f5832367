// Package backoff computes the delay between poll attempts.
//
// A [Config] describes either a fixed interval or an exponential backoff
// sequence. [Next] is a pure function: callers carry the backoff factor
// between calls and pass zero to restart the sequence.
package backoff

import (
	"errors"
	"math"
	"time"
)

// DefaultMultiplier is applied when a backoff [Config] has neither a
// Multiplier nor a Step function.
const DefaultMultiplier = 2.0

// StepFunc derives the next backoff factor from the previous one.
type StepFunc func(factor float64) float64

// Config describes how the delay before the next attempt is computed.
//
// When Min is positive the delay follows an exponential sequence starting at
// Min, otherwise Interval is returned on every call.
type Config struct {
	// Interval is the fixed delay used when backoff is disabled.
	Interval time.Duration

	// Min is the first delay of the backoff sequence. Zero disables backoff.
	Min time.Duration

	// Max caps the computed delay. Zero means uncapped.
	Max time.Duration

	// Multiplier scales the factor on every call. Defaults to 2.
	Multiplier float64

	// Step overrides Multiplier with a custom factor progression.
	Step StepFunc
}

// Fixed returns a Config that always yields d.
func Fixed(d time.Duration) Config {
	return Config{Interval: d}
}

// Exponential returns a backoff Config starting at minDelay, multiplied by
// multiplier on every call and capped at maxDelay (zero for no cap).
func Exponential(minDelay, maxDelay time.Duration, multiplier float64) Config {
	return Config{Min: minDelay, Max: maxDelay, Multiplier: multiplier}
}

// Enabled reports whether the Config uses backoff rather than a fixed delay.
func (c Config) Enabled() bool {
	return c.Min > 0
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	if c.Interval < 0 {
		return errors.New("delay cannot be negative")
	}
	if c.Min < 0 {
		return errors.New("backoff min cannot be negative")
	}
	if c.Max < 0 {
		return errors.New("backoff max cannot be negative")
	}
	if c.Enabled() && c.Max > 0 && c.Max < c.Min {
		return errors.New("backoff max must not be less than min")
	}
	if c.Multiplier < 0 || math.IsNaN(c.Multiplier) {
		return errors.New("backoff multiplier must be positive")
	}
	return nil
}

// Next returns the delay for the next attempt and the factor to pass to the
// following call. A prevFactor of zero restarts the sequence at Min.
//
// The returned factor is never clamped; only the delay is capped at Max, so
// once the sequence reaches Max every later call returns Max exactly.
func Next(cfg Config, prevFactor float64) (time.Duration, float64) {
	if !cfg.Enabled() {
		return cfg.Interval, prevFactor
	}

	factor := 1.0
	if prevFactor > 0 {
		switch {
		case cfg.Step != nil:
			factor = cfg.Step(prevFactor)
		case cfg.Multiplier > 0:
			factor = prevFactor * cfg.Multiplier
		default:
			factor = prevFactor * DefaultMultiplier
		}
	}

	delay := scale(cfg.Min, factor)
	if cfg.Max > 0 && delay > cfg.Max {
		delay = cfg.Max
	}
	return delay, factor
}

// scale multiplies d by factor, rounding to whole milliseconds when d is at
// least a millisecond. The result saturates at math.MaxInt64 nanoseconds.
func scale(d time.Duration, factor float64) time.Duration {
	raw := float64(d) * factor
	if d >= time.Millisecond {
		raw = math.Round(raw/float64(time.Millisecond)) * float64(time.Millisecond)
	} else {
		raw = math.Round(raw)
	}
	if raw >= math.MaxInt64 || math.IsNaN(raw) {
		return time.Duration(math.MaxInt64)
	}
	if raw < 0 {
		return 0
	}
	return time.Duration(raw)
}
