package config

import (
	"sort"

	"github.com/jpalmerr/pollster"
)

// Target is a configured resource together with the options of its poller.
type Target struct {
	Name     string
	Resource *pollster.HTTPResource
	Options  []pollster.Option
}

// BuildTargets converts parsed configuration into SDK resources and poller
// options, in file order.
func BuildTargets(cfg *Config) ([]Target, error) {
	targets := make([]Target, 0, len(cfg.Targets))
	for _, tc := range cfg.Targets {
		t, err := buildTarget(tc)
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, nil
}

func buildTarget(tc TargetConfig) (Target, error) {
	res, err := pollster.NewHTTPResource(tc.URL, resourceOptions(tc)...)
	if err != nil {
		return Target{}, err
	}
	return Target{
		Name:     tc.Name,
		Resource: res,
		Options:  pollerOptions(tc),
	}, nil
}

func resourceOptions(tc TargetConfig) []pollster.HTTPOption {
	opts := []pollster.HTTPOption{pollster.WithName(tc.Name)}

	if tc.Method != "" {
		opts = append(opts, pollster.WithMethod(tc.Method))
	}
	if tc.Timeout != 0 {
		opts = append(opts, pollster.WithTimeout(tc.Timeout.Duration()))
	}
	if len(tc.Headers) > 0 {
		opts = append(opts, pollster.WithHeaders(mapToKeyValuePairs(tc.Headers)...))
	}
	return opts
}

func pollerOptions(tc TargetConfig) []pollster.Option {
	var opts []pollster.Option

	switch {
	case tc.Backoff != nil:
		opts = append(opts, pollster.WithBackoff(
			tc.Backoff.Min.Duration(), tc.Backoff.Max.Duration(), tc.Backoff.Multiplier))
	case tc.Delay != 0:
		opts = append(opts, pollster.WithDelay(tc.Delay.Duration()))
	}

	if tc.Delayed {
		opts = append(opts, pollster.WithDelayed())
	}
	if tc.InitialDelay != 0 {
		opts = append(opts, pollster.WithInitialDelay(tc.InitialDelay.Duration()))
	}
	if tc.ContinueOnError {
		opts = append(opts, pollster.WithContinueOnError())
	}
	if cond := condition(tc); cond != nil {
		opts = append(opts, pollster.WithCondition(cond))
	}
	if len(tc.Data) > 0 {
		data := make(map[string]any, len(tc.Data))
		for k, v := range tc.Data {
			data[k] = v
		}
		opts = append(opts, pollster.WithData(data))
	}
	return opts
}

// condition combines the target's completion conditions, or returns nil when
// none is configured.
func condition(tc TargetConfig) func(pollster.Resource) bool {
	var conds []func(pollster.Resource) bool
	if tc.UntilBodyContains != "" {
		conds = append(conds, pollster.UntilBodyContains(tc.UntilBodyContains))
	}
	if tc.UntilJSON != nil {
		conds = append(conds, pollster.UntilJSONField(tc.UntilJSON.Path, tc.UntilJSON.Equals))
	}

	switch len(conds) {
	case 0:
		return nil
	case 1:
		return conds[0]
	default:
		return pollster.All(conds...)
	}
}

// mapToKeyValuePairs converts a map to a slice of key-value pairs sorted by key.
func mapToKeyValuePairs(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}
