// Package config provides YAML configuration parsing for the pollster CLI.
//
// A configuration file lists poll targets: HTTP resources together with the
// options of the poller that drives them. It is an alternative to building
// resources and pollers with the SDK directly.
//
// Example configuration:
//
//	log_level: info
//
//	targets:
//	  - name: export job
//	    url: https://${API_HOST:-localhost:8080}/jobs/42
//	    headers:
//	      Authorization: Bearer ${API_TOKEN}
//	    backoff: {min: 500ms, max: 30s}
//	    until_body_contains: '"state":"done"'
//
//	  - name: health
//	    url: https://example.com/healthz
//	    delay: 10s
//	    continue_on_error: true
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// minDelay is the smallest delay a config file may request. It keeps a typo
// like "10ms" from hammering a remote service.
const minDelay = 100 * time.Millisecond

// Config is the root configuration structure.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// LogLevel is one of debug, info, warn or error. Defaults to info.
	LogLevel string `yaml:"log_level"`

	// Targets are the resources to poll.
	Targets []TargetConfig `yaml:"targets"`
}

// TargetConfig defines one polled HTTP resource.
type TargetConfig struct {
	// Name is the display name used in output and logs.
	Name string `yaml:"name"`

	// URL is the polled URL.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	URL string `yaml:"url"`

	// Method is the HTTP method (GET, HEAD, POST). Defaults to GET.
	Method string `yaml:"method"`

	// Timeout is the per-request timeout. Defaults to 10s.
	Timeout Duration `yaml:"timeout"`

	// Headers are custom HTTP headers sent with each request.
	// Values support environment variable substitution.
	Headers map[string]string `yaml:"headers"`

	// Data is passed to every fetch and sent as query parameters.
	// Values support environment variable substitution.
	Data map[string]string `yaml:"data"`

	// Delay is the fixed delay between attempts. Defaults to 1s.
	// Mutually exclusive with Backoff.
	Delay Duration `yaml:"delay"`

	// Backoff enables exponential delays between attempts.
	Backoff *BackoffConfig `yaml:"backoff"`

	// Delayed makes the first attempt wait for the delay.
	Delayed bool `yaml:"delayed"`

	// InitialDelay is the wait before the first attempt. Implies Delayed.
	InitialDelay Duration `yaml:"initial_delay"`

	// ContinueOnError keeps polling after failed attempts.
	ContinueOnError bool `yaml:"continue_on_error"`

	// UntilBodyContains completes polling once a response body contains
	// the text.
	UntilBodyContains string `yaml:"until_body_contains"`

	// UntilJSON completes polling once a JSON field has the given value.
	// When combined with UntilBodyContains, whichever is met first wins.
	UntilJSON *JSONCondition `yaml:"until_json"`
}

// JSONCondition matches a JSON response field.
//
// It supports two formats in YAML:
//
// Shorthand string:
//
//	until_json: data.state=done
//
// Structured object:
//
//	until_json:
//	  path: data.state
//	  equals: done
type JSONCondition struct {
	// Path is the dot-separated field path.
	Path string

	// Equals is the value that completes polling, compared
	// case-insensitively.
	Equals string
}

// UnmarshalYAML implements yaml.Unmarshaler for JSONCondition.
func (j *JSONCondition) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		path, value, ok := strings.Cut(s, "=")
		if !ok {
			return fmt.Errorf("until_json %q must have the form path=value", s)
		}
		j.Path = strings.TrimSpace(path)
		j.Equals = strings.TrimSpace(value)
		return nil

	case yaml.MappingNode:
		// separate type to avoid recursing into this method
		var raw struct {
			Path   string `yaml:"path"`
			Equals string `yaml:"equals"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		j.Path = raw.Path
		j.Equals = raw.Equals
		return nil

	default:
		return fmt.Errorf("until_json must be a string or object, got %v", node.Kind)
	}
}

// BackoffConfig defines an exponential delay sequence.
type BackoffConfig struct {
	// Min is the first delay. Required.
	Min Duration `yaml:"min"`

	// Max caps the delay. Zero means uncapped.
	Max Duration `yaml:"max"`

	// Multiplier scales the delay after every attempt. Defaults to 2.
	Multiplier float64 `yaml:"multiplier"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Level returns the configured log level.
func (c *Config) Level() slog.Level {
	level, _ := parseLevel(c.LogLevel)
	return level
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log_level %q (expected debug, info, warn or error)", s)
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default}.
// Group 1 is the name, group 2 the ":-default" part, group 3 the default.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		sub := envVarPattern.FindStringSubmatch(match)
		name := sub[1]
		hasDefault := sub[2] != ""

		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		if hasDefault {
			return sub[3]
		}
		firstErr = fmt.Errorf("environment variable %q is not set", name)
		return match
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in URL, header and data values.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if len(c.Targets) == 0 {
		return errors.New("at least one target must be defined")
	}

	seen := make(map[string]int, len(c.Targets))
	for i := range c.Targets {
		t := &c.Targets[i]
		if t.Name == "" {
			return fmt.Errorf("targets[%d]: name is required", i)
		}
		if prev, dup := seen[t.Name]; dup {
			return fmt.Errorf("targets[%d]: duplicate name %q (also targets[%d])", i, t.Name, prev)
		}
		seen[t.Name] = i

		if err := t.expandAndValidate(); err != nil {
			return fmt.Errorf("targets[%d] (%s): %w", i, t.Name, err)
		}
	}
	return nil
}

func (t *TargetConfig) expandAndValidate() error {
	if t.URL == "" {
		return errors.New("url is required")
	}
	expanded, err := expandEnvVars(t.URL)
	if err != nil {
		return fmt.Errorf("url: %w", err)
	}
	t.URL = expanded

	parsed, err := url.Parse(t.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", parsed.Scheme)
	}

	for k, v := range t.Headers {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("headers[%s]: %w", k, err)
		}
		t.Headers[k] = expanded
	}
	for k, v := range t.Data {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("data[%s]: %w", k, err)
		}
		t.Data[k] = expanded
	}

	t.Method = strings.ToUpper(t.Method)
	if t.Method != "" && t.Method != "GET" && t.Method != "HEAD" && t.Method != "POST" {
		return errors.New("method must be GET, HEAD, or POST")
	}

	if t.Timeout.Duration() < 0 {
		return fmt.Errorf("timeout cannot be negative, got %s", t.Timeout.Duration())
	}

	if t.Delay != 0 && t.Backoff != nil {
		return errors.New("delay and backoff are mutually exclusive")
	}
	if t.Delay != 0 && t.Delay.Duration() < minDelay {
		return fmt.Errorf("delay must be at least %s, got %s", minDelay, t.Delay.Duration())
	}
	if b := t.Backoff; b != nil {
		if b.Min.Duration() < minDelay {
			return fmt.Errorf("backoff.min must be at least %s, got %s", minDelay, b.Min.Duration())
		}
		if b.Max != 0 && b.Max < b.Min {
			return fmt.Errorf("backoff.max (%s) must not be less than backoff.min (%s)", b.Max.Duration(), b.Min.Duration())
		}
		if b.Multiplier != 0 && b.Multiplier < 1 {
			return fmt.Errorf("backoff.multiplier must be at least 1, got %v", b.Multiplier)
		}
	}
	if t.InitialDelay.Duration() < 0 {
		return fmt.Errorf("initial_delay cannot be negative, got %s", t.InitialDelay.Duration())
	}
	if j := t.UntilJSON; j != nil {
		if j.Path == "" {
			return errors.New("until_json requires a path")
		}
		if strings.HasPrefix(j.Path, ".") || strings.HasSuffix(j.Path, ".") || strings.Contains(j.Path, "..") {
			return fmt.Errorf("until_json path %q has an empty segment", j.Path)
		}
	}
	return nil
}
