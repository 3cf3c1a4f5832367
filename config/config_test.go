package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParse_MinimalConfig(t *testing.T) {
	yaml := `
targets:
  - name: Test
    url: https://example.com
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Level() != slog.LevelInfo {
		t.Errorf("Level() = %v, want info", cfg.Level())
	}
	if len(cfg.Targets) != 1 {
		t.Fatalf("len(Targets) = %d, want 1", len(cfg.Targets))
	}
	tc := cfg.Targets[0]
	if tc.Delay != 0 || tc.Backoff != nil || tc.Delayed || tc.ContinueOnError {
		t.Errorf("unexpected non-default fields: %+v", tc)
	}
}

func TestParse_FullTargetConfig(t *testing.T) {
	yaml := `
log_level: debug

targets:
  - name: Full Test
    url: https://api.example.com/jobs/1
    method: post
    timeout: 5s
    headers:
      Authorization: Bearer token123
    data:
      verbose: "1"
    backoff:
      min: 200ms
      max: 10s
      multiplier: 3
    delayed: true
    initial_delay: 500ms
    continue_on_error: true
    until_body_contains: done
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Level() != slog.LevelDebug {
		t.Errorf("Level() = %v, want debug", cfg.Level())
	}

	tc := cfg.Targets[0]
	if tc.Name != "Full Test" {
		t.Errorf("Name = %q, want %q", tc.Name, "Full Test")
	}
	if tc.Method != "POST" {
		t.Errorf("Method = %q, want POST", tc.Method)
	}
	if tc.Timeout.Duration() != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", tc.Timeout.Duration())
	}
	if tc.Headers["Authorization"] != "Bearer token123" {
		t.Errorf("Headers[Authorization] = %q", tc.Headers["Authorization"])
	}
	if tc.Data["verbose"] != "1" {
		t.Errorf("Data[verbose] = %q, want 1", tc.Data["verbose"])
	}
	if tc.Backoff == nil {
		t.Fatal("Backoff = nil")
	}
	if tc.Backoff.Min.Duration() != 200*time.Millisecond || tc.Backoff.Max.Duration() != 10*time.Second || tc.Backoff.Multiplier != 3 {
		t.Errorf("Backoff = %+v", *tc.Backoff)
	}
	if !tc.Delayed || tc.InitialDelay.Duration() != 500*time.Millisecond {
		t.Errorf("Delayed=%v InitialDelay=%v", tc.Delayed, tc.InitialDelay.Duration())
	}
	if !tc.ContinueOnError {
		t.Error("ContinueOnError = false")
	}
	if tc.UntilBodyContains != "done" {
		t.Errorf("UntilBodyContains = %q, want done", tc.UntilBodyContains)
	}
}

func TestParse_EnvVarSubstitution(t *testing.T) {
	t.Setenv("POLLSTER_TEST_HOST", "api.internal")
	t.Setenv("POLLSTER_TEST_TOKEN", "secret")

	yaml := `
targets:
  - name: Env
    url: https://${POLLSTER_TEST_HOST}/jobs
    headers:
      Authorization: Bearer ${POLLSTER_TEST_TOKEN}
    data:
      host: ${POLLSTER_TEST_HOST}
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	tc := cfg.Targets[0]
	if tc.URL != "https://api.internal/jobs" {
		t.Errorf("URL = %q", tc.URL)
	}
	if tc.Headers["Authorization"] != "Bearer secret" {
		t.Errorf("Headers[Authorization] = %q", tc.Headers["Authorization"])
	}
	if tc.Data["host"] != "api.internal" {
		t.Errorf("Data[host] = %q", tc.Data["host"])
	}
}

func TestParse_EnvVarDefault(t *testing.T) {
	yaml := `
targets:
  - name: Default
    url: https://${POLLSTER_TEST_UNSET_HOST:-localhost:8080}/status
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Targets[0].URL != "https://localhost:8080/status" {
		t.Errorf("URL = %q", cfg.Targets[0].URL)
	}
}

func TestParse_EnvVarMissing(t *testing.T) {
	yaml := `
targets:
  - name: Missing
    url: https://${POLLSTER_TEST_DEFINITELY_UNSET}/status
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("Parse() error = nil, want error")
	}
	if !strings.Contains(err.Error(), "POLLSTER_TEST_DEFINITELY_UNSET") {
		t.Errorf("error = %v, want variable name", err)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "no targets",
			yaml:    `log_level: info`,
			wantErr: "at least one target",
		},
		{
			name: "missing name",
			yaml: `
targets:
  - url: https://example.com`,
			wantErr: "targets[0]: name is required",
		},
		{
			name: "duplicate name",
			yaml: `
targets:
  - name: a
    url: https://example.com
  - name: a
    url: https://example.org`,
			wantErr: "duplicate name",
		},
		{
			name: "missing url",
			yaml: `
targets:
  - name: a`,
			wantErr: "targets[0] (a): url is required",
		},
		{
			name: "bad scheme",
			yaml: `
targets:
  - name: a
    url: ftp://example.com`,
			wantErr: "url scheme must be http or https",
		},
		{
			name: "no scheme",
			yaml: `
targets:
  - name: a
    url: example.com/health`,
			wantErr: "url scheme must be http or https",
		},
		{
			name: "bad method",
			yaml: `
targets:
  - name: a
    url: https://example.com
    method: DELETE`,
			wantErr: "method must be GET, HEAD, or POST",
		},
		{
			name: "negative timeout",
			yaml: `
targets:
  - name: a
    url: https://example.com
    timeout: -1s`,
			wantErr: "timeout cannot be negative",
		},
		{
			name: "delay and backoff",
			yaml: `
targets:
  - name: a
    url: https://example.com
    delay: 1s
    backoff: {min: 1s}`,
			wantErr: "mutually exclusive",
		},
		{
			name: "delay too small",
			yaml: `
targets:
  - name: a
    url: https://example.com
    delay: 10ms`,
			wantErr: "delay must be at least 100ms",
		},
		{
			name: "backoff without min",
			yaml: `
targets:
  - name: a
    url: https://example.com
    backoff: {max: 1s}`,
			wantErr: "backoff.min must be at least",
		},
		{
			name: "backoff max below min",
			yaml: `
targets:
  - name: a
    url: https://example.com
    backoff: {min: 2s, max: 1s}`,
			wantErr: "must not be less than backoff.min",
		},
		{
			name: "backoff multiplier below one",
			yaml: `
targets:
  - name: a
    url: https://example.com
    backoff: {min: 1s, multiplier: 0.5}`,
			wantErr: "backoff.multiplier must be at least 1",
		},
		{
			name: "negative initial delay",
			yaml: `
targets:
  - name: a
    url: https://example.com
    initial_delay: -5s`,
			wantErr: "initial_delay cannot be negative",
		},
		{
			name: "unknown log level",
			yaml: `
log_level: loud
targets:
  - name: a
    url: https://example.com`,
			wantErr: "unknown log_level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Parse() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("targets: [unclosed"))
	if err == nil {
		t.Fatal("Parse() error = nil, want error")
	}
	if !strings.Contains(err.Error(), "failed to parse YAML") {
		t.Errorf("error = %v", err)
	}
}

func TestParse_InvalidDuration(t *testing.T) {
	yaml := `
targets:
  - name: a
    url: https://example.com
    delay: soon
`
	_, err := Parse([]byte(yaml))
	if err == nil || !strings.Contains(err.Error(), `invalid duration "soon"`) {
		t.Errorf("Parse() error = %v, want invalid duration", err)
	}
}

func TestConfig_Level(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
	}

	for _, tt := range tests {
		cfg := &Config{LogLevel: tt.in}
		if got := cfg.Level(); got != tt.want {
			t.Errorf("Level(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("POLLSTER_TEST_A", "alpha")
	t.Setenv("POLLSTER_TEST_EMPTY", "")

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"plain", "plain", false},
		{"${POLLSTER_TEST_A}", "alpha", false},
		{"x-${POLLSTER_TEST_A}-${POLLSTER_TEST_A}", "x-alpha-alpha", false},
		{"${POLLSTER_TEST_EMPTY:-fallback}", "", false},
		{"${POLLSTER_TEST_NOPE:-fallback}", "fallback", false},
		{"${POLLSTER_TEST_NOPE:-}", "", false},
		{"${POLLSTER_TEST_NOPE}", "", true},
	}

	for _, tt := range tests {
		got, err := expandEnvVars(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("expandEnvVars(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pollster.yaml")
	content := `
targets:
  - name: file
    url: https://example.com
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Targets[0].Name != "file" {
		t.Errorf("Name = %q, want file", cfg.Targets[0].Name)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() error = nil for missing file")
	}
}

func TestParse_UntilJSON(t *testing.T) {
	tests := []struct {
		name       string
		value      string
		wantPath   string
		wantEquals string
	}{
		{"shorthand", `data.state=done`, "data.state", "done"},
		{"shorthand with spaces", `"state = ready"`, "state", "ready"},
		{"structured", "{path: job.status, equals: finished}", "job.status", "finished"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			yaml := "targets:\n  - name: a\n    url: https://example.com\n    until_json: " + tt.value + "\n"
			cfg, err := Parse([]byte(yaml))
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			j := cfg.Targets[0].UntilJSON
			if j == nil {
				t.Fatal("UntilJSON = nil")
			}
			if j.Path != tt.wantPath || j.Equals != tt.wantEquals {
				t.Errorf("UntilJSON = %+v, want %s=%s", *j, tt.wantPath, tt.wantEquals)
			}
		})
	}
}

func TestParse_UntilJSONInvalid(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		wantErr string
	}{
		{"no equals sign", "state", "must have the form path=value"},
		{"empty path", "=done", "until_json requires a path"},
		{"empty segment", "data..state=done", "empty segment"},
		{"sequence", "[a, b]", "must be a string or object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			yaml := "targets:\n  - name: a\n    url: https://example.com\n    until_json: " + tt.value + "\n"
			_, err := Parse([]byte(yaml))
			if err == nil {
				t.Fatal("Parse() error = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want containing %q", err, tt.wantErr)
			}
		})
	}
}
