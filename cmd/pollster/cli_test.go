package main

import (
	"bytes"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/jpalmerr/pollster/config"
)

// executeCmd runs the root command with args and returns captured stdout
// and any error.
func executeCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		watchCmd.Flags().Set("timeout", "0")
		watchCmd.Flags().Set("listen", "")
	}()

	err := rootCmd.Execute()
	return out.String(), err
}

// writeConfig writes content to a temp file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pollster.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestRunValidate_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
log_level: warn
targets:
  - name: job
    url: https://example.com/jobs/1
    backoff: {min: 500ms, max: 30s}
    until_body_contains: done
  - name: health
    url: https://example.com/healthz
    delay: 10s
`)

	output, err := executeCmd(t, "validate", "-c", path)
	if err != nil {
		t.Fatalf("validate command error = %v", err)
	}

	expectedPhrases := []string{
		"Config is valid!",
		"Log level: WARN",
		"Targets:   2",
		"backoff 500ms x2",
		`body contains "done"`,
		"every 10s",
		"first success",
	}
	for _, phrase := range expectedPhrases {
		if !strings.Contains(output, phrase) {
			t.Errorf("output missing %q\nGot: %s", phrase, output)
		}
	}
}

func TestRunValidate_InvalidConfig(t *testing.T) {
	path := writeConfig(t, `
targets:
  - name: ""
    url: https://example.com
`)

	_, err := executeCmd(t, "validate", "-c", path)
	if err == nil {
		t.Fatal("validate command expected error for invalid config, got nil")
	}
	if !strings.Contains(err.Error(), "name is required") {
		t.Errorf("error should mention 'name is required', got: %v", err)
	}
}

func TestRunValidate_MissingFile(t *testing.T) {
	_, err := executeCmd(t, "validate", "-c", "/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("validate command expected error for missing file, got nil")
	}
	if !strings.Contains(err.Error(), "failed to read") {
		t.Errorf("error should mention 'failed to read', got: %v", err)
	}
}

func TestVersion(t *testing.T) {
	output, err := executeCmd(t, "version")
	if err != nil {
		t.Fatalf("version command error = %v", err)
	}
	if !strings.Contains(output, "pollster dev") {
		t.Errorf("output = %q, want version line", output)
	}
}

func TestRunWatch_CompletesWhenConditionMet(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.Write([]byte(`{"state":"running"}`))
			return
		}
		w.Write([]byte(`{"state":"done"}`))
	}))
	defer server.Close()

	path := writeConfig(t, fmt.Sprintf(`
log_level: error
targets:
  - name: job
    url: %s
    delay: 100ms
    until_body_contains: done
`, server.URL))

	output, err := executeCmd(t, "watch", "-c", path, "--timeout", "10s")
	if err != nil {
		t.Fatalf("watch command error = %v\nOutput: %s", err, output)
	}

	for _, phrase := range []string{"attempt 3", "complete", "after 3 attempts", "Summary", "attempts=3 successes=3 failures=0"} {
		if !strings.Contains(output, phrase) {
			t.Errorf("output missing %q\nGot: %s", phrase, output)
		}
	}
}

func TestRunWatch_FailsOnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	path := writeConfig(t, fmt.Sprintf(`
log_level: error
targets:
  - name: missing
    url: %s
`, server.URL))

	output, err := executeCmd(t, "watch", "-c", path, "--timeout", "10s")
	if err == nil {
		t.Fatal("watch command expected error, got nil")
	}
	if !strings.Contains(err.Error(), "1 target failed") {
		t.Errorf("error = %v, want '1 target failed'", err)
	}
	if !strings.Contains(output, "unexpected status 404") {
		t.Errorf("output missing status error\nGot: %s", output)
	}
}

func TestRunWatch_TimeoutStopsTargets(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pending"))
	}))
	defer server.Close()

	path := writeConfig(t, fmt.Sprintf(`
log_level: error
targets:
  - name: slow
    url: %s
    delay: 100ms
    until_body_contains: done
`, server.URL))

	output, err := executeCmd(t, "watch", "-c", path, "--timeout", "250ms")
	if err != nil {
		t.Fatalf("watch command error = %v", err)
	}
	if !strings.Contains(output, "stop") {
		t.Errorf("output missing stop event\nGot: %s", output)
	}
	if !strings.Contains(output, "stopped") {
		t.Errorf("summary should report the target as stopped\nGot: %s", output)
	}
}

func TestRunWatch_TimeoutKeepsEarlierFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("pending"))
	}))
	defer server.Close()

	path := writeConfig(t, fmt.Sprintf(`
log_level: error
targets:
  - name: missing
    url: %s/missing
  - name: slow
    url: %s/pending
    delay: 100ms
    until_body_contains: done
`, server.URL, server.URL))

	output, err := executeCmd(t, "watch", "-c", path, "--timeout", "400ms")
	if err == nil {
		t.Fatalf("watch command expected error, got nil\nOutput: %s", output)
	}
	if !strings.Contains(err.Error(), "1 target failed") {
		t.Errorf("error = %v, want '1 target failed'", err)
	}
	if !strings.Contains(output, "failed") || !strings.Contains(output, "stopped") {
		t.Errorf("summary should report one failed and one stopped target\nGot: %s", output)
	}
}

func TestRunWatch_ListenAddressInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer ln.Close()

	path := writeConfig(t, `
log_level: error
targets:
  - name: job
    url: https://example.invalid/jobs/1
    delayed: true
    delay: 1h
`)

	_, err = executeCmd(t, "watch", "-c", path, "--listen", ln.Addr().String())
	if err == nil {
		t.Fatal("watch command expected bind error, got nil")
	}
	if !strings.Contains(err.Error(), "failed to bind") {
		t.Errorf("error = %v, want bind error", err)
	}
}

func TestRunWatch_WithListen(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"state":"done"}`))
	}))
	defer server.Close()

	path := writeConfig(t, fmt.Sprintf(`
log_level: error
targets:
  - name: job
    url: %s
    until_json: state=done
`, server.URL))

	output, err := executeCmd(t, "watch", "-c", path, "--timeout", "10s", "--listen", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("watch command error = %v\nOutput: %s", err, output)
	}
	if !strings.Contains(output, "after 1 attempts") {
		t.Errorf("output missing completion\nGot: %s", output)
	}
}

func TestDescribeUntil(t *testing.T) {
	tests := []struct {
		name string
		tc   config.TargetConfig
		want string
	}{
		{"none", config.TargetConfig{}, "first success"},
		{"body", config.TargetConfig{UntilBodyContains: "ok"}, `body contains "ok"`},
		{"json", config.TargetConfig{UntilJSON: &config.JSONCondition{Path: "data.state", Equals: "done"}}, "data.state=done"},
		{"both", config.TargetConfig{
			UntilBodyContains: "ok",
			UntilJSON:         &config.JSONCondition{Path: "state", Equals: "done"},
		}, `body contains "ok" or state=done`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := describeUntil(tt.tc); got != tt.want {
				t.Errorf("describeUntil() = %q, want %q", got, tt.want)
			}
		})
	}
}
