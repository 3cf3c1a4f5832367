package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/jpalmerr/pollster"
	"github.com/jpalmerr/pollster/config"
	"github.com/jpalmerr/pollster/internal/server"
	"github.com/jpalmerr/pollster/internal/store"
	"github.com/spf13/cobra"
)

var (
	bold   = color.New(color.Bold)
	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
	blue   = color.New(color.FgBlue)
	faint  = color.New(color.Faint)
)

// newLogger creates a JSON logger for CLI use.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Poll every configured target until it finishes",
	Long: `Poll every target in the configuration file and print one line per
lifecycle event.

A target finishes when its condition is met, when a fetch fails and
continue_on_error is not set, or when the command is interrupted (Ctrl+C or
SIGTERM). The command exits once every target has finished and prints a
summary. It fails if any target stopped because of an error.

With --listen, poller activity is also served over HTTP while the command
runs: GET /api/pollers for a JSON snapshot and GET /api/events for a
Server-Sent Events stream.

Example:
  pollster watch -c pollster.yaml
  pollster watch -c pollster.yaml --timeout 5m --listen :8080`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	watchCmd.Flags().Duration("timeout", 0, "stop all targets after this long (0 waits indefinitely)")
	watchCmd.Flags().String("listen", "", "serve poller activity over HTTP on this address, e.g. :8080")
	_ = watchCmd.MarkFlagRequired("config")
}

func runWatch(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	listen, _ := cmd.Flags().GetString("listen")

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg.Level())

	targets, err := config.BuildTargets(cfg)
	if err != nil {
		return fmt.Errorf("failed to build targets: %w", err)
	}
	logger.Info("config loaded", "targets", len(targets))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	w := newWatcher(cmd.OutOrStdout(), pollster.NewRegistry(pollster.WithLogger(logger)))
	defer w.close()

	if listen != "" {
		srvCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := server.NewServer(w.store, listen, logger).Start(srvCtx); err != nil {
			return err
		}
	}

	for _, t := range targets {
		if err := w.add(t); err != nil {
			return err
		}
	}
	w.start()

	select {
	case <-w.done:
	case <-ctx.Done():
		logger.Info("stopping targets", "reason", context.Cause(ctx))
		w.registry.Reset()
	}

	return w.summary()
}

// watcher drives the pollers of one watch run and records their activity.
type watcher struct {
	out      io.Writer
	registry *pollster.Registry
	store    store.Store

	mu        sync.Mutex
	pollers   []*pollster.Poller
	resources []*pollster.HTTPResource
	names     map[string]string
	remaining int
	finished  map[string]bool
	done      chan struct{}
	closed    bool
}

func newWatcher(out io.Writer, reg *pollster.Registry) *watcher {
	return &watcher{
		out:      out,
		registry: reg,
		store:    store.NewMemoryStore(),
		names:    make(map[string]string),
		finished: make(map[string]bool),
		done:     make(chan struct{}),
	}
}

// add registers the target's poller and subscribes to all of its events.
func (w *watcher) add(t config.Target) error {
	p, err := w.registry.Get(t.Resource, t.Options...)
	if err != nil {
		return fmt.Errorf("target %q: %w", t.Name, err)
	}
	for _, kind := range pollster.EventKinds() {
		p.On(kind, w.handle)
	}

	w.mu.Lock()
	w.pollers = append(w.pollers, p)
	w.resources = append(w.resources, t.Resource)
	w.names[p.ID().String()] = t.Name
	w.remaining++
	w.mu.Unlock()
	return nil
}

func (w *watcher) start() {
	w.mu.Lock()
	pollers := append([]*pollster.Poller(nil), w.pollers...)
	empty := w.remaining == 0
	w.mu.Unlock()

	if empty {
		close(w.done)
		return
	}
	for _, p := range pollers {
		p.Start()
	}
}

// handle is the listener bound to every event of every poller.
func (w *watcher) handle(e pollster.Event) {
	id := e.Poller.ID().String()
	active := e.Poller.Active()

	// a finished poller keeps its final record; later stop events from
	// Reset would otherwise overwrite an error
	w.mu.Lock()
	name, closed, finished := w.names[id], w.closed, w.finished[id]
	w.mu.Unlock()
	if closed || finished {
		return
	}

	a := store.Activity{
		PollerID: id,
		Name:     name,
		Event:    string(e.Kind),
		Active:   active,
	}
	if e.Err != nil {
		msg := e.Err.Error()
		a.Error = &msg
	}
	a = w.store.Record(a)
	w.print(e, a)

	if !active {
		w.finish(id)
	}
}

func (w *watcher) finish(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finished[id] {
		return
	}
	w.finished[id] = true
	w.remaining--
	if w.remaining == 0 {
		close(w.done)
	}
}

func (w *watcher) print(e pollster.Event, a store.Activity) {
	w.mu.Lock()
	defer w.mu.Unlock()

	faint.Fprintf(w.out, "%s ", time.Now().Format("15:04:05.000"))
	bold.Fprintf(w.out, "%-20s ", a.Name)

	switch e.Kind {
	case pollster.EventFetch:
		blue.Fprintf(w.out, "%-8s", e.Kind)
		fmt.Fprintf(w.out, " attempt %d\n", a.Attempts)
	case pollster.EventSuccess:
		green.Fprintf(w.out, "%-8s", e.Kind)
		if resp, ok := e.Result.(*pollster.HTTPResponse); ok {
			fmt.Fprintf(w.out, " %d in %s\n", resp.StatusCode, resp.Latency.Round(time.Millisecond))
		} else {
			fmt.Fprintln(w.out)
		}
	case pollster.EventError:
		red.Fprintf(w.out, "%-8s", e.Kind)
		fmt.Fprintf(w.out, " %v\n", e.Err)
	case pollster.EventComplete:
		green.Fprintf(w.out, "%-8s", e.Kind)
		fmt.Fprintf(w.out, " after %d attempts\n", a.Attempts)
	default:
		yellow.Fprintf(w.out, "%-8s\n", e.Kind)
	}
}

// summary prints the final state of every target and reports failures.
func (w *watcher) summary() error {
	all := w.store.GetAll()
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })

	w.mu.Lock()
	defer w.mu.Unlock()

	fmt.Fprintln(w.out)
	bold.Fprintln(w.out, "Summary")

	failed := 0
	for _, a := range all {
		status := green.Sprint("ok")
		switch {
		case a.Event == store.EventError:
			status = red.Sprint("failed")
			failed++
		case a.Event != store.EventComplete:
			status = yellow.Sprint("stopped")
		}
		fmt.Fprintf(w.out, "  %-20s %-8s attempts=%d successes=%d failures=%d\n",
			a.Name, status, a.Attempts, a.Successes, a.Failures)
		if a.Error != nil {
			faint.Fprintf(w.out, "  %-20s last error: %s\n", "", *a.Error)
		}
	}

	if failed > 0 {
		return errors.New(pluralTargets(failed) + " failed")
	}
	return nil
}

// close stops every poller and releases the resources.
func (w *watcher) close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	w.registry.Reset()

	w.mu.Lock()
	resources := append([]*pollster.HTTPResource(nil), w.resources...)
	w.mu.Unlock()
	for _, r := range resources {
		r.Close()
	}
}

func pluralTargets(n int) string {
	if n == 1 {
		return "1 target"
	}
	return fmt.Sprintf("%d targets", n)
}
