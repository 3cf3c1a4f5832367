package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jpalmerr/pollster"
)

func main() {
	// start mock server (see mock_server.go)
	go StartMockJobServer(":9999")
	time.Sleep(100 * time.Millisecond)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		wg   sync.WaitGroup
		seen sync.Map
	)
	// each poller counts once, whichever event ends it
	finished := func(e pollster.Event) {
		if e.Poller.Active() {
			return
		}
		if _, dup := seen.LoadOrStore(e.Poller.ID(), true); !dup {
			wg.Done()
		}
	}
	report := func(name string) pollster.Option {
		return pollster.WithOptions(pollster.Options{
			OnSuccess: func(e pollster.Event) {
				resp := e.Result.(*pollster.HTTPResponse)
				fmt.Printf("  %-8s %s (%s)\n", name, resp.Body, resp.Latency.Round(time.Millisecond))
			},
			OnError: func(e pollster.Event) {
				fmt.Printf("  %-8s error: %v\n", name, e.Err)
			},
		})
	}

	// two jobs polled with exponential backoff until they report done
	for _, id := range []string{"export", "import"} {
		res, err := pollster.NewHTTPResource("http://localhost:9999/jobs/"+id,
			pollster.WithName(id),
			pollster.WithTimeout(2*time.Second),
		)
		if err != nil {
			slog.Error("failed to create resource", "error", err)
			os.Exit(1)
		}
		defer res.Close()

		p, err := pollster.Get(res,
			report(id),
			pollster.WithBackoff(200*time.Millisecond, 2*time.Second, 1.5),
			pollster.WithCondition(pollster.UntilJSONField("state", "done")),
		)
		if err != nil {
			slog.Error("failed to create poller", "error", err)
			os.Exit(1)
		}
		p.On(pollster.EventComplete, func(pollster.Event) { fmt.Printf("  %-8s complete\n", id) })
		p.On(pollster.EventStop, finished)
		p.On(pollster.EventComplete, finished)
		p.On(pollster.EventError, finished)
		wg.Add(1)
	}

	// a plain function resource on a fixed delay, stopped after five ticks
	var ticks atomic.Int32
	clock := pollster.NewFuncResource(func(ctx context.Context, data map[string]any) (any, error) {
		ticks.Add(1)
		return time.Now().Format(time.TimeOnly), nil
	})
	_, err := pollster.Get(clock,
		pollster.WithDelay(500*time.Millisecond),
		pollster.WithCondition(func(pollster.Resource) bool { return ticks.Load() < 5 }),
		pollster.OnSuccess(func(e pollster.Event) { fmt.Printf("  %-8s %v\n", "clock", e.Result) }),
		pollster.OnComplete(finished),
		pollster.OnStop(finished),
	)
	if err != nil {
		slog.Error("failed to create poller", "error", err)
		os.Exit(1)
	}
	wg.Add(1)

	fmt.Println()
	fmt.Println("  Pollster Demo: polling 2 mock jobs and a clock. Press Ctrl+C to stop.")
	fmt.Println()

	for _, p := range pollster.Default().Pollers() {
		p.Start()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		fmt.Println()
		fmt.Println("  All pollers finished.")
	case <-ctx.Done():
		pollster.Reset()
	}
}
