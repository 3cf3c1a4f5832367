// Package pollster repeatedly fetches a resource until a condition is met,
// with fixed or exponential delays between attempts.
//
// A [Resource] is anything with a Fetch method. The [Registry] hands out one
// [Poller] per resource; asking again for the same resource returns the same
// poller, reconfigured. Pollers report their lifecycle as events: start, stop,
// fetch, success, error and complete.
//
// # Quick Start
//
// Poll a job URL every second until it reports completion:
//
//	res, _ := pollster.NewHTTPResource("https://api.example.com/jobs/42")
//
//	poller, err := pollster.Get(res,
//	    pollster.WithCondition(pollster.UntilBodyContains(`"state":"done"`)),
//	    pollster.OnComplete(func(e pollster.Event) {
//	        fmt.Println("job finished")
//	    }),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	poller.Start()
//
// # Delays
//
// By default attempts are one second apart. [WithDelay] sets another fixed
// delay; [WithBackoff] and [WithBackoffFunc] make the delay grow after each
// attempt, capped at a maximum:
//
//	pollster.WithBackoff(100*time.Millisecond, 10*time.Second, 2)
//	// 100ms, 200ms, 400ms, ..., 10s, 10s, ...
//
// The sequence restarts at the minimum every time the poller is started.
// [WithDelayed] and [WithInitialDelay] defer the first attempt.
//
// # Errors
//
// A failed fetch fires [EventError] and stops the poller, unless
// [WithContinueOnError] is set. Fetch errors are delivered only through
// events; Start and Stop never fail.
//
// # Events
//
// Listeners run synchronously on the goroutine that caused the event, after
// the poller's state has changed, so a listener may call [Poller.Stop] or
// [Poller.Start]. Panics in listeners, fetches and conditions are recovered
// and logged with a correlation ID.
//
// # Custom Resources
//
// Implement [Resource] directly, or wrap a function with [NewFuncResource]:
//
//	res := pollster.NewFuncResource(func(ctx context.Context, data map[string]any) (any, error) {
//	    return queue.Depth(ctx)
//	})
//
// The context passed to Fetch is cancelled when the poller stops. Resources
// that implement [DestroyNotifier] stop their pollers when destroyed.
package pollster
