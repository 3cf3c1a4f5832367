package main

import (
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"
)

// jobState tracks how many more polls a job needs before it finishes.
type jobState struct {
	remaining int
	progress  int
}

// StartMockJobServer runs a mock job API on addr. Every job id reports
// "running" for a random number of polls and then "done".
// Call this in a goroutine before starting pollers against it.
func StartMockJobServer(addr string) {
	var (
		jobs = make(map[string]*jobState)
		mu   sync.Mutex
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		// simulate small latency variance
		time.Sleep(time.Duration(20+rand.Intn(80)) * time.Millisecond)

		mu.Lock()
		job, exists := jobs[id]
		if !exists {
			job = &jobState{remaining: 3 + rand.Intn(5)}
			jobs[id] = job
		}
		state := "running"
		if job.remaining > 0 {
			job.remaining--
			job.progress += 100 / (job.remaining + 2)
		} else {
			state = "done"
			job.progress = 100
		}
		progress := job.progress
		mu.Unlock()

		if state == "done" {
			slog.Info("job finished", "job", id)
		}

		w.Header().Set("Content-Type", "application/json")
		resp := map[string]any{
			"id":       id,
			"state":    state,
			"progress": progress,
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("mock server error", "error", err)
	}
}
