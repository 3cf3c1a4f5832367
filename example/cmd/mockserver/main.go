// Standalone mock job server for trying the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/pollster watch -c example/config.yaml --listen :8080
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"sync"
)

func main() {
	fmt.Println("Mock job server starting on :9999")
	fmt.Println("GET /jobs/{id} reports running a few times, then done")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	var (
		remaining = make(map[string]int)
		mu        sync.Mutex
	)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		mu.Lock()
		n, exists := remaining[id]
		if !exists {
			n = 3 + rand.Intn(5)
		}
		state := "done"
		if n > 0 {
			state = "running"
			n--
		}
		remaining[id] = n
		mu.Unlock()

		if r.URL.Query().Get("fail") == "1" && state == "running" {
			http.Error(w, "transient failure", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":   id,
			"data": map[string]string{"state": state},
		})
	})

	if err := http.ListenAndServe(":9999", mux); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
