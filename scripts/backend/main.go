// Backend is a test HTTP server standing in for one pool of the failover
// proxy. Every response carries X-Pool and X-Release headers, and the
// /chaos/start and /chaos/stop endpoints toggle simulated failure (500 on
// every application route) so failover behavior can be exercised by hand.
//
// Usage:
//
//	go run ./scripts/backend -port 9001 -pool blue -release v12
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
)

type versionResponse struct {
	Pool    string `json:"pool"`
	Release string `json:"release"`
	Path    string `json:"path"`
}

func main() {
	port := flag.Int("port", 9001, "port to listen on")
	pool := flag.String("pool", "blue", "pool name reported in X-Pool")
	release := flag.String("release", "v1", "release id reported in X-Release")
	flag.Parse()

	var failing atomic.Bool

	mux := http.NewServeMux()

	// Application routes: anything not claimed below.
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		log.Printf("request: method=%s path=%s from=%s", r.Method, r.URL.Path, r.RemoteAddr)

		if failing.Load() {
			http.Error(w, "chaos: simulated failure", http.StatusInternalServerError)
			return
		}

		w.Header().Set("X-Pool", *pool)
		w.Header().Set("X-Release", *release)
		w.Header().Set("Content-Type", "application/json")

		resp := versionResponse{Pool: *pool, Release: *release, Path: r.URL.Path}
		b, _ := json.Marshal(resp)
		w.Write(b)
	})

	// Liveness probe; fails along with the application routes so an active
	// prober sees the same outage live traffic does.
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			http.Error(w, "chaos: simulated failure", http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/chaos/start", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		failing.Store(true)
		log.Printf("chaos started: all application routes now return 500")
		w.Write([]byte("chaos started\n"))
	})

	mux.HandleFunc("/chaos/stop", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		failing.Store(false)
		log.Printf("chaos stopped: backend healthy again")
		w.Write([]byte("chaos stopped\n"))
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("starting %s backend (release %s) on %s", *pool, *release, addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
