// Package api provides the read-only HTTP API for observing a batch while it
// runs and for querying stored run results.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/talgya/evacsim/internal/engine"
	"github.com/talgya/evacsim/internal/persistence"
)

// Server serves simulation state over HTTP.
type Server struct {
	Sim  *engine.Simulation
	Eng  *engine.Engine
	DB   *persistence.DB // Optional; /runs answers 503 without it
	Port int

	// Requests per client per minute on the grid-sized and store-backed
	// endpoints. Zero means 120.
	RateLimit int

	mu      sync.RWMutex
	latest  *engine.Snapshot
	batchID string
}

// ObserveStep records the latest step. It is meant to be chained into
// engine.Engine.OnStep.
func (s *Server) ObserveStep(snap engine.Snapshot) {
	s.mu.Lock()
	s.latest = &snap
	s.mu.Unlock()
}

// SetBatch records the ID of the batch being run.
func (s *Server) SetBatch(id string) {
	s.mu.Lock()
	s.batchID = id
	s.mu.Unlock()
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	rate := s.RateLimit
	if rate <= 0 {
		rate = 120
	}
	limiter := NewRateLimiter(rate, time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/status", getOnly(s.handleStatus))
	mux.HandleFunc("/api/v1/config", getOnly(s.handleConfig))
	mux.HandleFunc("/api/v1/snapshot", getOnly(limited(limiter, s.handleSnapshot)))
	mux.HandleFunc("/api/v1/static", getOnly(limited(limiter, s.handleStatic)))
	mux.HandleFunc("/api/v1/runs", getOnly(limited(limiter, s.handleRuns)))
	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	slog.Info("HTTP API starting", "addr", addr, "store", s.DB != nil)

	go func() {
		if err := http.ListenAndServe(addr, s.Handler()); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// corsMiddleware adds CORS headers for allowed viewer origins. Set
// EVACSIM_CORS_ORIGINS to a comma-separated list; localhost dev servers are
// always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("EVACSIM_CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func getOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.Eng.Status()
	s.mu.RLock()
	batch := s.batchID
	s.mu.RUnlock()

	writeJSON(w, map[string]any{
		"batch_id":      batch,
		"running":       st.Running,
		"run":           st.Run,
		"step":          st.Step,
		"occupied":      st.Occupied,
		"evacuated":     st.Evacuated,
		"runs":          s.Sim.Config.Runs,
		"rows":          s.Sim.Topology.Rows(),
		"cols":          s.Sim.Topology.Cols(),
		"seed":          s.Sim.Seed(),
		"step_duration": engine.StepDuration,
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Config)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	snap := s.latest
	s.mu.RUnlock()

	if snap == nil {
		http.Error(w, "no step recorded yet", http.StatusNotFound)
		return
	}
	// Occupancy as numbers, not a base64 byte string.
	occ := make([]int, len(snap.Occupancy))
	for i, v := range snap.Occupancy {
		occ[i] = int(v)
	}
	writeJSON(w, map[string]any{
		"run":       snap.Run,
		"step":      snap.Step,
		"rows":      snap.Rows,
		"cols":      snap.Cols,
		"occupied":  snap.Occupied,
		"stats":     snap.Stats,
		"occupancy": occ,
		"dynamic":   snap.Dynamic,
	})
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	sff, err := s.Sim.Static()
	if err != nil {
		slog.Error("static field unavailable", "error", err)
		http.Error(w, "static field unavailable", http.StatusInternalServerError)
		return
	}
	topo := sff.Topology()
	writeJSON(w, map[string]any{
		"rows":        topo.Rows(),
		"cols":        topo.Cols(),
		"unreachable": sff.Unreachable(),
		"values":      sff.Values(),
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return
	}

	if batch := r.URL.Query().Get("batch"); batch != "" {
		runs, err := s.DB.BatchRuns(batch)
		if err != nil {
			slog.Error("batch runs query failed", "batch", batch, "error", err)
			http.Error(w, "query failed", http.StatusInternalServerError)
			return
		}
		if runs == nil {
			runs = []persistence.RunRecord{}
		}
		writeJSON(w, runs)
		return
	}

	limit := 30
	if l := r.URL.Query().Get("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil || v <= 0 || v > 1000 {
			http.Error(w, "limit must be 1-1000", http.StatusBadRequest)
			return
		}
		limit = v
	}

	runs, err := s.DB.RecentRuns(limit)
	if err != nil {
		slog.Error("recent runs query failed", "error", err)
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []persistence.RunRecord{}
	}
	writeJSON(w, runs)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
