package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"SanFermin/internal/committee"
	"SanFermin/internal/logger"
	"SanFermin/internal/metrics"
)

// Source is the simulation view the server publishes.
type Source interface {
	Stats() committee.Stats
	Results() []committee.Result
	Digest() [32]byte
}

// Server is the HTTP status server of a running simulation.
// The simulation loop calls Publish between steps; handlers only read the last published view,
// so the simulation itself is never touched from a request goroutine.
type Server struct {
	addr   string               // addr is the HTTP listen address
	server *http.Server         // server is the underlying HTTP server
	reg    *prometheus.Registry // reg holds the simulation collector

	mu      sync.RWMutex
	stats   committee.Stats    // stats is the last published statistics
	results []committee.Result // results is the last published per-member outcome
	digest  [32]byte           // digest is the last published state digest
	ready   bool               // ready is set by the first Publish
}

// New creates a status server.
func New(addr string) *Server {
	s := &Server{addr: addr, reg: prometheus.NewRegistry()}
	s.reg.MustRegister(metrics.NewCollector(s.Stats, nil))

	return s
}

// Publish copies the current view of src.
func (s *Server) Publish(src Source) {
	stats, results, digest := src.Stats(), src.Results(), src.Digest()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stats = stats
	s.results = results
	s.digest = digest
	s.ready = true
}

// Stats returns the last published statistics.
func (s *Server) Stats() committee.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.stats
}

// Handler returns the routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /results", s.handleResults)
	mux.HandleFunc("GET /results/{id}", s.handleResult)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))

	return mux
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("status api started", "addr", s.addr)

		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleStatus handles GET /status requests.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.ready {
		writeError(w, http.StatusServiceUnavailable, "simulation not started")
		return
	}

	st := s.stats
	writeJSON(w, http.StatusOK, map[string]any{
		"time":          st.Time,
		"members":       st.Members,
		"completed":     st.Completed,
		"pendingEvents": st.PendingEvents,
		"batchesSent":   st.BatchesSent,
		"unitsSent":     st.UnitsSent,
		"verifications": st.Verifications,
		"firstDone":     st.FirstDone,
		"lastDone":      st.LastDone,
		"digest":        hex.EncodeToString(s.digest[:]),
	})
}

// handleResults handles GET /results requests.
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.ready {
		writeError(w, http.StatusServiceUnavailable, "simulation not started")
		return
	}

	out := make([]resultJSON, len(s.results))
	for i, res := range s.results {
		out[i] = toJSON(res)
	}

	writeJSON(w, http.StatusOK, out)
}

// handleResult handles GET /results/{id} requests.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid member id")
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if id < 0 || id >= len(s.results) {
		writeError(w, http.StatusNotFound, "unknown member")
		return
	}

	writeJSON(w, http.StatusOK, toJSON(s.results[id]))
}

// resultJSON is the wire form of a member result.
type resultJSON struct {
	ID          int   `json:"id"`
	Completed   bool  `json:"completed"`
	CompletedAt int64 `json:"completedAt"`
	Verified    int   `json:"verified"`
	Round       int   `json:"round"`
}

func toJSON(r committee.Result) resultJSON {
	return resultJSON{
		ID:          r.ID,
		Completed:   r.Completed,
		CompletedAt: r.CompletedAt,
		Verified:    r.Verified,
		Round:       r.Round,
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}
