// Package api serves the read-only dashboard API. Every endpoint
// re-derives its response from the stores at request time; any store
// error fails closed with a structured JSON error body.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"morpho-market-indexer/internal/observability"
	"morpho-market-indexer/internal/storage"
)

// Server holds the store handles the endpoints read from.
type Server struct {
	activityStore storage.ActivityStore
	positionStore storage.UserPositionStore
	snapshotStore storage.MarketSnapshotStore
	runStore      storage.IngestRunStore
	historyStore  storage.MarketHistoryStore
	feed          *Feed
	logger        *log.Logger
	now           func() time.Time
}

// ServerOptions contains configuration for creating a Server.
type ServerOptions struct {
	ActivityStore storage.ActivityStore
	PositionStore storage.UserPositionStore
	SnapshotStore storage.MarketSnapshotStore
	RunStore      storage.IngestRunStore
	HistoryStore  storage.MarketHistoryStore // optional; history endpoint 404s when nil
	Feed          *Feed                      // optional live feed hub
	Logger        *log.Logger
}

// NewServer creates an API server over the given stores.
func NewServer(opts ServerOptions) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Server{
		activityStore: opts.ActivityStore,
		positionStore: opts.PositionStore,
		snapshotStore: opts.SnapshotStore,
		runStore:      opts.RunStore,
		historyStore:  opts.HistoryStore,
		feed:          opts.Feed,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (s *Server) WithClock(now func() time.Time) *Server {
	s.now = now
	return s
}

// Router builds the HTTP route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Group(func(gr chi.Router) {
		gr.Use(s.instrument)

		gr.Get("/health", s.handleHealth)
		gr.Method(http.MethodGet, "/metrics", observability.Handler())

		gr.Route("/api", func(ar chi.Router) {
			ar.Get("/market", s.handleMarket)
			ar.Get("/market/history", s.handleMarketHistory)
			ar.Get("/activities", s.handleActivities)
			ar.Get("/positions", s.handlePositions)
			ar.Get("/runs", s.handleRuns)
		})
	})

	if s.feed != nil {
		r.Get("/ws", s.feed.handleConnect)
	}

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// instrument records request counts and latency per endpoint.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		observability.RecordHTTPRequest(r.URL.Path, recorder.status, time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Printf("Encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
