package api

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/dinahmaccodes/pifp-stellar/internal/config"
	"github.com/dinahmaccodes/pifp-stellar/internal/database"
)

// IndexerStatus exposes the running indexer's position and counters to the
// health endpoint.
type IndexerStatus interface {
	LastLedger() uint32
	Stats() map[string]int64
}

// Server is the read-only HTTP API over the event store.
type Server struct {
	cfg    *config.Config
	db     *database.DB
	status IndexerStatus
	logger *zap.Logger
	mux    *http.ServeMux
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, db *database.DB, status IndexerStatus, logger *zap.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		db:     db,
		status: status,
		logger: logger,
		mux:    http.NewServeMux(),
	}

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	// Health/status
	s.mux.HandleFunc("/health", s.corsMiddleware(s.health))

	// Prometheus scrape endpoint
	s.mux.Handle("/metrics", promhttp.Handler())

	// API v1 endpoints
	s.mux.HandleFunc("/api/v1/events", s.corsMiddleware(s.listEvents))
	s.mux.HandleFunc("/api/v1/projects/{id}/events", s.corsMiddleware(s.projectEvents))
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.loggingMiddleware(s.mux)
}

func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path))
		next.ServeHTTP(w, r)
	})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, ErrorResponse{Error: message})
}

func (s *Server) eventsResponse(w http.ResponseWriter, events []database.Event) {
	// Empty array, not null
	if events == nil {
		events = []database.Event{}
	}

	s.jsonResponse(w, http.StatusOK, EventsResponse{
		Events: events,
		Count:  len(events),
	})
}
