// Package api serves the keeper's status surface: health probes, a state
// summary and Prometheus metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nebulafi/feedkeeper/internal/app/metrics"
	"github.com/nebulafi/feedkeeper/internal/app/state"
	"github.com/nebulafi/feedkeeper/internal/app/system"
	"github.com/nebulafi/feedkeeper/pkg/logger"
)

var _ system.Service = (*Server)(nil)

// Server is the lifecycle-managed status HTTP server.
type Server struct {
	st   *state.State
	log  *logger.Logger
	addr string

	mu      sync.Mutex
	httpSrv *http.Server
	running bool
}

// NewServer creates a status server listening on addr.
func NewServer(st *state.State, addr string, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewDefault("status-api")
	}
	return &Server{st: st, log: log, addr: addr}
}

func (s *Server) Name() string { return "status-api" }

// Start begins serving in the background. Listen failures after startup
// are logged, not propagated; the keeper core keeps running without its
// status surface.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/healthz", s.handleHealth)
	router.Get("/readyz", s.handleReady)
	router.Get("/status", s.handleStatus)
	router.Method(http.MethodGet, "/metrics", metrics.Handler())

	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.running = true

	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("status server stopped unexpectedly")
		}
	}()

	s.log.WithField("addr", s.addr).Info("status server started")
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpSrv
	s.httpSrv = nil
	s.running = false
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	// Ready once at least one feed has been merged from the registry.
	if len(s.st.Feeds()) == 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	payload := struct {
		Feeds         int `json:"feeds"`
		ActiveBeacons int `json:"activeBeacons"`
		DataPoints    int `json:"dataPoints"`
		SignedAPIURLs int `json:"signedApiUrls"`
	}{
		Feeds:         len(s.st.Feeds()),
		ActiveBeacons: len(s.st.ActiveBeacons()),
		DataPoints:    s.st.Points().Len(),
		SignedAPIURLs: len(s.st.SignedAPIURLs()),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.WithError(err).Warn("encode status response")
	}
}
