// Package server exposes experiments, verdicts and the schedule over HTTP.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gkobilansky/ga4-goat/internal/dispatch"
	"github.com/gkobilansky/ga4-goat/internal/jst"
	"github.com/gkobilansky/ga4-goat/internal/store"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Executor runs an experiment on demand.
type Executor interface {
	Execute(ctx context.Context, id int64, trigger store.Trigger) (*store.Result, error)
}

// DueFinder lists experiments that are due now.
type DueFinder interface {
	FindDueSlots(ctx context.Context) ([]dispatch.Due, error)
}

// Deps are the collaborators behind the API routes.
type Deps struct {
	Executor Executor
	Due      DueFinder
	Clock    jst.Clock
}

type Server struct {
	store     *store.SQLiteStore
	deps      Deps
	port      int
	token     string
	router    *http.ServeMux
	startTime time.Time
}

// New builds the server. An empty token is replaced by a random one.
func New(s *store.SQLiteStore, deps Deps, port int, token string) *Server {
	if token == "" {
		token = GenerateToken()
	}
	if deps.Clock == nil {
		deps.Clock = jst.SystemClock{}
	}

	srv := &Server{
		store:     s,
		deps:      deps,
		port:      port,
		token:     token,
		router:    http.NewServeMux(),
		startTime: time.Now(),
	}

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	// Public endpoints
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.Handle("GET /metrics", promhttp.Handler())

	// API endpoints (protected)
	s.router.Handle("GET /api/experiments", s.authMiddleware(http.HandlerFunc(s.handleListExperiments)))
	s.router.Handle("GET /api/experiments/{id}/result", s.authMiddleware(http.HandlerFunc(s.handleLatestResult)))
	s.router.Handle("GET /api/experiments/{id}/next", s.authMiddleware(http.HandlerFunc(s.handleNextExecution)))
	s.router.Handle("POST /api/experiments/{id}/execute", s.authMiddleware(http.HandlerFunc(s.handleExecute)))
	s.router.Handle("GET /api/schedule/due", s.authMiddleware(http.HandlerFunc(s.handleDue)))
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", s.port).Msg("HTTP server listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info().Msg("Shutting down HTTP server")
		return httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) Token() string {
	return s.token
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// GenerateToken returns a random 128-bit hex token.
func GenerateToken() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(bytes)
}
