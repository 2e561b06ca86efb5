// Package server exposes the operator control surface: health, status,
// manual tick triggering and the change stream.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"alpharoyale/internal/core"
	"alpharoyale/internal/scheduler"
)

// TickScheduler is the slice of the scheduler the control server drives.
type TickScheduler interface {
	TriggerNow(ctx context.Context) (int64, error)
	Status() scheduler.Status
}

// StatusResponse is the GET /v1/status payload, consumed by matchctl.
type StatusResponse struct {
	Scheduler   scheduler.Status `json:"scheduler"`
	CurrentTick int64            `json:"current_tick"`
	ActiveGames int              `json:"active_games"`
}

// Server is the control HTTP server.
type Server struct {
	port      int
	store     core.Store
	scheduler TickScheduler
	health    core.IHealthMonitor
	changes   http.HandlerFunc
	logger    core.ILogger
	srv       *http.Server
}

// New creates a control server. changes may be nil when no change stream
// is mounted.
func New(port int, store core.Store, sched TickScheduler, health core.IHealthMonitor, changes http.HandlerFunc, logger core.ILogger) *Server {
	return &Server{
		port:      port,
		store:     store,
		scheduler: sched,
		health:    health,
		changes:   changes,
		logger:    logger.WithField("component", "control_server"),
	}
}

// Start begins serving in the background.
func (s *Server) Start() {
	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.Handler(),
	}

	go func() {
		s.logger.Info("Starting control server", "port", s.port)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Control server failed", "error", err)
		}
	}()
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	s.logger.Info("Stopping control server")
	return s.srv.Shutdown(ctx)
}

// Handler builds the mux without binding a port. Used by tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/v1/tick", s.handleTick)
	mux.HandleFunc("/v1/status", s.handleStatus)
	if s.changes != nil {
		mux.HandleFunc("/v1/changes", s.changes)
	}
	return mux
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	components := s.health.GetStatus()
	if s.health.IsHealthy() {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":     "ok",
			"components": components,
		})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
		"status":     "unhealthy",
		"components": components,
	})
}

// handleTick runs the driver once. Safe to call while the timer chain is
// live; tick advancement is keyed by the counter, not the caller.
func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tick, err := s.scheduler.TriggerNow(r.Context())
	if err != nil {
		s.logger.Error("Manual tick failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tick": tick})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	state, err := s.store.ReadGameState(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}
	games, err := s.store.ActiveGames(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		Scheduler:   s.scheduler.Status(),
		CurrentTick: state.CurrentTick,
		ActiveGames: len(games),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
