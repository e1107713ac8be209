package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/oszuidwest/zwfm-cliprec/internal/config"
	"github.com/oszuidwest/zwfm-cliprec/internal/server"
)

// Server is the HTTP server exposing the recorder to a UI.
type Server struct {
	config   *config.Config
	commands *server.CommandHandler
}

// NewServer returns a new Server serving commands through handler.
func NewServer(cfg *config.Config, commands *server.CommandHandler) *Server {
	return &Server{config: cfg, commands: commands}
}

// handleRecordings lists the store as JSON, newest first.
func (s *Server) handleRecordings(w http.ResponseWriter, _ *http.Request) {
	items, version := s.commands.Store.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(server.RecordingsFrame{
		Type:       server.FrameRecordings,
		Recordings: items,
		Version:    version,
	}); err != nil {
		slog.Error("failed to write recordings", "error", err)
	}
}

// handleStatus returns the same snapshot pushed over the WebSocket.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.commands.Status()); err != nil {
		slog.Error("failed to write status", "error", err)
	}
}

// SetupRoutes returns an [http.Handler] configured with all application routes.
func (s *Server) SetupRoutes() http.Handler {
	mux := http.NewServeMux()
	// WebSocket for all real-time communication.
	mux.HandleFunc("GET /ws", s.commands.ServeWS)
	mux.HandleFunc("GET /api/recordings", s.handleRecordings)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

// Start begins listening and serving HTTP requests on the configured address.
// Returns an *http.Server that can be used for graceful shutdown.
func (s *Server) Start() *http.Server {
	addr := s.config.Snapshot().WebAddr
	slog.Info("starting web server", "addr", addr)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.SetupRoutes(),
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	return srv
}
