// Package server provides the HTTP server for the SignFlow recognition service.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/signflow/signflow/internal/logging"
	"github.com/signflow/signflow/internal/metrics"
	"github.com/signflow/signflow/internal/server/api"
	"github.com/signflow/signflow/internal/session"
	"github.com/signflow/signflow/internal/store"
)

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Store     *store.Store
	Registry  *prometheus.Registry

	// Session is the template every connection's controller is built from.
	Session         session.Options
	DefaultLanguage string

	// Preview, when set, is streamed as MJPEG at /api/stream.
	Preview FrameSource

	Logger *slog.Logger
}

// Server represents the HTTP server for the SignFlow service.
type Server struct {
	config   Config
	mux      *http.ServeMux
	start    time.Time
	sessions *SessionHandler
	logger   *slog.Logger
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	logger := logging.For(config.Logger, logging.CategoryServer)
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		logger: logger,
	}
	s.sessions = NewSessionHandler(config.Session, config.DefaultLanguage, config.Store, logger)
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	// Without a language source there is nothing to recognize; preview-only
	// servers expose no session endpoint.
	recognizes := s.config.Session.LoadLanguage != nil
	if recognizes {
		s.mux.Handle("/ws", s.sessions)
		s.mux.Handle("/api/languages", api.NewLanguagesHandler(s.config.Session.Languages, s.config.Session.LoadLanguage))
	}

	if s.config.Store != nil {
		sessions := api.NewSessionsHandler(s.config.Store)
		s.mux.Handle("/api/sessions", sessions)
		s.mux.Handle("/api/sessions/", sessions)
	}

	if s.config.Registry != nil {
		s.mux.Handle("/metrics", metrics.Handler(s.config.Registry))
	}

	if s.config.Preview != nil {
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Preview))
	}

	// The root serves both the session websocket and the static client.
	var static http.Handler = http.NotFoundHandler()
	if s.config.StaticDir != "" {
		static = http.FileServer(http.Dir(s.config.StaticDir))
	}
	s.mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if recognizes && r.URL.Path == "/" && websocket.IsWebSocketUpgrade(r) {
			s.sessions.ServeHTTP(w, r)
			return
		}
		static.ServeHTTP(w, r)
	}))
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Sessions returns the websocket session handler.
func (s *Server) Sessions() *SessionHandler {
	return s.sessions
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]any{
		"status":         "ok",
		"uptime":         time.Since(s.start).String(),
		"session_active": s.sessions.Active(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}
