// Package server provides the HTTP surface of the nail overlay: health,
// session status and control, the composited preview stream and the overlay
// WebSocket.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/nailosophy/internal/session"
	"github.com/ayusman/nailosophy/internal/store"
)

// FrameSource supplies the latest encoded preview frame.
type FrameSource interface {
	LatestJPEG() ([]byte, bool)
}

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Session   *session.Session
	Frames    FrameSource
	Overlay   http.Handler
	Store     *store.Store

	// StreamInterval is the MJPEG frame period; zero selects 66ms.
	StreamInterval time.Duration

	Logger *zap.SugaredLogger
}

// Server represents the HTTP server for the application.
type Server struct {
	config Config
	mux    *http.ServeMux
	logger *zap.SugaredLogger
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		logger: logger,
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Session != nil {
		h := &sessionHandler{session: s.config.Session, logger: s.logger}
		s.mux.HandleFunc("/api/status", h.handleStatus)
		s.mux.HandleFunc("/api/flip", h.handleFlip)
		s.mux.HandleFunc("/api/viewport", h.handleViewport)
	}

	if s.config.Store != nil {
		h := &eventsHandler{events: s.config.Store.Events()}
		s.mux.HandleFunc("/api/events", h.handleRecent)
	}

	if s.config.Frames != nil {
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Frames, s.config.StreamInterval))
	}

	if s.config.Overlay != nil {
		s.mux.Handle("/api/overlay", s.config.Overlay)
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
