// Package server provides the HTTP server for the FaceGate kiosk.
package server

import (
	"encoding/json"
	"image"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/ayusman/facegate/internal/app"
	"github.com/ayusman/facegate/internal/capture"
	"github.com/ayusman/facegate/internal/face"
	"github.com/ayusman/facegate/internal/server/api"
)

// Kiosk is the application surface the server exposes. *app.App satisfies
// it.
type Kiosk interface {
	api.Authenticator
	api.Enroller
	api.AttemptLister

	Status() app.Status
	SetEnabled(enabled bool)
	Events(buffer int) (<-chan app.Event, func())
	Frames(buffer int) (<-chan *face.Frame, func())
	Annotate(frame *face.Frame) *image.RGBA
}

var _ Kiosk = (*app.App)(nil)

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Static    fs.FS // used when StaticDir is empty
	Kiosk     Kiosk
	Encoder   capture.Encoder // stream encoder, defaults to capture.EncodeJPEG
	Logger    *slog.Logger
}

// Server represents the HTTP server for the kiosk.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		logger: config.Logger.With("component", "server"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if k := s.config.Kiosk; k != nil {
		s.mux.HandleFunc("/api/status", s.handleStatus)
		s.mux.HandleFunc("/api/enabled", s.handleEnabled)

		login := api.NewLoginHandler(k)
		s.mux.Handle("/api/login", login)
		s.mux.Handle("/api/logout", login)

		register := api.NewRegisterHandler(k)
		s.mux.Handle("/api/register", register)
		s.mux.Handle("/api/register/", register)

		s.mux.Handle("/api/attempts", api.NewAttemptsHandler(k))

		encode := s.config.Encoder
		if encode == nil {
			encode = capture.EncodeJPEG
		}
		s.mux.Handle("/api/stream", NewStreamHandler(k, encode, s.logger))
		s.mux.Handle("/api/events", NewEventsHandler(k, s.logger))
	}

	switch {
	case s.config.StaticDir != "":
		s.mux.Handle("/", http.FileServer(http.Dir(s.config.StaticDir)))
	case s.config.Static != nil:
		s.mux.Handle("/", http.FileServer(http.FS(s.config.Static)))
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	})
}

// handleStatus handles GET requests to /api/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.config.Kiosk.Status())
}

type enabledRequest struct {
	Enabled *bool `json:"enabled"`
}

// handleEnabled handles PUT requests to /api/enabled.
func (s *Server) handleEnabled(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req enabledRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&req); err != nil || req.Enabled == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "enabled is required"})
		return
	}

	s.config.Kiosk.SetEnabled(*req.Enabled)
	writeJSON(w, http.StatusOK, s.config.Kiosk.Status())
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("listening", "addr", addr)
	return http.ListenAndServe(addr, s)
}
