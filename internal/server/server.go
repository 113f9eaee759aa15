// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/jeranaias/chatstream/internal/export"
	"github.com/jeranaias/chatstream/internal/orchestrator"
	"github.com/jeranaias/chatstream/internal/session"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr is the listen address when none is configured.
	DefaultAddr = "127.0.0.1:7860"

	// MaxRequestBodySize caps JSON request bodies (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024

	// SessionCookie names the cookie carrying the session id.
	SessionCookie = "chat_session"

	// Version is the server version.
	Version = "1.0.0"
)

//go:embed static
var staticFiles embed.FS

// ============================================================================
// SERVER
// ============================================================================

// Config configures a Server.
type Config struct {
	Addr string

	// ExportDir is the root for export files. Each session writes into its
	// own subdirectory, and downloads are only served from there.
	ExportDir string

	// SecureCookie sets the Secure flag on the session cookie.
	SecureCookie bool
}

// Server is the HTTP surface of the chat UI.
type Server struct {
	cfg      Config
	router   *http.ServeMux
	server   *http.Server
	sessions *session.Manager
	orch     *orchestrator.Orchestrator

	now       func() time.Time
	startTime time.Time
}

// New creates a Server. Routes are registered immediately; call Start to
// listen or Handler to embed the server elsewhere.
func New(cfg Config, sessions *session.Manager, orch *orchestrator.Orchestrator) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.ExportDir == "" {
		cfg.ExportDir = "."
	}
	s := &Server{
		cfg:       cfg,
		router:    http.NewServeMux(),
		sessions:  sessions,
		orch:      orch,
		now:       time.Now,
		startTime: time.Now(),
	}
	s.setupRoutes()
	return s
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.cfg.Addr
}

// ============================================================================
// ROUTES
// ============================================================================

func (s *Server) setupRoutes() {
	static, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}

	s.router.HandleFunc("GET /{$}", s.handleIndex)
	s.router.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(static)))

	s.router.HandleFunc("POST /api/submit", s.handleSubmit)
	s.router.HandleFunc("POST /api/clear", s.handleClear)
	s.router.HandleFunc("POST /api/export", s.handleExport)
	s.router.HandleFunc("GET /api/export/{name}", s.handleDownload)
	s.router.HandleFunc("GET /api/status", s.handleStatus)
	s.router.HandleFunc("GET /api/session", s.handleSession)
	s.router.HandleFunc("DELETE /api/session", s.handleSessionDelete)
	s.router.HandleFunc("GET /api/models", s.handleModels)
	s.router.HandleFunc("GET /api/prompts", s.handlePrompts)

	s.router.HandleFunc("GET /health", s.handleHealth)
}

// Handler returns the routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return Chain(
		RecoveryMiddleware(),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(log.Default()),
	)(s.router)
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// Start listens on the configured address and serves until Shutdown.
// It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	// No WriteTimeout: a streaming turn may outlive any fixed write deadline.
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("SERVER_START | addr=%s version=%s", ln.Addr(), Version)
	err := s.server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server. In-flight turns are given
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	log.Printf("SERVER_SHUTDOWN | sessions=%d", s.sessions.Len())
	return s.server.Shutdown(ctx)
}

// ============================================================================
// SESSION SCOPING
// ============================================================================

// session resolves the request's session, opening a new one when the
// cookie is missing or names an unknown session.
func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.State, error) {
	var id string
	if c, err := r.Cookie(SessionCookie); err == nil {
		id = c.Value
	}

	st, err := s.sessions.Open(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if st.ID() != id {
		http.SetCookie(w, &http.Cookie{
			Name:     SessionCookie,
			Value:    st.ID(),
			Path:     "/",
			HttpOnly: true,
			Secure:   s.cfg.SecureCookie,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return st, nil
}

// exportWriter returns the export writer scoped to one session.
func (s *Server) exportWriter(st *session.State) *export.Writer {
	w := export.NewWriter(filepath.Join(s.cfg.ExportDir, st.ID()))
	w.Now = s.now
	return w
}

// ============================================================================
// HELPERS
// ============================================================================

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		log.Printf("RESPONSE_ENCODE_FAILED | error=%v", err)
	}
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{
		Message: message,
		Type:    errType,
		Code:    status,
	}})
}

// decodeJSON reads a size-limited JSON body into v. An empty body leaves v
// untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
