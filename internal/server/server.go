package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cloudbind/tokend/internal/token"
)

// Directory resolves registered tokens by their configured name
type Directory interface {
	// Names returns the registered names in sorted order
	Names() []string

	// Lookup returns the token registered under name
	Lookup(name string) (*token.Token, bool)
}

// Server serves the token status API over HTTP. It reports token
// metadata only; credential values are never written to a response.
type Server struct {
	httpServer *http.Server

	httpPort  int
	directory Directory
	logger    *slog.Logger
}

// Config contains server configuration
type Config struct {
	HTTPPort  int
	Directory Directory

	// Logger defaults to slog.Default() if nil
	Logger *slog.Logger
}

// New creates a new server with the given configuration
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		httpPort:  cfg.HTTPPort,
		directory: cfg.Directory,
		logger:    logger,
	}
}

// Handler returns the HTTP handler serving the status API
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /v1/tokens", s.handleListTokens)
	mux.HandleFunc("GET /v1/tokens/{name}", s.handleGetToken)
	return mux
}

// Start starts the HTTP server in the background
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.httpPort),
		Handler: s.Handler(),
	}

	go func() {
		s.logger.LogAttrs(ctx, slog.LevelInfo, "HTTP status server listening",
			slog.Int("port", s.httpPort))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.LogAttrs(ctx, slog.LevelError, "HTTP status server error",
				slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// tokenStatus is the wire representation of one token. The credential
// value is deliberately absent.
type tokenStatus struct {
	Name      string `json:"name"`
	ID        string `json:"id"`
	State     string `json:"state"`
	HasValue  bool   `json:"has_value"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

func statusFor(name string, tok *token.Token) tokenStatus {
	_, hasValue := tok.Value()

	status := tokenStatus{
		Name:     name,
		ID:       tok.ID(),
		State:    string(tok.State()),
		HasValue: hasValue,
	}
	if expiresAt, ok := tok.ExpiresAt(); ok {
		status.ExpiresAt = expiresAt.UTC().Format(time.RFC3339)
	}
	return status
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleListTokens(w http.ResponseWriter, r *http.Request) {
	names := s.directory.Names()

	statuses := make([]tokenStatus, 0, len(names))
	for _, name := range names {
		tok, ok := s.directory.Lookup(name)
		if !ok {
			continue
		}
		statuses = append(statuses, statusFor(name, tok))
	}

	s.writeJSON(w, r, map[string]any{"tokens": statuses})
}

func (s *Server) handleGetToken(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	tok, ok := s.directory.Lookup(name)
	if !ok {
		http.Error(w, fmt.Sprintf("no token registered under name: %s", name), http.StatusNotFound)
		return
	}

	s.writeJSON(w, r, statusFor(name, tok))
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.LogAttrs(r.Context(), slog.LevelWarn, "Failed to encode response",
			slog.String("error", err.Error()))
	}
}
