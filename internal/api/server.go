// Package api is the thin HTTP shell over the engine: catalogue reads,
// manual metadata overrides, dry-run scans, and a live event stream.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"hubward/internal/catalog"
	"hubward/internal/events"
	"hubward/internal/logging"
	"hubward/internal/scoring"
)

// Options wires the server's collaborators.
type Options struct {
	Bind                 string
	Token                string
	Version              string
	Store                *catalog.Store
	Bus                  *events.Bus
	ScoringConfig        scoring.Config
	ProviderWeights      map[string]float64
	ProviderFieldWeights map[string]map[string]float64
	// ScanRoot is the inbox walked by dry-run scans.
	ScanRoot string
	Logger   *slog.Logger
}

// Server is the HTTP API host.
type Server struct {
	opts   Options
	logger *slog.Logger

	listener net.Listener
	server   *http.Server
}

// NewServer builds the API server. It returns nil when no bind address is
// configured, which leaves the API disabled.
func NewServer(opts Options) *Server {
	if strings.TrimSpace(opts.Bind) == "" {
		return nil
	}
	s := &Server{
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "api"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/system/status", s.handleStatus)
	mux.HandleFunc("/hubs", s.authenticated(s.handleHubs))
	mux.HandleFunc("/hubs/search", s.authenticated(s.handleSearch))
	mux.HandleFunc("/ingestion/scan", s.authenticated(s.handleScan))
	mux.HandleFunc("/metadata/resolve", s.authenticated(s.handleResolve))
	mux.HandleFunc("/metadata/lock-claim", s.authenticated(s.handleLockClaim))
	mux.HandleFunc("/events", s.authenticated(s.handleEvents))

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler exposes the route tree (used by tests).
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start begins serving until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.opts.Bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Stop shuts the server down.
func (s *Server) Stop() {
	if s == nil || s.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

// authenticated enforces the bearer token when one is configured.
// /system/status stays public regardless.
func (s *Server) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(s.opts.Token)
		if token == "" {
			next(w, r)
			return
		}
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		provided, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(provided)), []byte(token)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "invalid or missing token")
			return
		}
		next(w, r)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("response encode failed", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
