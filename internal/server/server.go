// Package server exposes the admin HTTP API: credential management, sync
// control and queue inspection. JSON in, JSON out; errors are
// {"error": "..."} with a 4xx/5xx status.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/salewatch/salewatch/internal/engine"
	"github.com/salewatch/salewatch/internal/secret"
	"github.com/salewatch/salewatch/internal/storage"
)

// maxBodySize caps admin request bodies; payloads are tiny.
const maxBodySize = 1 * 1024 * 1024

// Server is the admin HTTP server over one engine and store.
type Server struct {
	engine  *engine.Engine
	store   storage.Store
	secrets *secret.Provider

	httpServer *http.Server
	listener   net.Listener
	addr       string
	mu         sync.RWMutex
}

// New creates a server listening on addr once Start is called.
func New(eng *engine.Engine, store storage.Store, secrets *secret.Provider, addr string) *Server {
	return &Server{
		engine:  eng,
		store:   store,
		secrets: secrets,
		addr:    addr,
	}
}

// Start listens and serves until ctx is cancelled, then shuts down
// gracefully. Blocks for the lifetime of the server.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	err = s.httpServer.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Addr returns the bound address once listening, the configured one before.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Handler builds the route mux. Exposed for in-process tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/keys", s.handleKeys)
	mux.HandleFunc("/api/keys/", s.handleKeyByID)
	mux.HandleFunc("/api/sync/start", s.handleSyncStart)
	mux.HandleFunc("/api/sync/status/", s.handleSyncStatus)
	mux.HandleFunc("/api/sync/active", s.handleSyncActive)
	mux.HandleFunc("/api/sync/tasks", s.handleSyncTasks)
	mux.HandleFunc("/api/sync/tasks/", s.handleSyncTasks)
	mux.HandleFunc("/api/sync/failed", s.handleSyncFailed)
	mux.HandleFunc("/api/sync/retry/", s.handleSyncRetry)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.store.HealthCheck(r.Context()); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeStoreError maps store sentinels onto HTTP statuses.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, storage.ErrConflict):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// runCtx detaches a request context for work that outlives the request,
// keeping its values (trace context) but not its cancellation.
func (s *Server) runCtx(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	// An absent body decodes as the zero-value request.
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	if err := json.Unmarshal(body, v); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return false
	}
	return true
}
