// Package gateway implements the runtime's external interface: the JSON
// HTTP API and the /ws/{session_id} control-plane handler sitting in
// front of the session runner.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/orchestrator/internal/agent"
	"github.com/haasonsaas/orchestrator/internal/errs"
	"github.com/haasonsaas/orchestrator/internal/multiagent"
	"github.com/haasonsaas/orchestrator/internal/observability"
	"github.com/haasonsaas/orchestrator/internal/sessions"
	"github.com/haasonsaas/orchestrator/internal/tools"
)

// Server wires the session manager and agent runtime to the HTTP/WS
// surface. It owns no business logic of its own — every handler
// delegates to a *sessions.Runner, the agent.Hierarchy, or the tool
// registry.
type Server struct {
	Sessions   *sessions.Manager
	Hierarchy  *agent.Hierarchy
	Controller *multiagent.Controller
	Tools      *tools.Registry
	Logger     *observability.Logger
	Metrics    *observability.Metrics

	startTime  time.Time
	httpServer *http.Server
	listener   net.Listener
}

// Config addresses the HTTP listener.
type Config struct {
	Host string
	Port int
}

// NewServer builds the mux and binds every route the gateway exposes.
func NewServer(srv *Server) *http.ServeMux {
	srv.startTime = time.Now()
	mux := http.NewServeMux()

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /health", srv.handleHealth)

	mux.HandleFunc("POST /api/chat", srv.handleChat)
	mux.HandleFunc("GET /api/sessions/", srv.handleSessionsList)
	mux.HandleFunc("POST /api/sessions/create", srv.handleSessionsCreate)
	mux.HandleFunc("PUT /api/sessions/{id}/rename", srv.handleSessionsRename)
	mux.HandleFunc("DELETE /api/sessions/{id}", srv.handleSessionsDelete)
	mux.HandleFunc("GET /api/sessions/{id}/reset", srv.handleSessionsReset)
	mux.HandleFunc("GET /api/events/{session_id}", srv.handleEvents)
	mux.HandleFunc("GET /api/agent-info", srv.handleAgentInfo)
	mux.HandleFunc("GET /api/tools", srv.handleTools)

	mux.Handle("/ws/{session_id}", srv.newWSControlPlane())

	return mux
}

// ListenAndServe starts the HTTP server on addr and blocks until ctx is
// canceled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context, cfg Config) error {
	mux := NewServer(s)
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	s.listener = listener
	s.httpServer = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.Serve(listener) }()

	if s.Logger != nil {
		s.Logger.Info(ctx, "gateway listening", "addr", addr)
	}

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps a classified error to its HTTP status code and a
// JSON body with a single "error" field.
func writeError(w http.ResponseWriter, err error) {
	kind := errs.Classify(err)
	writeJSON(w, errs.HTTPStatus(kind), map[string]string{"error": err.Error()})
}
