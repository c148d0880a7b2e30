// Package server exposes a small HTTP API to trigger runs and read run
// statistics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/daviddao/mailtasks/internal/db"
	"github.com/daviddao/mailtasks/internal/processor"
	"github.com/daviddao/mailtasks/internal/types"
)

const defaultRunsLimit = 20

// Runner performs one processing run.
type Runner interface {
	Run(ctx context.Context) (*types.RunSummary, error)
}

// RunHistory reads recorded runs.
type RunHistory interface {
	RecentRuns(ctx context.Context, limit int) ([]*types.RunRecord, error)
	RunTotals(ctx context.Context) (*db.Totals, error)
}

// Server is the mailtasks trigger server.
type Server struct {
	httpServer *http.Server
	runner     Runner
	history    RunHistory
	log        *slog.Logger
}

// New creates a server listening on addr.
func New(addr string, runner Runner, history RunHistory, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{runner: runner, history: history, log: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/runs", s.handleRuns)
	r.Post("/api/run", s.handleRun)

	s.httpServer = &http.Server{Addr: addr, Handler: r}
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening. It blocks until the server is stopped.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	s.log.Info("mailtasks server listening", "addr", ln.Addr().String())
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type runsResponse struct {
	Totals *db.Totals         `json:"totals"`
	Runs   []*types.RunRecord `json:"runs"`
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	runs, err := s.history.RecentRuns(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	totals, err := s.history.RunTotals(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []*types.RunRecord{}
	}
	writeJSON(w, http.StatusOK, runsResponse{Totals: totals, Runs: runs})
}

type runResponse struct {
	Summary *types.RunSummary `json:"summary"`
	Error   string            `json:"error,omitempty"`
	Failed  []string          `json:"failed_threads,omitempty"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	// The run outlives a dropped client connection.
	summary, err := s.runner.Run(context.WithoutCancel(r.Context()))
	resp := runResponse{Summary: summary}

	switch {
	case err != nil:
		resp.Error = err.Error()
		var runErr *processor.RunError
		if errors.As(err, &runErr) {
			resp.Failed = runErr.ThreadIDs
		}
		s.log.Error("triggered run failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, resp)
	case summary != nil && summary.Locked:
		writeJSON(w, http.StatusConflict, resp)
	default:
		writeJSON(w, http.StatusAccepted, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
