// Package httpapi exposes run control and progress over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/marcosevegrand/kindle-extract/internal/runner"
	"github.com/marcosevegrand/kindle-extract/internal/store"
)

// Runs is the part of runner.Manager the server needs.
type Runs interface {
	Start(req runner.Request) (string, error)
	Status(id string) (runner.Status, error)
	List() []runner.Status
	Stop(id string) error
}

// Server routes the control surface.
type Server struct {
	runs    Runs
	history *store.Store
	logger  *slog.Logger
	mux     *http.ServeMux
}

// New creates a Server. history may be nil.
func New(runs Runs, history *store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{runs: runs, history: history, logger: logger, mux: http.NewServeMux()}
	s.mux.HandleFunc("POST /api/runs", s.handleStart)
	s.mux.HandleFunc("GET /api/runs", s.handleList)
	s.mux.HandleFunc("GET /api/runs/{id}", s.handleStatus)
	s.mux.HandleFunc("POST /api/runs/{id}/stop", s.handleStop)
	s.mux.HandleFunc("GET /api/history", s.handleHistory)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("control surface listening", "addr", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type startResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req runner.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Target == "" {
		writeError(w, http.StatusBadRequest, "target is required")
		return
	}
	if req.Email == "" && len(req.Cookies) == 0 {
		s.logger.Info("run requested without credentials, relying on saved cookies")
	}

	id, err := s.runs.Start(req)
	if err != nil {
		s.logger.Error("failed to start run", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, startResponse{ID: id})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.runs.List())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.runs.Status(r.PathValue("id"))
	if err != nil {
		s.writeRunError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.runs.Stop(id); err != nil {
		s.writeRunError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "stopping"})
}

type historyEntry struct {
	ID         string    `json:"id"`
	ASIN       string    `json:"asin,omitempty"`
	Title      string    `json:"title,omitempty"`
	Author     string    `json:"author,omitempty"`
	State      string    `json:"state"`
	Reason     string    `json:"reason,omitempty"`
	Pages      int       `json:"pages"`
	Error      string    `json:"error,omitempty"`
	Outputs    []string  `json:"outputs"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "history is disabled")
		return
	}
	runs, err := s.history.List(r.Context(), 100)
	if err != nil {
		s.logger.Error("failed to list history", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}
	out := make([]historyEntry, 0, len(runs))
	for _, run := range runs {
		out = append(out, historyEntry{
			ID:         run.ID,
			ASIN:       run.ASIN,
			Title:      run.Title,
			Author:     run.Author,
			State:      run.State,
			Reason:     run.Reason,
			Pages:      run.Pages,
			Error:      run.Error,
			Outputs:    run.Outputs,
			StartedAt:  run.StartedAt,
			FinishedAt: run.FinishedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) writeRunError(w http.ResponseWriter, err error) {
	if errors.Is(err, runner.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
