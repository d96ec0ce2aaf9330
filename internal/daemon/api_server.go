package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"hipot/internal/config"
	"hipot/internal/history"
	"hipot/internal/logging"
)

const defaultRunsLimit = 50

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon
	router chi.Router

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}
	srv.router = srv.routes(strings.TrimSpace(cfg.Paths.APIToken))
	srv.server = &http.Server{
		Handler:           srv.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) routes(token string) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(authMiddleware(token))

	r.Get("/api/status", s.handleStatus)
	r.Get("/api/report", s.handleReport)
	r.Get("/api/runs", s.handleRuns)
	r.Get("/api/runs/{id}", s.handleRun)
	r.Get("/api/events", s.handleEvents)
	return r
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// addr reports the bound listener address.
func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleReport(w http.ResponseWriter, _ *http.Request) {
	report, ok := s.daemon.LastReport()
	if !ok {
		s.writeError(w, http.StatusNotFound, "no batch has finished yet")
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *apiServer) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunsLimit
	if value := strings.TrimSpace(r.URL.Query().Get("limit")); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	runs, err := s.daemon.Runs(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *apiServer) handleRun(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	report, err := s.daemon.Run(r.Context(), id)
	switch {
	case errors.Is(err, history.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "run not found")
		return
	case errors.Is(err, history.ErrAmbiguous):
		s.writeError(w, http.StatusConflict, "run id prefix is ambiguous")
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// handleEvents streams batch snapshots as server-sent events until the client
// disconnects. The first event carries the current state.
func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// The stream outlives the server write timeout.
	_ = rc.SetWriteDeadline(time.Time{})

	updates, cancel := s.daemon.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(v any) bool {
		payload, err := json.Marshal(v)
		if err != nil {
			s.log().Error("failed to encode event", logging.Error(err))
			return false
		}
		if _, err := fmt.Fprintf(w, "event: status\ndata: %s\n\n", payload); err != nil {
			return false
		}
		return rc.Flush() == nil
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case snap, ok := <-updates:
			if !ok {
				return
			}
			if !send(snap) {
				return
			}
		}
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String("component", "api-server"))
	}
	return logging.NewNop()
}
