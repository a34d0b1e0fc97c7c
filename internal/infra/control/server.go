package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"audiotextbot/internal/domain"
)

// Controller is the part of the pipeline the server drives.
type Controller interface {
	Start(ctx context.Context) error
	Stop() error
	State() domain.PipelineState
	ModelReady() bool
}

// Subscriber hands out event streams for websocket clients.
type Subscriber interface {
	Subscribe(buffer int) (<-chan domain.Event, func())
}

type Server struct {
	addr        string
	authToken   string
	controller  Controller
	events      Subscriber
	logger      *slog.Logger
	mux         *http.ServeMux
	rateLimiter *RateLimiter

	mu      sync.Mutex
	ctx     context.Context
	server  *http.Server
	running bool
}

// NewServer builds the control API. metrics may be nil, in which case
// /metrics is not served.
func NewServer(
	addr string,
	authToken string,
	controller Controller,
	events Subscriber,
	metrics http.Handler,
	logger *slog.Logger,
) *Server {
	s := &Server{
		addr:        addr,
		authToken:   authToken,
		controller:  controller,
		events:      events,
		logger:      logger,
		mux:         http.NewServeMux(),
		rateLimiter: NewRateLimiter(30, time.Minute), // 30 requests per minute per IP
		ctx:         context.Background(),
	}

	s.mux.HandleFunc("POST /start", s.rateLimiter.Middleware(s.authorize(s.handleStart)))
	s.mux.HandleFunc("POST /stop", s.rateLimiter.Middleware(s.authorize(s.handleStop)))
	s.mux.HandleFunc("GET /status", s.authorize(s.handleStatus))
	s.mux.HandleFunc("GET /events", s.authorize(s.handleEvents))
	s.mux.HandleFunc("GET /health", s.handleHealth)
	if metrics != nil {
		s.mux.Handle("GET /metrics", metrics)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves in the background. ctx bounds recording sessions started
// through the API, not the server itself.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	s.ctx = ctx
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		s.logger.Info("control server starting", "addr", s.addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("control server error", "error", err)
		}
	}()

	s.running = true
	return nil
}

func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn("graceful shutdown failed, forcing close", "error", err)
		if err := s.server.Close(); err != nil {
			return fmt.Errorf("closing server: %w", err)
		}
	}

	s.running = false
	return nil
}

// authorize checks the static token from the X-Auth-Token header or the
// token query parameter. An empty configured token disables the check.
func (s *Server) authorize(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authToken != "" {
			token := r.Header.Get("X-Auth-Token")
			if token == "" {
				token = r.URL.Query().Get("token")
			}
			if token != s.authToken {
				s.logger.Warn("unauthorized control request", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

type statusResponse struct {
	Status     string               `json:"status,omitempty"`
	State      domain.PipelineState `json:"state"`
	ModelReady bool                 `json:"model_ready"`
	Error      string               `json:"error,omitempty"`
}

func (s *Server) snapshot() statusResponse {
	return statusResponse{
		State:      s.controller.State(),
		ModelReady: s.controller.ModelReady(),
	}
}

func (s *Server) handleStart(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	if err := s.controller.Start(ctx); err != nil {
		resp := s.snapshot()
		resp.Error = err.Error()
		writeJSON(w, startErrorStatus(err), resp)
		return
	}

	s.logger.Info("recording started via control API")
	resp := s.snapshot()
	resp.Status = "started"
	writeJSON(w, http.StatusAccepted, resp)
}

func startErrorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrModelNotLoaded):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrAlreadyRecording):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	if err := s.controller.Stop(); err != nil {
		resp := s.snapshot()
		resp.Error = err.Error()
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}

	resp := s.snapshot()
	resp.Status = "stopped"
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	statusCode := http.StatusOK
	ready := s.controller.ModelReady()
	if !ready {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, map[string]any{
		"status":      status,
		"model_ready": ready,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
