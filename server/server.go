// Package server handles HTTP endpoints and request routing.
package server

import (
	"carwatch/conversation"
	"carwatch/poll"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Conversation handles one chat message for a user.
type Conversation interface {
	HandleText(ctx context.Context, userID, text string) ([]conversation.Reply, error)
}

// Poller interface for triggering checks.
type Poller interface {
	CheckAll(ctx context.Context) (poll.PassStats, error)
}

// Server handles HTTP requests.
type Server struct {
	conversation Conversation
	poller       Poller
	logger       *slog.Logger
	limiter      *rateLimiter
	cfg          Config
}

// Config holds server configuration.
type Config struct {
	Conversation    Conversation
	Poller          Poller
	Logger          *slog.Logger
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Messages allowed per user within RateWindow.
	RateLimit  int
	RateWindow time.Duration
}

// New creates a new HTTP server handler.
func New(cfg *Config) *Server {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 30
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Minute
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return &Server{
		conversation: cfg.Conversation,
		poller:       cfg.Poller,
		logger:       cfg.Logger,
		limiter:      newRateLimiter(cfg.RateLimit, cfg.RateWindow),
		cfg:          *cfg,
	}
}

// Handler returns the router with all endpoints registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/pollz", s.handlePoll)
	mux.HandleFunc("/messages", s.handleMessages)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	server := &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.Handler(),
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout, // Covers a synchronous /pollz pass and interactive fetches
		IdleTimeout:       s.cfg.IdleTimeout,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", "port", s.cfg.Port)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server", "timeout", s.cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, `{"status":"healthy"}`); err != nil {
		s.logger.Warn("Failed to write health response", "error", err)
	}
}

type pollResponse struct {
	Status string `json:"status"`
	poll.PassStats
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.logger.Info("Poll endpoint triggered")

	stats, err := s.poller.CheckAll(r.Context())
	if errors.Is(err, poll.ErrPassInProgress) {
		s.logger.Info("Poll endpoint skipped, pass already running")
		http.Error(w, "Poll pass already in progress", http.StatusConflict)
		return
	}
	if err != nil {
		s.logger.Error("Poll check failed", "error", err)
		http.Error(w, "Check failed", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, pollResponse{Status: "completed", PassStats: stats})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}
