// Package ops serves the operational HTTP endpoints: liveness and Prometheus
// metrics.
package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openstream/transcoder/internal/config"
	"github.com/openstream/transcoder/internal/version"
)

// Server is the ops endpoint.
type Server struct {
	http   *http.Server
	logger *slog.Logger
}

// NewServer builds the ops server with /healthz and /metrics routes.
func NewServer(cfg config.OpsConfig, logger *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  "ok",
			"service": version.ApplicationName,
			"version": version.Version,
		})
	})
	r.Handle("/metrics", promhttp.Handler())

	return &Server{
		http: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start serves in the background. Listen failures are fatal for the process;
// they signal a port conflict, not a transient condition.
func (s *Server) Start() {
	go func() {
		s.logger.Info("ops endpoint listening", slog.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("ops endpoint failed", slog.String("error", err.Error()))
		}
	}()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
