// Package core provides the HTTP chassis for the payment webhook service: a
// chi router with the cross-cutting middleware chain (panic recovery,
// timeouts, request ids, logging, metrics, body decoding) and the health
// endpoint. Gateway handlers register their routes through RouteRegistrars.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"heliogate/internal/config"
)

// MetricsCollector records API request telemetry.
type MetricsCollector interface {
	RecordRequest(ctx context.Context, method, endpoint, status string, duration time.Duration)
}

// RouteRegistrar mounts a handler group on the router.
type RouteRegistrar func(r chi.Router)

// Server holds the router and its injected dependencies.
type Server struct {
	Config       *config.Config
	Logger       *slog.Logger
	Metrics      MetricsCollector
	HealthProbes []HealthProbe

	// RouteRegistrars are applied by MountRoutes after the middleware chain.
	RouteRegistrars []RouteRegistrar

	// Closers run on Shutdown in registration order.
	Closers []func() error

	router *chi.Mux
}

// NewServer validates dependencies and prepares the router. Routes are
// mounted separately by MountRoutes.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	return &Server{
		Config: cfg,
		Logger: logger,
		router: chi.NewRouter(),
	}, nil
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown releases server resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.InfoContext(ctx, "server shutdown initiated")

	var errs []error
	for _, closeFn := range s.Closers {
		if err := closeFn(); err != nil {
			s.Logger.ErrorContext(ctx, "error closing resource", "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown: %w", errors.Join(errs...))
	}

	s.Logger.InfoContext(ctx, "server shutdown complete")
	return nil
}
