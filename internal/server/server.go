package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Server is the HTTP front of the solver.
type Server struct {
	Router *chi.Mux
	httpd  *http.Server
	logger *slog.Logger
}

// New builds the router with the standard middleware chain and mounts the
// API routes plus the Prometheus endpoint.
func New(port int, logger *slog.Logger, handlers *Handlers) *Server {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "groverd")
	})

	handlers.Routes(r)
	r.Handle("/metrics", promhttp.Handler())

	return &Server{
		Router: r,
		httpd: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		},
		logger: logger,
	}
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info("starting server", slog.String("addr", s.httpd.Addr))
	if err := s.httpd.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpd.Shutdown(ctx)
}
