// Package server exposes the extraction service over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/formflow/internal/service"
)

// Deps are the collaborators behind the routes.
type Deps struct {
	Service *service.Service
	// Async enables async_mode and task lookups. Nil disables both.
	Async *service.Async
	// Metrics serves /metrics when set.
	Metrics        http.Handler
	RequestTimeout time.Duration
}

type Server struct {
	Router *chi.Mux
	Port   int
	logger *slog.Logger
	http   *http.Server
}

func New(port int, logger *slog.Logger, deps Deps) *Server {
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 90 * time.Second
	}
	h := &handlers{svc: deps.Service, async: deps.Async, validate: newValidator()}

	r := chi.NewRouter()
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", healthz)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/v1/form-extraction", func(r chi.Router) {
		r.Use(TimeoutMiddleware(deps.RequestTimeout))
		r.Use(func(next http.Handler) http.Handler {
			return otelhttp.NewHandler(next, "formflow")
		})

		r.Post("/", h.extract)
		r.Get("/codes", h.codes)
		r.Get("/codes/{form_code}/schema", h.formSchema)
		r.Get("/{task_id}", h.taskStatus)
	})

	return &Server{
		Router: r,
		Port:   port,
		logger: logger,
	}
}

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           s.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting server", slog.Int("port", s.Port))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
