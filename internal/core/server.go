// Package core provides the HTTP chassis for the rainbowwatch API: the chi
// router, the global middleware chain, response envelopes, and the health
// endpoint. Cross-cutting concerns live here so domain handlers stay thin.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rainbowwatch/internal/config"
)

// RouteRegistrar mounts a domain handler group onto the v1 router. Handler
// packages implement this; the entry point collects them so core never
// imports handlers.
type RouteRegistrar interface {
	RegisterRoutes(r chi.Router)
}

// Server bundles the router with the dependencies every request touches.
type Server struct {
	Config       *config.Config
	Logger       *slog.Logger
	Validator    *Validator
	HealthProbes []HealthProbe

	router *chi.Mux
}

// NewServer builds a Server and its router. Routes are mounted separately via
// MountRoutes so tests can register their own handler sets.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(),
		router:    chi.NewRouter(),
	}, nil
}

// MountRoutes registers the global middleware chain, the health endpoint,
// and every registrar's routes under /v1.
//
// Middleware order matters: Recoverer is outermost so panics anywhere in the
// chain are caught; the timeout wraps everything downstream of it; the
// request ID must exist before the logger runs.
func (s *Server) MountRoutes(registrars ...RouteRegistrar) {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(s.Config.Server.RequestTimeout))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger))
	s.router.Use(IdentityMiddleware)

	s.router.Route("/v1", func(r chi.Router) {
		for _, reg := range registrars {
			reg.RegisterRoutes(r)
		}
	})

	s.router.Get("/health", s.HandleHealth)
}

// Handler returns the router as an http.Handler for ListenAndServe.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router exposes the underlying mux for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown is a hook for resource teardown at process exit. Connection pools
// are owned by the entry point; this only flushes server-scoped state.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown complete")
	return nil
}
