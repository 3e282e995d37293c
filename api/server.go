// Package api exposes econoflow over HTTP: the uniform data contract
// (fetch, resolve, route, region expansion, release feeds) under
// /api/v1, operational endpoints (catalog reload, breaker states, key
// report) under /admin, and prometheus metrics on /metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/econoflow/econoflow/internal/catalog"
	"github.com/econoflow/econoflow/internal/config"
	"github.com/econoflow/econoflow/internal/fetch"
	"github.com/econoflow/econoflow/internal/provider"
	"github.com/econoflow/econoflow/internal/ratelimit"
	"github.com/econoflow/econoflow/internal/releases"
	"github.com/econoflow/econoflow/internal/resolve"
	"github.com/econoflow/econoflow/internal/router"
	"github.com/econoflow/econoflow/internal/telemetry"
)

// Server is the HTTP front for the fetch pipeline. It owns no policy:
// every request is delegated to the orchestrator, resolver, or router
// it was wired with.
type Server struct {
	mux      chi.Router
	cfg      *config.Config
	registry *provider.Registry
	orch     *fetch.Orchestrator
	resolver *resolve.Resolver
	router   *router.Router
	catalog  *catalog.Store
	releases *releases.Client
	gate     *ratelimit.Gate
	metrics  *telemetry.Metrics
	version  string
}

// Options wires a Server. Releases, Gate, and Metrics may be nil; the
// matching endpoints then answer 503.
type Options struct {
	Config   *config.Config
	Registry *provider.Registry
	Orch     *fetch.Orchestrator
	Resolver *resolve.Resolver
	Router   *router.Router
	Catalog  *catalog.Store
	Releases *releases.Client
	Gate     *ratelimit.Gate
	Metrics  *telemetry.Metrics
	Version  string
}

// NewServer assembles the route tree around the given components.
func NewServer(opts Options) *Server {
	if opts.Version == "" {
		opts.Version = "dev"
	}
	srv := &Server{
		cfg:      opts.Config,
		registry: opts.Registry,
		orch:     opts.Orch,
		resolver: opts.Resolver,
		router:   opts.Router,
		catalog:  opts.Catalog,
		releases: opts.Releases,
		gate:     opts.Gate,
		metrics:  opts.Metrics,
		version:  opts.Version,
	}
	srv.mux = srv.buildRouter()
	return srv
}

// Handler returns the assembled route tree for tests and embedding.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe starts the HTTP server and blocks until SIGINT/SIGTERM
// or a listener error, then drains in-flight requests.
func (s *Server) ListenAndServe(addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	log.Info().Str("addr", addr).Msg("api server listening")
	select {
	case err := <-errc:
		return err
	case <-done:
	}
	log.Info().Msg("shutting down api server")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(ctx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	origins := []string{"*"}
	if s.cfg != nil && len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/providers", s.handleProviders)
		r.Post("/fetch", s.handleFetch)
		r.Post("/resolve", s.handleResolve)
		r.Post("/route", s.handleRoute)
		r.Get("/regions/{label}", s.handleRegion)
		r.Get("/releases", s.handleReleases)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Post("/catalog/reload", s.handleCatalogReload)
		r.Get("/breakers", s.handleBreakers)
		r.Get("/config", s.handleConfig)
		r.Get("/keys", s.handleKeys)
	})

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	return r
}

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to write JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}

// writeProviderError maps the provider error taxonomy onto HTTP
// statuses and keeps suggestions and clarification questions in the
// payload so callers can relay them.
func writeProviderError(w http.ResponseWriter, err error) {
	resp := APIResponse{Success: false, Error: err.Error()}
	status := http.StatusInternalServerError

	var invalid *provider.InvalidInputError
	var notAvail *provider.NotAvailableError
	var limited *provider.RateLimitedError
	switch {
	case errors.As(err, &invalid):
		status = http.StatusBadRequest
		if len(invalid.Clarifications) > 0 {
			resp.Data = map[string]any{"clarifications": invalid.Clarifications}
		}
	case errors.As(err, &limited):
		status = http.StatusTooManyRequests
		if limited.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(limited.RetryAfter.Seconds()+0.5)))
		}
	case errors.As(err, &notAvail):
		status = http.StatusNotFound
		if len(notAvail.Suggestions) > 0 {
			resp.Data = map[string]any{"suggestions": notAvail.Suggestions}
		}
	}

	writeJSON(w, status, resp)
}
