// Package server owns the HTTP surface: the chi router, global
// middleware, and the graceful shutdown lifecycle.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/keydesk/keydesk/internal/audit"
	"github.com/keydesk/keydesk/internal/config"
	"github.com/keydesk/keydesk/internal/handler"
	"github.com/keydesk/keydesk/internal/server/middleware"
	"github.com/keydesk/keydesk/internal/service"
	"github.com/keydesk/keydesk/internal/store"
)

// Server is the top-level HTTP server for keydesk. It owns the chi
// router, the store, the services, and the audit recorder.
type Server struct {
	cfg        *config.Config
	router     chi.Router
	store      *store.Store
	httpServer *http.Server
	logger     *slog.Logger
	version    string
}

// New wires the services, handlers, and middleware into a router and
// returns the server ready to listen.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, version string) *Server {
	s := &Server{
		cfg:     cfg,
		store:   st,
		logger:  logger,
		version: version,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	recorder := audit.NewRecorder(s.store, s.logger)

	loans := handler.NewLoanHandler(service.NewLoanService(s.store, recorder, s.logger))
	bundles := handler.NewBundleHandler(service.NewBundleService(s.store, recorder, s.logger))
	keys := handler.NewKeyHandler(service.NewKeyService(s.store, recorder, s.logger))
	events := handler.NewEventHandler(service.NewEventService(s.store, recorder, s.logger))
	auditH := handler.NewAuditHandler(recorder)
	system := handler.NewSystemHandler(s.store, s.version)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Server.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-API-Key", "X-Actor", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(chimw.Compress(5))
	if s.cfg.Server.RateLimit > 0 {
		r.Use(middleware.RateLimit(s.cfg.Server.RateLimit))
	}

	r.Get("/healthz", system.Healthz)
	r.Get("/readyz", system.Readyz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(s.cfg.Auth.KeyHashes()))

		r.Route("/loans", func(r chi.Router) {
			r.Get("/", loans.List)
			r.Get("/search", loans.Search)
			r.Post("/", loans.Create)
			r.Get("/{loanID}", loans.Get)
			r.Put("/{loanID}", loans.Update)
			r.Delete("/{loanID}", loans.Delete)
		})

		r.Route("/bundles", func(r chi.Router) {
			r.Get("/", bundles.List)
			r.Get("/search", bundles.Search)
			r.Post("/", bundles.Create)
			r.Get("/{bundleID}", bundles.Get)
			r.Put("/{bundleID}", bundles.Update)
			r.Delete("/{bundleID}", bundles.Delete)
			r.Get("/{bundleID}/keys-with-loan-status", bundles.KeysWithLoanStatus)
		})

		r.Route("/keys", func(r chi.Router) {
			r.Get("/", keys.List)
			r.Get("/search", keys.Search)
			r.Post("/", keys.Create)
			r.Get("/{keyID}", keys.Get)
			r.Put("/{keyID}", keys.Update)
		})

		r.Route("/events", func(r chi.Router) {
			r.Get("/", events.ListForKey)
			r.Post("/", events.Create)
			r.Get("/{eventID}", events.Get)
			r.Put("/{eventID}/status", events.AdvanceStatus)
		})

		r.Get("/audit", auditH.List)
	})

	s.router = r
}

// ListenAndServe starts the HTTP server and blocks until SIGINT or
// SIGTERM, then drains in-flight requests and closes the store.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr, "version", s.version)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	if err := s.store.Close(); err != nil {
		s.logger.Warn("store close", "error", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
