package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/dife-bioinformatics/mekewe/config"
	"github.com/dife-bioinformatics/mekewe/log"
	"github.com/dife-bioinformatics/mekewe/state"
)

// WorkerHealth reports whether the maintenance worker is alive. The
// worker package implements it; /health treats a missing worker as
// unhealthy.
type WorkerHealth interface {
	Healthy() bool
}

// Server is the HTTP surface over the state manager.
type Server struct {
	mgr    *state.Manager
	cfg    *config.Config
	logger *log.Logger
	worker WorkerHealth

	httpServer *http.Server
}

// NewServer wires the HTTP surface. worker may be nil (dev mode without
// a background worker); /health then reports the worker as down.
func NewServer(mgr *state.Manager, cfg *config.Config, logger *log.Logger, worker WorkerHealth) *Server {
	s := &Server{
		mgr:    mgr,
		cfg:    cfg,
		logger: logger,
		worker: worker,
	}
	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the route table. Exposed so tests can drive the full
// middleware stack with httptest.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	createLimiter := newIPRateLimiter(s.cfg.MaxPipelineRunsPerHourPerIP, time.Hour)

	r.Route("/api", func(r chi.Router) {
		r.Get("/analysis", s.handleListAnalysisMethods)
		r.Get("/{method}/params", s.handleMethodParams)
		r.Get("/statistics", s.handleStatistics)

		r.With(createLimiter.middleware).Post("/pipeline", s.handleCreatePipeline)
		r.Route("/pipeline/{ticket}", func(r chi.Router) {
			r.Patch("/", s.handlePatchPipeline)
			r.Delete("/", s.handleDeletePipeline)
			r.Post("/file/upload/{param}", s.handleUploadFile)
			r.Delete("/file/remove/{param}/{filename}", s.handleRemoveFile)
			r.Post("/run/{method}", s.handleCommitPipeline)
			r.Get("/status", s.handleStatus)
			r.Get("/result", s.handleResult)
		})
	})

	r.Get("/health", s.handleHealth)
	r.Get("/config", s.handleClientConfig)
	r.Get("/info-links", s.handleInfoLinks)
	return r
}

// ListenAndServe blocks serving HTTP until Shutdown or a listener error.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", map[string]any{
		"addr": s.cfg.ListenAddr,
	})
	return s.httpServer.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
