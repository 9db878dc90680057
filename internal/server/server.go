// Package server exposes the webhook, pull/ack and operator endpoints over gin.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/domain"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/extraction"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/ingress"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/logger"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/metrics"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/scheduler"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/storage"
	"github.com/mcroberts-scholars/scholarship-harvester/pkg/publishers"
)

const shutdownTimeout = 10 * time.Second

// LinkSubmitter stores submitted URLs.
type LinkSubmitter interface {
	SubmitAll(ctx context.Context, urls []string, actor, source string) ([]domain.StoreResult, error)
}

// MessageScanner turns a forwarded chat message into submissions.
type MessageScanner interface {
	Scan(ctx context.Context, msg ingress.ChatMessage) (ingress.ScanResult, error)
}

// BatchService runs extraction batches.
type BatchService interface {
	ProcessBatch(ctx context.Context, limit int) (domain.BatchRun, error)
	Preview(ctx context.Context, limit int) ([]domain.SubmittedLink, error)
	ProcessURL(ctx context.Context, url string) extraction.Result
}

// SweepRunner triggers an expiry sweep.
type SweepRunner interface {
	RunSweep(ctx context.Context) (domain.RemoveResult, error)
}

// JobReporter exposes background job state.
type JobReporter interface {
	Jobs() []scheduler.JobStatus
	NextRuns() map[string]time.Time
}

// EventPublisher publishes catalog events downstream.
type EventPublisher interface {
	Publish(ctx context.Context, evt publishers.Event) (int, error)
}

// Deps are the collaborators behind the routes. Scanner, Sweeper and Jobs may
// be nil, which disables their routes; Publisher may be nil.
type Deps struct {
	Store     storage.Store
	Intake    LinkSubmitter
	Scanner   MessageScanner
	Batch     BatchService
	Sweeper   SweepRunner
	Jobs      JobReporter
	Publisher EventPublisher
	Logger    logger.Logger
}

// Options configures the HTTP surface.
type Options struct {
	Addr    string
	APIKey  string
	Service string
	Version string
}

// Server owns the gin engine and its http.Server.
type Server struct {
	deps    Deps
	opts    Options
	log     logger.Logger
	engine  *gin.Engine
	started time.Time
}

// New builds the router.
func New(deps Deps, opts Options) (*Server, error) {
	if deps.Store == nil || deps.Intake == nil || deps.Batch == nil {
		return nil, fmt.Errorf("server requires a store, an intake and a batch service")
	}
	if opts.Addr == "" {
		opts.Addr = ":3000"
	}
	if opts.Service == "" {
		opts.Service = "scholarship-harvester"
	}

	s := &Server{
		deps:    deps,
		opts:    opts,
		log:     logger.Ensure(deps.Logger),
		started: time.Now(),
	}
	s.engine = s.routes()
	return s, nil
}

// Handler returns the router for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(recoveryMiddleware(s.log), requestLogger(s.log))

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	authed := r.Group("/", apiKeyAuth(s.opts.APIKey))
	authed.POST("/webhook/links", s.webhookLinks)
	authed.POST("/webhook/scholarships", s.webhookScholarships)

	api := authed.Group("/api")
	api.GET("/links/unprocessed", s.unprocessedLinks)
	api.POST("/links/processed", s.markProcessed)
	api.POST("/messages", s.scanMessage)
	api.POST("/batch", s.runBatch)
	api.POST("/process-link", s.processLink)
	api.GET("/scholarships", s.searchScholarships)
	api.POST("/sweep", s.runSweep)
	api.GET("/jobs", s.jobs)
	return r
}

// Run serves until ctx ends and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.InfoObj("http server listening", "http_server", map[string]any{"addr": s.opts.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	s.log.InfoObj("http server stopped", "http_server", map[string]any{"addr": s.opts.Addr})
	return <-errCh
}
