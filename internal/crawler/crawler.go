package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/domain"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/extraction"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/logger"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/metrics"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/storage"
	"github.com/mcroberts-scholars/scholarship-harvester/pkg/publishers"
)

const (
	DefaultBatchLimit = 10
	MaxBatchLimit     = 50
	DefaultLinkDelay  = 1500 * time.Millisecond
)

// ErrBatchInProgress is returned when a batch is requested while one runs.
var ErrBatchInProgress = errors.New("batch already in progress")

// Deps are the collaborators of the batch service.
type Deps struct {
	Links     storage.LinkStore
	Catalog   storage.CatalogStore
	Fetcher   ContentFetcher
	Extractor Extractor
	Publisher EventPublisher
	Logger    logger.Logger
}

// Options tunes batch behaviour. Zero values pick the defaults.
type Options struct {
	LinkDelay    time.Duration
	DefaultLimit int
}

// Service drives unprocessed links through fetch, extraction and the catalog.
type Service struct {
	links     storage.LinkStore
	catalog   storage.CatalogStore
	fetcher   ContentFetcher
	extractor Extractor
	publisher EventPublisher
	log       logger.Logger

	delay        time.Duration
	defaultLimit int
	running      atomic.Bool
}

// NewService wires the batch service.
func NewService(deps Deps, opts Options) (*Service, error) {
	if deps.Links == nil || deps.Catalog == nil {
		return nil, fmt.Errorf("crawler service requires link and catalog stores")
	}
	if deps.Fetcher == nil || deps.Extractor == nil {
		return nil, fmt.Errorf("crawler service requires a fetcher and an extractor")
	}
	if opts.LinkDelay < 0 {
		opts.LinkDelay = 0
	}
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = DefaultBatchLimit
	}

	return &Service{
		links:        deps.Links,
		catalog:      deps.Catalog,
		fetcher:      deps.Fetcher,
		extractor:    deps.Extractor,
		publisher:    deps.Publisher,
		log:          logger.Ensure(deps.Logger),
		delay:        opts.LinkDelay,
		defaultLimit: opts.DefaultLimit,
	}, nil
}

// ClampLimit maps a requested batch size into 1..MaxBatchLimit; values <= 0
// select def.
func ClampLimit(limit, def int) int {
	if limit <= 0 {
		limit = def
	}
	if limit <= 0 {
		limit = DefaultBatchLimit
	}
	if limit > MaxBatchLimit {
		limit = MaxBatchLimit
	}
	return limit
}

// Running reports whether a batch is in flight.
func (s *Service) Running() bool {
	return s.running.Load()
}

// Preview lists the links the next batch would process without touching state.
func (s *Service) Preview(ctx context.Context, limit int) ([]domain.SubmittedLink, error) {
	links, err := s.links.ListUnprocessed(ctx, ClampLimit(limit, s.defaultLimit))
	if err != nil {
		return nil, fmt.Errorf("list unprocessed links: %w", err)
	}
	return links, nil
}

// ProcessBatch processes up to limit unprocessed links oldest-first. Every
// attempted link is marked processed whatever its outcome. Only a failure to
// list links aborts the run.
func (s *Service) ProcessBatch(ctx context.Context, limit int) (domain.BatchRun, error) {
	if !s.running.CompareAndSwap(false, true) {
		return domain.BatchRun{}, ErrBatchInProgress
	}
	defer s.running.Store(false)

	limit = ClampLimit(limit, s.defaultLimit)
	run := domain.BatchRun{
		ID:             uuid.NewString(),
		RequestedCount: limit,
		StartedAt:      time.Now().UTC(),
	}

	links, err := s.links.ListUnprocessed(ctx, limit)
	if err != nil {
		run.FinishedAt = time.Now().UTC()
		s.log.ErrorObj("batch aborted", "batch_error", map[string]any{
			"batch_id": run.ID,
			"error":    err.Error(),
		})
		return run, fmt.Errorf("list unprocessed links: %w", err)
	}

	s.log.InfoObj("batch started", "batch_start", map[string]any{
		"batch_id": run.ID,
		"limit":    limit,
		"pending":  len(links),
	})

	for i, link := range links {
		if i > 0 {
			if err := wait(ctx, s.delay); err != nil {
				run.Errors = append(run.Errors, fmt.Sprintf("batch interrupted before link %s: %v", link.ID, err))
				break
			}
		}

		outcome := s.processLink(ctx, link)
		run.Results = append(run.Results, outcome)
		metrics.BatchLinks.WithLabelValues(string(outcome.Outcome)).Inc()

		if _, err := s.links.MarkProcessed(ctx, []string{link.ID}); err != nil {
			run.Errors = append(run.Errors, fmt.Sprintf("mark link %s processed: %v", link.ID, err))
			s.log.ErrorObj("mark processed failed", "batch_link_error", map[string]any{
				"batch_id": run.ID,
				"link_id":  link.ID,
				"error":    err.Error(),
			})
		}
	}

	run.FinishedAt = time.Now().UTC()
	s.log.InfoObj("batch completed", "batch_result", map[string]any{
		"batch_id": run.ID,
		"summary":  run.Summary(),
		"errors":   len(run.Errors),
		"duration": run.FinishedAt.Sub(run.StartedAt).String(),
	})
	s.publish(ctx, publishers.NewBatchCompletedEvent(run))
	return run, nil
}

// processLink runs fetch → extract → upsert for one link and returns its
// terminal outcome.
func (s *Service) processLink(ctx context.Context, link domain.SubmittedLink) domain.LinkOutcome {
	out := domain.LinkOutcome{LinkID: link.ID, URL: link.URL}

	res := s.extractURL(ctx, link.URL)
	if !res.OK {
		out.Outcome = domain.OutcomeFailed
		if res.Reason == domain.ReasonNotScholarship {
			out.Outcome = domain.OutcomeNotScholarship
		}
		out.Reason = failureReason(res)
		s.log.InfoObj("link not added", "batch_link", map[string]any{
			"link_id": link.ID,
			"url":     link.URL,
			"outcome": out.Outcome,
			"reason":  out.Reason,
		})
		return out
	}

	rec := res.Data.ToRecord(link.URL)
	out.Name = rec.Name
	up, err := s.catalog.Upsert(ctx, rec)
	if err != nil {
		metrics.CatalogUpserts.WithLabelValues(string(domain.UpsertError)).Inc()
		out.Outcome = domain.OutcomeFailed
		out.Reason = "storage: " + err.Error()
		s.log.ErrorObj("catalog upsert failed", "batch_link_error", map[string]any{
			"link_id": link.ID,
			"url":     link.URL,
			"error":   err.Error(),
		})
		return out
	}
	metrics.CatalogUpserts.WithLabelValues(string(up.Status)).Inc()

	switch upErr := up.Err(); {
	case upErr == nil:
		out.Outcome = domain.OutcomeAdded
		rec.ID = up.ID
		s.publish(ctx, publishers.NewScholarshipAddedEvent(rec))
	case errors.Is(upErr, domain.ErrCatalogConflict):
		out.Outcome = domain.OutcomeSkipped
		out.Reason = up.Reason
	default:
		out.Outcome = domain.OutcomeFailed
		out.Reason = up.Reason
	}

	s.log.InfoObj("link processed", "batch_link", map[string]any{
		"link_id": link.ID,
		"url":     link.URL,
		"outcome": out.Outcome,
		"name":    out.Name,
		"method":  res.Method,
	})
	return out
}

// ProcessURL fetches and extracts one URL without writing to the catalog.
func (s *Service) ProcessURL(ctx context.Context, rawURL string) extraction.Result {
	return s.extractURL(ctx, rawURL)
}

func (s *Service) extractURL(ctx context.Context, rawURL string) extraction.Result {
	page, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return extraction.Result{Reason: domain.ReasonContentFetchFailed, Err: err}
	}
	return s.extractor.Extract(ctx, rawURL, page.Text)
}

func failureReason(res extraction.Result) string {
	var fe *domain.FetchError
	if errors.As(res.Err, &fe) {
		return fmt.Sprintf("%s: %s", res.Reason, fe.Kind)
	}
	return res.Reason
}

func (s *Service) publish(ctx context.Context, evt publishers.Event) {
	if s.publisher == nil {
		return
	}
	if _, err := s.publisher.Publish(ctx, evt); err != nil {
		s.log.WarnObj("event publish failed", "publish_error", map[string]any{
			"event_type": evt.Type,
			"error":      err.Error(),
		})
	}
}

// wait pauses between links; it returns early when ctx ends.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
