package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/mcroberts-scholars/scholarship-harvester/internal/domain"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/logger"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/metrics"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/storage"
	"github.com/mcroberts-scholars/scholarship-harvester/pkg/publishers"
)

// EventPublisher publishes catalog events downstream.
type EventPublisher interface {
	Publish(ctx context.Context, evt publishers.Event) (int, error)
}

// Sweeper removes catalog records whose deadline has passed.
type Sweeper struct {
	catalog   storage.CatalogStore
	publisher EventPublisher
	log       logger.Logger
	now       func() time.Time
}

// NewSweeper builds a sweeper. publisher may be nil.
func NewSweeper(catalog storage.CatalogStore, publisher EventPublisher, log logger.Logger) *Sweeper {
	return &Sweeper{
		catalog:   catalog,
		publisher: publisher,
		log:       logger.Ensure(log),
		now:       time.Now,
	}
}

// Sweep removes expired records once. Removal is idempotent, so a repeated
// sweep after a restart is harmless.
func (s *Sweeper) Sweep(ctx context.Context) (domain.RemoveResult, error) {
	res, err := s.catalog.RemoveExpired(ctx, s.now())
	if err != nil {
		return domain.RemoveResult{}, fmt.Errorf("remove expired scholarships: %w", err)
	}
	metrics.SweepRemoved.Add(float64(res.RemovedCount))

	names := make([]string, 0, len(res.Removed))
	for _, r := range res.Removed {
		names = append(names, r.Name)
	}
	s.log.InfoObj("expiry sweep completed", "sweep_result", map[string]any{
		"removed_count": res.RemovedCount,
		"removed":       names,
	})

	if res.RemovedCount > 0 && s.publisher != nil {
		if _, err := s.publisher.Publish(ctx, publishers.NewSweepCompletedEvent(res.Removed)); err != nil {
			s.log.WarnObj("event publish failed", "publish_error", map[string]any{
				"event_type": publishers.EventSweepCompleted,
				"error":      err.Error(),
			})
		}
	}
	return res, nil
}
