package app

import (
	"context"
	"fmt"

	"github.com/mcroberts-scholars/scholarship-harvester/internal/config"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/discovery"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/domain"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/logger"
)

// Operator runs one-shot commands against the configured storage. With the
// bbolt backend the harvester must not hold the database file at the same time.
type Operator struct {
	rt     *runtime
	cancel context.CancelFunc
	done   chan struct{}
}

// NewOperator builds the shared runtime and starts the intake consumer.
func NewOperator(ctx context.Context, cfg *config.Config, log logger.Logger) (*Operator, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := buildRuntime(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	intakeCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = rt.intake.Run(intakeCtx)
	}()
	return &Operator{rt: rt, cancel: cancel, done: done}, nil
}

// Close stops the intake and releases storage and publishers.
func (o *Operator) Close() {
	if o == nil || o.rt == nil {
		return
	}
	o.cancel()
	<-o.done
	o.rt.close()
}

// Batch processes one batch, or lists what it would process when dryRun is set.
func (o *Operator) Batch(ctx context.Context, limit int, dryRun bool) (domain.BatchRun, []domain.SubmittedLink, error) {
	if dryRun {
		links, err := o.rt.batch.Preview(ctx, limit)
		return domain.BatchRun{}, links, err
	}
	run, err := o.rt.batch.ProcessBatch(ctx, limit)
	return run, nil, err
}

// Discover runs one discovery pass. It fails when discovery is disabled.
func (o *Operator) Discover(ctx context.Context) (discovery.Report, error) {
	if o.rt.discovery == nil {
		return discovery.Report{}, fmt.Errorf("discovery is disabled (set DISCOVERY_ENABLED=true)")
	}
	return o.rt.discovery.Discover(ctx)
}

// Sweep removes expired scholarships once.
func (o *Operator) Sweep(ctx context.Context) (domain.RemoveResult, error) {
	return o.rt.sweeper.Sweep(ctx)
}

// Submit stores URLs through the intake queue.
func (o *Operator) Submit(ctx context.Context, urls []string, actor string) ([]domain.StoreResult, error) {
	return o.rt.intake.SubmitAll(ctx, urls, actor, "cli")
}

// Search queries the catalog.
func (o *Operator) Search(ctx context.Context, q domain.SearchQuery) ([]domain.ScholarshipRecord, error) {
	return o.rt.store.Search(ctx, q)
}

// Links lists unprocessed links oldest-first.
func (o *Operator) Links(ctx context.Context, limit int) ([]domain.SubmittedLink, error) {
	return o.rt.store.ListUnprocessed(ctx, limit)
}
