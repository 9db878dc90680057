// Package scheduler runs the expiry sweep and scheduled batches on cron
// schedules without letting a job overlap itself.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mcroberts-scholars/scholarship-harvester/internal/crawler"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/discovery"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/domain"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/logger"
	"github.com/robfig/cron/v3"
)

const (
	JobSweep = "sweep"
	JobBatch = "batch"
)

// BatchRunner processes a batch of unprocessed links.
type BatchRunner interface {
	ProcessBatch(ctx context.Context, limit int) (domain.BatchRun, error)
}

// Discoverer submits candidate links found on listing pages.
type Discoverer interface {
	Discover(ctx context.Context) (discovery.Report, error)
}

// Config controls the schedules. Empty BatchSchedule disables scheduled batches.
type Config struct {
	SweepSchedule string
	BatchSchedule string
	SweepOnStart  bool
	BatchLimit    int
	Location      *time.Location
}

// Scheduler owns the sweep and batch jobs.
type Scheduler struct {
	cfg        Config
	sweeper    *Sweeper
	batch      BatchRunner
	discoverer Discoverer
	log        logger.Logger

	cron     *cron.Cron
	sweepJob *Job
	batchJob *Job

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// New builds a scheduler. batch and discoverer may be nil.
func New(cfg Config, sweeper *Sweeper, batch BatchRunner, discoverer Discoverer, log logger.Logger) (*Scheduler, error) {
	if sweeper == nil {
		return nil, fmt.Errorf("scheduler requires a sweeper")
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Scheduler{
		cfg:        cfg,
		sweeper:    sweeper,
		batch:      batch,
		discoverer: discoverer,
		log:        logger.Ensure(log),
		cron:       cron.New(cron.WithLocation(cfg.Location)),
		sweepJob:   NewJob(JobSweep),
		batchJob:   NewJob(JobBatch),
		entries:    make(map[string]cron.EntryID),
	}, nil
}

// Start registers the schedules, runs the start-up sweep and blocks until ctx
// ends. Running jobs are allowed to finish before it returns.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.SweepSchedule != "" {
		if err := s.register(JobSweep, s.cfg.SweepSchedule, func() { s.sweepTick(ctx) }); err != nil {
			return err
		}
	}
	if s.cfg.BatchSchedule != "" && s.batch != nil {
		if err := s.register(JobBatch, s.cfg.BatchSchedule, func() { s.batchTick(ctx) }); err != nil {
			return err
		}
	}

	if s.cfg.SweepOnStart {
		s.sweepTick(ctx)
	}

	s.cron.Start()
	s.log.InfoObj("scheduler started", "scheduler_state", map[string]any{
		"sweep_schedule": s.cfg.SweepSchedule,
		"batch_schedule": s.cfg.BatchSchedule,
		"location":       s.cfg.Location.String(),
		"next_runs":      s.NextRuns(),
	})

	<-ctx.Done()
	stopped := s.cron.Stop()
	<-stopped.Done()
	s.log.InfoObj("scheduler stopped", "scheduler_state", map[string]any{"reason": ctx.Err().Error()})
	return nil
}

func (s *Scheduler) register(name, spec string, fn func()) error {
	id, err := s.cron.AddFunc(spec, fn)
	if err != nil {
		return fmt.Errorf("schedule %s job %q: %w", name, spec, err)
	}
	s.mu.Lock()
	s.entries[name] = id
	s.mu.Unlock()
	return nil
}

// NextRuns returns the next activation per scheduled job.
func (s *Scheduler) NextRuns() map[string]time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Time, len(s.entries))
	for name, id := range s.entries {
		out[name] = s.cron.Entry(id).Next
	}
	return out
}

// RunSweep runs the expiry sweep now unless one is in flight (ErrSkipped).
func (s *Scheduler) RunSweep(ctx context.Context) (domain.RemoveResult, error) {
	var res domain.RemoveResult
	err := s.sweepJob.TryRun(ctx, func(ctx context.Context) error {
		r, err := s.sweeper.Sweep(ctx)
		res = r
		return err
	})
	return res, err
}

// RunBatch runs discovery (when configured) and then one batch.
func (s *Scheduler) RunBatch(ctx context.Context) (domain.BatchRun, error) {
	if s.batch == nil {
		return domain.BatchRun{}, fmt.Errorf("batch runner not configured")
	}
	var run domain.BatchRun
	err := s.batchJob.TryRun(ctx, func(ctx context.Context) error {
		if s.discoverer != nil {
			report, err := s.discoverer.Discover(ctx)
			if err != nil {
				s.log.WarnObj("discovery finished with errors", "discovery_error", map[string]any{
					"report": report,
					"error":  err.Error(),
				})
			}
		}
		r, err := s.batch.ProcessBatch(ctx, s.cfg.BatchLimit)
		run = r
		return err
	})
	return run, err
}

// Jobs returns the state of both jobs.
func (s *Scheduler) Jobs() []JobStatus {
	return []JobStatus{s.sweepJob.Status(), s.batchJob.Status()}
}

func (s *Scheduler) sweepTick(ctx context.Context) {
	if _, err := s.RunSweep(ctx); err != nil {
		s.logTickError(JobSweep, err)
	}
}

func (s *Scheduler) batchTick(ctx context.Context) {
	run, err := s.RunBatch(ctx)
	if err != nil {
		s.logTickError(JobBatch, err)
		return
	}
	s.log.InfoObj("scheduled batch finished", "batch_result", map[string]any{
		"batch_id": run.ID,
		"summary":  run.Summary(),
	})
}

func (s *Scheduler) logTickError(job string, err error) {
	if errors.Is(err, ErrSkipped) || errors.Is(err, crawler.ErrBatchInProgress) {
		s.log.InfoObj("scheduled run skipped", "job_skip", map[string]any{"job": job, "reason": err.Error()})
		return
	}
	s.log.ErrorObj("scheduled run failed", "job_error", map[string]any{
		"job":   job,
		"error": err.Error(),
	})
}
