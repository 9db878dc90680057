package app

import (
	"context"
	"fmt"

	"github.com/mcroberts-scholars/scholarship-harvester/internal/config"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/ingress"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/logger"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/scheduler"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/server"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/storage"
	"golang.org/x/sync/errgroup"
)

// Harvester is the long-running process: HTTP server, scheduler and the
// link intake, stopped together when the context ends.
type Harvester struct {
	rt        *runtime
	scheduler *scheduler.Scheduler
	server    *server.Server
	closeSeen func() error
}

// NewHarvester builds the harvester runtime from config files.
func NewHarvester(ctx context.Context, cfg *config.Config, log logger.Logger) (*Harvester, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := buildRuntime(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	seen, closeSeen, err := storage.NewSeenSet(ctx, rt.store, storage.SeenOptions{
		Type:          cfg.SeenStore,
		TTL:           cfg.MessageSeenTTL,
		BoltPath:      cfg.BBoltPath,
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
	})
	if err != nil {
		rt.close()
		return nil, fmt.Errorf("init seen store: %w", err)
	}
	scanner := ingress.NewMessageScanner(rt.intake, seen, cfg.WatchedChannels, rt.log)

	var disc scheduler.Discoverer
	if rt.discovery != nil {
		disc = rt.discovery
	}
	sched, err := scheduler.New(scheduler.Config{
		SweepSchedule: cfg.SweepSchedule,
		BatchSchedule: cfg.BatchSchedule,
		SweepOnStart:  cfg.SweepOnStart,
		BatchLimit:    cfg.BatchDefaultLimit,
		Location:      cfg.Location,
	}, rt.sweeper, rt.batch, disc, rt.log)
	if err != nil {
		_ = closeSeen()
		rt.close()
		return nil, err
	}

	srv, err := server.New(server.Deps{
		Store:     rt.store,
		Intake:    rt.intake,
		Scanner:   scanner,
		Batch:     rt.batch,
		Sweeper:   sched,
		Jobs:      sched,
		Publisher: rt.fanout,
		Logger:    rt.log,
	}, server.Options{
		Addr:    cfg.HTTPAddr,
		APIKey:  cfg.APIKey,
		Service: cfg.AppName,
		Version: cfg.Version,
	})
	if err != nil {
		_ = closeSeen()
		rt.close()
		return nil, err
	}

	return &Harvester{rt: rt, scheduler: sched, server: srv, closeSeen: closeSeen}, nil
}

// Run blocks until ctx is cancelled or one of the components fails.
func (h *Harvester) Run(ctx context.Context) error {
	if h == nil || h.rt == nil {
		return fmt.Errorf("harvester is not initialized")
	}
	defer h.close()

	h.rt.log.InfoObj("harvester starting", "harvester_state", map[string]any{
		"http_addr":        h.rt.cfg.HTTPAddr,
		"publishers_count": h.rt.fanout.Size(),
		"discovery":        h.rt.discovery != nil,
	})

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return h.rt.intake.Run(gCtx) })
	g.Go(func() error { return h.scheduler.Start(gCtx) })
	g.Go(func() error { return h.server.Run(gCtx) })

	err := g.Wait()
	h.rt.log.InfoObj("harvester stopped", "harvester_state", map[string]any{"reason": fmt.Sprint(context.Cause(gCtx))})
	return err
}

func (h *Harvester) close() {
	if h.closeSeen != nil {
		if err := h.closeSeen(); err != nil {
			h.rt.log.ErrorObj("seen store close failed", "error", err.Error())
		}
	}
	h.rt.close()
}
