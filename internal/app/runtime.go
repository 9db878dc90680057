package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mcroberts-scholars/scholarship-harvester/internal/config"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/crawler"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/discovery"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/extraction"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/ingress"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/logger"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/scheduler"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/storage"
	"github.com/mcroberts-scholars/scholarship-harvester/pkg/providers"
	"github.com/mcroberts-scholars/scholarship-harvester/pkg/publishers"
)

// runtime holds the components shared by the harvester and the operator CLI.
type runtime struct {
	cfg       *config.Config
	log       logger.Logger
	store     storage.Store
	fanout    *publishers.Fanout
	intake    *ingress.Intake
	batch     *crawler.Service
	sweeper   *scheduler.Sweeper
	discovery *discovery.Service
}

func buildRuntime(ctx context.Context, cfg *config.Config, log logger.Logger) (*runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	log = logger.Ensure(log)

	enabledProviders, err := loadProviders(cfg.ProvidersFile, log)
	if err != nil {
		return nil, err
	}

	fanout, err := loadPublishers(ctx, cfg.PublishersFile, log)
	if err != nil {
		return nil, err
	}

	store, err := openStore(cfg)
	if err != nil {
		_ = fanout.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type":     cfg.StorageType,
		"path":     cfg.BBoltPath,
		"timezone": cfg.Location.String(),
	})

	scraper := crawler.NewScraper(
		crawler.DefaultHTTPClient(cfg.FetchTimeout, cfg.FetchMaxAttempts, cfg.FetchBackoff),
		log,
	).WithMaxBodyBytes(cfg.FetchMaxBodyBytes)
	engine := extraction.NewEngine(enabledProviders, providers.DefaultCompleterRegistry(log), log)

	batch, err := crawler.NewService(crawler.Deps{
		Links:     store,
		Catalog:   store,
		Fetcher:   scraper,
		Extractor: engine,
		Publisher: fanout,
		Logger:    log,
	}, crawler.Options{
		LinkDelay:    cfg.LinkDelay,
		DefaultLimit: cfg.BatchDefaultLimit,
	})
	if err != nil {
		_ = store.Close()
		_ = fanout.Close()
		return nil, err
	}

	rt := &runtime{
		cfg:     cfg,
		log:     log,
		store:   store,
		fanout:  fanout,
		intake:  ingress.NewIntake(store, cfg.IntakeQueueSize, log),
		batch:   batch,
		sweeper: scheduler.NewSweeper(store, fanout, log),
	}

	if cfg.DiscoveryEnabled {
		sources, err := discovery.LoadSources(cfg.SourcesFile)
		if err != nil {
			rt.close()
			return nil, fmt.Errorf("load discovery sources: %w", err)
		}
		rt.discovery = discovery.NewService(
			crawler.DefaultHTTPClient(cfg.FetchTimeout, cfg.FetchMaxAttempts, cfg.FetchBackoff),
			rt.intake, sources, log,
		)
		log.InfoObj("discovery sources loaded", "discovery_meta", map[string]any{
			"count":   len(sources),
			"enabled": len(rt.discovery.Sources()),
		})
	}
	return rt, nil
}

func openStore(cfg *config.Config) (storage.Store, error) {
	opts := storage.Options{Location: cfg.Location, SeenTTL: cfg.MessageSeenTTL}
	if cfg.StorageType == "postgres" {
		return storage.NewStore(cfg.StorageType, cfg.PostgresDSN, opts)
	}
	return storage.NewStore(cfg.StorageType, cfg.BBoltPath, opts)
}

// loadProviders returns the enabled AI providers. A missing file disables the
// AI fallback instead of failing start-up.
func loadProviders(path string, log logger.Logger) ([]providers.Provider, error) {
	reg, err := providers.LoadRegistry(path)
	if errors.Is(err, os.ErrNotExist) {
		log.WarnObj("providers file not found; AI fallback disabled", "providers_file", path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load providers registry: %w", err)
	}

	enabled := reg.Enabled()
	ids := make([]string, 0, len(enabled))
	for _, p := range enabled {
		ids = append(ids, p.ID)
	}
	log.InfoObj("providers registry loaded", "providers_meta", map[string]any{
		"count":   len(reg.All()),
		"enabled": ids,
	})
	return enabled, nil
}

// loadPublishers builds the event fanout. A missing file or an empty enabled
// list yields a fanout that publishes nowhere.
func loadPublishers(ctx context.Context, path string, log logger.Logger) (*publishers.Fanout, error) {
	reg, err := publishers.LoadRegistry(path)
	if errors.Is(err, os.ErrNotExist) {
		log.WarnObj("publishers file not found; events disabled", "publishers_file", path)
		return publishers.NewFanout(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load publishers registry: %w", err)
	}

	enabled := reg.Enabled()
	clients, err := publishers.BuildAll(ctx, publishers.DefaultRegistry(), enabled, log)
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}

	summaries := make([]map[string]string, 0, len(enabled))
	for _, p := range enabled {
		summaries = append(summaries, map[string]string{"id": p.ID, "type": p.Type})
	}
	log.InfoObj("publishers registry loaded", "publishers_meta", map[string]any{
		"count":      len(summaries),
		"publishers": summaries,
	})
	return publishers.NewFanout(clients), nil
}

func (r *runtime) close() {
	if r == nil {
		return
	}
	if err := r.fanout.Close(); err != nil {
		r.log.ErrorObj("publisher close failed", "error", err.Error())
	}
	if err := r.store.Close(); err != nil {
		r.log.ErrorObj("storage close failed", "error", err.Error())
	}
}
