// Package daemon composes the engine: store, watcher, debounce queue,
// bounded worker, orchestrator, event bus, and API server, under a single
// process lock.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"hubward/internal/api"
	"hubward/internal/catalog"
	"hubward/internal/config"
	"hubward/internal/events"
	"hubward/internal/ingest"
	"hubward/internal/logging"
	"hubward/internal/organizer"
	"hubward/internal/processing"
	"hubward/internal/scoring"
	"hubward/internal/services"
	"hubward/internal/watcher"
	"hubward/internal/worker"
)

// Version is stamped at build time.
var Version = "dev"

// QuarantineDirName holds corrupt files under the data root.
const QuarantineDirName = ".rejected"

// Daemon is the running engine.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	lock         *flock.Flock
	store        *catalog.Store
	bus          *events.Bus
	registry     *processing.Registry
	orchestrator *ingest.Orchestrator
	debouncer    *watcher.Debouncer
	fsWatcher    *watcher.Watcher
	pool         *worker.Pool[watcher.Candidate]
	apiServer    *api.Server

	mu      sync.Mutex
	running bool
}

// New builds a daemon from configuration. Extra processors (format parsers)
// register ahead of the built-in fallback.
func New(cfg *config.Config, processors []processing.Processor, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "daemon", "new", "configuration is nil", nil)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "daemon", "ensure directories", "", err)
	}

	lock := flock.New(cfg.DatabasePath + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire process lock: %w", err)
	}
	if !locked {
		return nil, services.Wrap(services.ErrConfiguration, "daemon", "lock", "another hubward process holds the catalogue lock", nil)
	}

	store, err := catalog.Open(cfg.DatabasePath)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	ctx := context.Background()
	if cfg.Maintenance.VacuumOnStartup {
		if err := store.Vacuum(ctx); err != nil {
			logger.Warn("startup vacuum failed", logging.Error(err))
		}
	}
	if pruned, err := store.PruneLog(ctx, cfg.Maintenance.MaxTransactionLogEntries); err != nil {
		logger.Warn("journal prune failed", logging.Error(err))
	} else if pruned > 0 {
		logger.Info("journal pruned", logging.Int64("removed", pruned))
	}

	// Persist provider registrations so historical re-scoring can recover
	// the weights in effect at ingest time.
	for _, p := range cfg.Providers {
		reg := &catalog.ProviderRegistration{
			Name:          p.Name,
			Enabled:       p.Enabled,
			DefaultWeight: p.Weight,
			FieldWeights:  p.FieldWeights,
		}
		if err := store.UpsertProvider(ctx, reg); err != nil {
			logger.Warn("provider registration failed", logging.String("provider", p.Name), logging.Error(err))
		}
	}

	bus := events.NewBus(logger)
	registry := processing.NewRegistry(processors, processing.NewFallbackProcessor(), 0, logger)
	scoringCfg := scoring.Config{
		AutoLinkThreshold: cfg.Scoring.AutoLinkThreshold,
		ConflictThreshold: cfg.Scoring.ConflictThreshold,
		ConflictEpsilon:   cfg.Scoring.ConflictEpsilon,
		StaleDecayDays:    cfg.Scoring.StaleClaimDecayDays,
		StaleDecayFactor:  cfg.Scoring.StaleClaimDecayFactor,
	}

	orchestrator := ingest.New(ingest.Options{
		Store:                store,
		Registry:             registry,
		Organizer:            organizer.New(cfg.DataRoot, "", logger),
		Publisher:            bus,
		ScoringConfig:        scoringCfg,
		ProviderWeights:      cfg.ProviderWeights(),
		ProviderFieldWeights: cfg.ProviderFieldWeights(),
		QuarantineDir:        filepath.Join(cfg.DataRoot, QuarantineDirName),
		Logger:               logger,
	})

	debouncer := watcher.NewDebouncer(watcher.DebounceOptions{
		SettleDelay:      cfg.SettleDelay(),
		ProbeInterval:    cfg.ProbeInterval(),
		MaxProbeDelay:    cfg.MaxProbeDelay(),
		MaxProbeAttempts: cfg.Ingest.MaxProbeAttempts,
		Capacity:         cfg.Ingest.QueueCapacity,
	}, logger)

	apiServer := api.NewServer(api.Options{
		Bind:                 cfg.APIBind,
		Token:                cfg.APIToken,
		Version:              Version,
		Store:                store,
		Bus:                  bus,
		ScoringConfig:        scoringCfg,
		ProviderWeights:      cfg.ProviderWeights(),
		ProviderFieldWeights: cfg.ProviderFieldWeights(),
		ScanRoot:             cfg.WatchRoot,
		Logger:               logger,
	})

	return &Daemon{
		cfg:          cfg,
		logger:       logging.NewComponentLogger(logger, "daemon"),
		lock:         lock,
		store:        store,
		bus:          bus,
		registry:     registry,
		orchestrator: orchestrator,
		debouncer:    debouncer,
		pool:         worker.NewPool[watcher.Candidate](cfg.Ingest.QueueCapacity, cfg.WorkerConcurrency(), logger),
		apiServer:    apiServer,
	}, nil
}

// Store exposes the catalogue for CLI workflows.
func (d *Daemon) Store() *catalog.Store {
	return d.store
}

// Run starts the engine and blocks until ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon already running")
	}
	d.running = true
	d.mu.Unlock()

	fsWatcher, err := watcher.New(
		d.cfg.WatchRoot,
		d.debouncer.Enqueue,
		func(err error) {
			d.logger.Warn("watch error reported", logging.Error(err))
		},
		d.logger,
	)
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	d.fsWatcher = fsWatcher
	fsWatcher.Start()

	if d.apiServer != nil {
		if err := d.apiServer.Start(ctx); err != nil {
			return err
		}
	}

	// Pick up files that appeared while the process was down.
	if _, err := ingest.DifferentialScan(ctx, d.cfg.WatchRoot, d.debouncer.Enqueue, d.logger); err != nil {
		d.logger.Warn("differential scan failed", logging.Error(err))
	}

	d.logger.Info("engine started",
		logging.String("watch_root", d.cfg.WatchRoot),
		logging.String("data_root", d.cfg.DataRoot),
		logging.String("database", d.store.Path()),
	)

	// Dispatch loop: candidates fan out onto the bounded pool. Enqueue
	// blocks when the pool is saturated, back-pressuring the debouncer's
	// bounded channel in turn.
	for {
		select {
		case <-ctx.Done():
			d.shutdown()
			return nil
		case candidate, ok := <-d.debouncer.Candidates():
			if !ok {
				d.shutdown()
				return nil
			}
			if err := d.pool.Enqueue(ctx, candidate, d.handleCandidate); err != nil {
				if ctx.Err() != nil {
					d.shutdown()
					return nil
				}
				d.logger.Warn("enqueue failed", logging.Error(err))
			}
		}
	}
}

func (d *Daemon) handleCandidate(ctx context.Context, candidate watcher.Candidate) error {
	_, err := d.orchestrator.HandleCandidate(ctx, candidate)
	return err
}

func (d *Daemon) shutdown() {
	d.logger.Info("engine stopping")
	if d.fsWatcher != nil {
		_ = d.fsWatcher.Close()
	}
	d.debouncer.Close()
	d.pool.Drain()
	if d.apiServer != nil {
		d.apiServer.Stop()
	}
	if err := d.store.Close(); err != nil {
		d.logger.Warn("store close failed", logging.Error(err))
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("lock release failed", logging.Error(err))
	}
	d.logger.Info("engine stopped")
}
