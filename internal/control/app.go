// Package control wires the configured store, aggregation components and
// HTTP surface into one application.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/vietddude/chainmetrics/internal/core/config"
	"github.com/vietddude/chainmetrics/internal/core/domain"
	"github.com/vietddude/chainmetrics/internal/core/worker"
	"github.com/vietddude/chainmetrics/internal/indexing/backfill"
	"github.com/vietddude/chainmetrics/internal/indexing/health"
	"github.com/vietddude/chainmetrics/internal/indexing/ingest"
	"github.com/vietddude/chainmetrics/internal/indexing/reconcile"
	"github.com/vietddude/chainmetrics/internal/indexing/rollup"
	"github.com/vietddude/chainmetrics/internal/indexing/status"
	"github.com/vietddude/chainmetrics/internal/infra/chain"
	"github.com/vietddude/chainmetrics/internal/infra/chain/evm"
	redisclient "github.com/vietddude/chainmetrics/internal/infra/redis"
	"github.com/vietddude/chainmetrics/internal/infra/rpc/provider"
	"github.com/vietddude/chainmetrics/internal/infra/rpc/routing"
	"github.com/vietddude/chainmetrics/internal/infra/storage"
	"github.com/vietddude/chainmetrics/internal/infra/storage/memory"
	"github.com/vietddude/chainmetrics/internal/infra/storage/postgres"
)

// ErrNoRPC is returned by Backfiller when no node URL is configured.
var ErrNoRPC = errors.New("rpc.url is not configured")

// Overrides adjust the configured rollup flags for a single command.
type Overrides struct {
	SimulateOnly        bool
	StrictMissingBlocks bool
	DisableCleanup      bool
}

// App is the main application struct that owns every component.
type App struct {
	cfg   *config.AppConfig
	chain domain.Chain
	store storage.Store
	db    *postgres.DB
	log   *slog.Logger

	Repo       *storage.MetricsRepo
	Cleaner    *rollup.Cleaner
	Aggregator *rollup.Aggregator
	Ingestor   *ingest.Ingestor
	Reconciler *reconcile.Reconciler
	Inspector  *status.Inspector
	Sweeper    *worker.Sweeper

	healthMon    *health.Monitor
	healthServer *health.Server
}

// NewApp creates an App with all dependencies initialized.
func NewApp(ctx context.Context, cfg *config.AppConfig, overrides Overrides, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	chainCfg := cfg.Chain.Domain()

	// 1. Initialize Storage
	store, db, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	simulate := cfg.Ingest.SimulateOnly || overrides.SimulateOnly
	cleanup := cfg.Rollup.CleanupEnabled && !overrides.DisableCleanup

	// 2. Initialize Aggregation Components
	repo := storage.NewMetricsRepo(store, chainCfg)
	cleaner := rollup.NewCleaner(repo, chainCfg, logger)
	aggregator := rollup.NewAggregator(rollup.Config{
		Chain:               chainCfg,
		Concurrency:         cfg.Rollup.Concurrency,
		FetchRateLimit:      cfg.Rollup.FetchRateLimit,
		StrictMissingBlocks: cfg.Rollup.StrictMissingBlocks || overrides.StrictMissingBlocks,
		CleanupEnabled:      cleanup,
		SimulateOnly:        simulate,
	}, repo, cleaner, logger)

	ingestor := ingest.NewIngestor(ingest.Config{
		Chain:        chainCfg,
		SimulateOnly: simulate,
	}, repo, aggregator, logger)

	inspector := status.NewInspector(repo, chainCfg)

	sweeper := worker.NewSweeper(worker.SweeperConfig{
		Chain:          chainCfg,
		Interval:       cfg.Sweeper.Interval,
		CleanupEnabled: cleanup,
		SimulateOnly:   simulate,
	}, repo, aggregator, cleaner, logger)

	// 3. Initialize HTTP Surface
	healthMon := health.NewMonitor(chainCfg, store, inspector)
	healthServer := health.NewServer(health.ServerConfig{
		Port:         cfg.Server.Port,
		MaxBodyBytes: cfg.Ingest.MaxBodyBytes,
		Chain:        chainCfg,
	}, ingestor, healthMon, inspector, logger)

	return &App{
		cfg:          cfg,
		chain:        chainCfg,
		store:        store,
		db:           db,
		log:          logger,
		Repo:         repo,
		Cleaner:      cleaner,
		Aggregator:   aggregator,
		Ingestor:     ingestor,
		Reconciler:   reconcile.NewReconciler(repo, chainCfg, logger),
		Inspector:    inspector,
		Sweeper:      sweeper,
		healthMon:    healthMon,
		healthServer: healthServer,
	}, nil
}

func openStore(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (storage.Store, *postgres.DB, error) {
	switch cfg.Store.Backend {
	case config.StoreRedis:
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to init redis: %w", err)
		}
		logger.Info("Using Redis storage")
		return client, nil, nil

	case config.StorePostgres:
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		logger.Info("Using PostgreSQL storage")
		return postgres.NewStore(db), db, nil

	default:
		logger.Warn("Using Memory storage, records are lost on exit")
		return memory.NewMemoryStorage(), nil, nil
	}
}

// Chain returns the chain the app aggregates.
func (a *App) Chain() domain.Chain {
	return a.chain
}

// Handler exposes the HTTP routes, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.healthServer.Handler()
}

// Adapter builds the node adapter used for backfill.
func (a *App) Adapter() (chain.Adapter, error) {
	if a.cfg.RPC.URL == "" {
		return nil, ErrNoRPC
	}
	client := provider.NewHTTPProvider(
		a.chain.Label(),
		a.cfg.RPC.URL,
		a.cfg.RPC.Timeout,
		provider.WithRateLimit(a.cfg.RPC.RateLimit),
		provider.WithChain(a.chain.Label()),
	)
	retry := routing.DefaultRetryConfig
	retry.MaxAttempts = a.cfg.RPC.MaxRetries
	return evm.NewEVMAdapter(a.chain, client, retry), nil
}

// Backfiller returns a processor that fetches blocks from the configured node.
func (a *App) Backfiller() (*backfill.Processor, error) {
	adapter, err := a.Adapter()
	if err != nil {
		return nil, err
	}
	return backfill.NewProcessor(backfill.DefaultConfig(), adapter, a.Ingestor, a.log), nil
}

// Detector returns a gap detector backed by the reconciler.
func (a *App) Detector() *backfill.Detector {
	return backfill.NewDetector(a.Reconciler)
}

// Start starts the HTTP server and background workers.
func (a *App) Start(ctx context.Context) error {
	// Start HTTP Server
	go func() {
		if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("HTTP server failed", "error", err)
		}
	}()

	// Start DB Metrics Collector
	if a.db != nil {
		a.db.StartMetricsCollector(ctx)
	}

	// Start Sweeper
	if a.cfg.Sweeper.Enabled {
		a.log.Info("Starting sweeper", "interval", a.cfg.Sweeper.Interval)
		go a.Sweeper.Start(ctx)
	}

	a.log.Info("chainmetrics started",
		"chain", a.chain.Label(),
		"backend", a.cfg.Store.Backend,
		"trace", a.chain.HasDebugTrace,
		"simulate", a.cfg.Ingest.SimulateOnly,
	)
	return nil
}

// Stop shuts the HTTP server down and closes the store.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping chainmetrics...")

	err := a.healthServer.Stop(ctx)
	if cerr := a.Close(); cerr != nil {
		a.log.Warn("Failed to close store", "error", cerr)
	}
	return err
}

// Close releases the store without touching the HTTP server.
func (a *App) Close() error {
	return a.store.Close()
}
