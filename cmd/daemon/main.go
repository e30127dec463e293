// The daemon runs the scheduled sync jobs: sell-side pricing, buy-side
// pricing, the auto-mapping pass, inventory import and weekly snapshot
// retention. Each job type is guarded so it never overlaps itself; distinct
// jobs may run concurrently since they hit different upstreams and tables.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"brick-trader/internal/config"
	"brick-trader/internal/database"
	"brick-trader/internal/logs"
	"brick-trader/internal/services/amazon"
	"brick-trader/internal/services/bricklink"
	"brick-trader/internal/services/credentials"
	"brick-trader/internal/services/lifecycle"
	"brick-trader/internal/services/mapper"
	"brick-trader/internal/services/pricesync"
	"brick-trader/internal/services/retention"
	"brick-trader/internal/services/upstream"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

var (
	amazonSchedule    = flag.String("amazon-schedule", "0 6 * * *", "cron schedule for the sell-side pricing sync")
	bricklinkSchedule = flag.String("bricklink-schedule", "0 4 * * *", "cron schedule for the buy-side pricing sync")
	mappingSchedule   = flag.String("mapping-schedule", "30 5 * * *", "cron schedule for the auto-mapping pass")
	inventorySchedule = flag.String("inventory-schedule", "0 3 * * *", "cron schedule for the inventory import")
	retentionSchedule = flag.String("retention-schedule", "0 2 * * 0", "cron schedule for snapshot retention")
)

func main() {
	flag.Parse()
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logs.New(cfg.LogFile)

	db, err := database.Initialize(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	creds := credentials.NewStore(db, cfg)
	amazonCreds, err := creds.Amazon()
	if err != nil {
		logger.Warn().Err(err).Msg("amazon credentials unavailable")
	}
	bricklinkCreds, err := creds.Bricklink()
	if err != nil {
		logger.Warn().Err(err).Msg("bricklink credentials unavailable")
	}
	amazonSvc := amazon.NewService(amazonCreds, cfg.AmazonMarketplace)
	bricklinkSvc := bricklink.NewService(bricklinkCreds)

	lm := lifecycle.NewManager(db)
	mp := mapper.New(db, bricklinkSvc, upstream.NewThrottle(cfg.BricklinkDelay), logger)
	amazonSync := pricesync.NewAmazonSyncer(db, amazonSvc, lm, cfg.AmazonBatchSize, cfg.AmazonPricingDelay, cfg.AmazonCatalogDelay, logger)
	bricklinkSync := pricesync.NewBricklinkSyncer(db, bricklinkSvc, cfg.BricklinkDelay, cfg.BricklinkRegion, cfg.BricklinkCurrency, cfg.BricklinkCondition, cfg.IncludeSeedSets, logger)
	inventory := pricesync.NewInventoryImporter(db, amazonSvc, lm, logger)
	pruner := retention.NewPruner(db, cfg.SnapshotRetentionDays, logger)

	guard := newJobGuard(logger)
	scheduler := cron.New()

	mustSchedule(scheduler, logger, *inventorySchedule, "inventory_import", func(ctx context.Context) error {
		_, err := inventory.Import(ctx)
		return err
	}, guard)
	mustSchedule(scheduler, logger, *mappingSchedule, "set_mapping", func(ctx context.Context) error {
		_, err := mp.MapUnmapped(ctx)
		return err
	}, guard)
	mustSchedule(scheduler, logger, *amazonSchedule, "amazon_pricing", func(ctx context.Context) error {
		_, err := amazonSync.Sync(ctx)
		return err
	}, guard)
	mustSchedule(scheduler, logger, *bricklinkSchedule, "bricklink_pricing", func(ctx context.Context) error {
		_, err := bricklinkSync.Sync(ctx)
		return err
	}, guard)
	mustSchedule(scheduler, logger, *retentionSchedule, "snapshot_retention", func(context.Context) error {
		_, err := pruner.Prune()
		return err
	}, guard)

	scheduler.Start()
	logger.Info().Msg("sync daemon started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down, waiting for running jobs")
	ctx := scheduler.Stop()
	<-ctx.Done()
}

// jobGuard serializes runs per job name. A tick that fires while the
// previous run of the same job is still going is skipped, not queued.
type jobGuard struct {
	mu      sync.Mutex
	running map[string]bool
	logger  zerolog.Logger
}

func newJobGuard(logger zerolog.Logger) *jobGuard {
	return &jobGuard{running: make(map[string]bool), logger: logger}
}

func (g *jobGuard) run(name string, job func(context.Context) error) {
	g.mu.Lock()
	if g.running[name] {
		g.mu.Unlock()
		g.logger.Warn().Str("job", name).Msg("previous run still in progress, skipping tick")
		return
	}
	g.running[name] = true
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.running[name] = false
		g.mu.Unlock()
	}()

	if err := job(context.Background()); err != nil {
		// Run-level failures are already recorded in sync status; this is
		// the operational alerting hook.
		g.logger.Error().Err(err).Str("job", name).Msg("scheduled job failed")
	}
}

func mustSchedule(scheduler *cron.Cron, logger zerolog.Logger, spec, name string, job func(context.Context) error, guard *jobGuard) {
	_, err := scheduler.AddFunc(spec, func() { guard.run(name, job) })
	if err != nil {
		logger.Fatal().Err(err).Str("job", name).Str("schedule", spec).Msg("invalid cron schedule")
	}
}
