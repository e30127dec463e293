// One-shot (or looping) sync runner for cron-less environments and manual
// backfills: pick a job with -job, run it once with -once or repeatedly at
// -interval seconds.
package main

import (
	"context"
	"flag"
	"time"

	"brick-trader/internal/config"
	"brick-trader/internal/database"
	"brick-trader/internal/logs"
	"brick-trader/internal/services/amazon"
	"brick-trader/internal/services/bricklink"
	"brick-trader/internal/services/credentials"
	"brick-trader/internal/services/lifecycle"
	"brick-trader/internal/services/mapper"
	"brick-trader/internal/services/pricesync"
	"brick-trader/internal/services/upstream"

	"github.com/joho/godotenv"
)

var (
	job      = flag.String("job", "all", "job to run: amazon, bricklink, mapping, inventory or all")
	once     = flag.Bool("once", true, "run once and exit")
	interval = flag.Int("interval", 86400, "seconds between runs when not -once")
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

	runPass := func(ctx context.Context) {
		if *job == "inventory" || *job == "all" {
			if _, err := inventory.Import(ctx); err != nil {
				logger.Error().Err(err).Msg("inventory import failed")
			}
		}
		if *job == "mapping" || *job == "all" {
			if _, err := mp.MapUnmapped(ctx); err != nil {
				logger.Error().Err(err).Msg("mapping pass failed")
			}
		}
		if *job == "amazon" || *job == "all" {
			if _, err := amazonSync.Sync(ctx); err != nil {
				logger.Error().Err(err).Msg("amazon sync failed")
			}
		}
		if *job == "bricklink" || *job == "all" {
			if _, err := bricklinkSync.Sync(ctx); err != nil {
				logger.Error().Err(err).Msg("bricklink sync failed")
			}
		}
	}

	ctx := context.Background()
	runPass(ctx)
	if *once {
		return
	}
	for {
		time.Sleep(time.Duration(*interval) * time.Second)
		runPass(ctx)
	}
}
