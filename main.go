package main

import (
	"net/http"

	"brick-trader/internal/api"
	"brick-trader/internal/config"
	"brick-trader/internal/database"
	"brick-trader/internal/logs"
	"brick-trader/internal/services/amazon"
	"brick-trader/internal/services/bricklink"
	"brick-trader/internal/services/credentials"
	"brick-trader/internal/services/lifecycle"
	"brick-trader/internal/services/mapper"
	"brick-trader/internal/services/margin"
	"brick-trader/internal/services/pricesync"
	"brick-trader/internal/services/upstream"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

func main() {
	// Running without a .env file is fine in production.
	_ = godotenv.Load()

	cfg := config.Load()
	logger := logs.New(cfg.LogFile)

	db, err := database.Initialize(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	creds := credentials.NewStore(db, cfg)
	amazonSvc, bricklinkSvc := buildClients(creds, cfg, logger)

	lm := lifecycle.NewManager(db)
	mp := mapper.New(db, bricklinkSvc, upstream.NewThrottle(cfg.BricklinkDelay), logger)
	ms := margin.NewService(db, cfg.BricklinkCondition, cfg.BricklinkRegion)

	amazonSync := pricesync.NewAmazonSyncer(db, amazonSvc, lm, cfg.AmazonBatchSize, cfg.AmazonPricingDelay, cfg.AmazonCatalogDelay, logger)
	bricklinkSync := pricesync.NewBricklinkSyncer(db, bricklinkSvc, cfg.BricklinkDelay, cfg.BricklinkRegion, cfg.BricklinkCurrency, cfg.BricklinkCondition, cfg.IncludeSeedSets, logger)
	inventory := pricesync.NewInventoryImporter(db, amazonSvc, lm, logger)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api.SetupRoutes(r.Group("/api"), db, lm, mp, ms, amazonSync, bricklinkSync, inventory)

	logger.Info().Str("port", cfg.Port).Msg("brick-trader API listening")
	if err := r.Run(":" + cfg.Port); err != nil {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}

// buildClients resolves credentials and constructs both upstream clients.
// Missing credentials are only a warning here: the clients surface an
// authorization error at run time, which aborts that run before any item
// is attempted.
func buildClients(creds *credentials.Store, cfg *config.Config, logger zerolog.Logger) (*amazon.Service, *bricklink.Service) {
	amazonCreds, err := creds.Amazon()
	if err != nil {
		logger.Warn().Err(err).Msg("amazon credentials unavailable")
	}
	bricklinkCreds, err := creds.Bricklink()
	if err != nil {
		logger.Warn().Err(err).Msg("bricklink credentials unavailable")
	}
	return amazon.NewService(amazonCreds, cfg.AmazonMarketplace), bricklink.NewService(bricklinkCreds)
}
