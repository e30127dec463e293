package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabaseURL string
	Port        string
	Environment string
	LogFile     string

	// Amazon SP-API
	AmazonRefreshToken string
	AmazonClientID     string
	AmazonClientSecret string
	AmazonMarketplace  string
	AmazonPricingDelay time.Duration // between competitive-pricing calls
	AmazonCatalogDelay time.Duration // between catalog-detail calls
	AmazonBatchSize    int

	// BrickLink
	BricklinkConsumerKey    string
	BricklinkConsumerSecret string
	BricklinkToken          string
	BricklinkTokenSecret    string
	BricklinkDelay          time.Duration
	BricklinkRegion         string
	BricklinkCurrency       string
	BricklinkCondition      string

	// Buy-side sync also refreshes curated seed sets when enabled.
	IncludeSeedSets bool

	// Snapshots older than this many days are purged by the retention job.
	SnapshotRetentionDays int
}

func Load() *Config {
	return &Config{
		DatabaseURL: getEnv("DATABASE_URL", "root:brick@tcp(127.0.0.1:3306)/brick_trader?charset=utf8mb4&parseTime=True&loc=Local"),
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogFile:     getEnv("LOG_FILE", ""),

		AmazonRefreshToken: getEnv("AMAZON_REFRESH_TOKEN", ""),
		AmazonClientID:     getEnv("AMAZON_CLIENT_ID", ""),
		AmazonClientSecret: getEnv("AMAZON_CLIENT_SECRET", ""),
		AmazonMarketplace:  getEnv("AMAZON_MARKETPLACE", "A1F83G8C2ARO7P"), // amazon.co.uk
		AmazonPricingDelay: getDuration("AMAZON_PRICING_DELAY_MS", 600),
		AmazonCatalogDelay: getDuration("AMAZON_CATALOG_DELAY_MS", 100),
		AmazonBatchSize:    getInt("AMAZON_BATCH_SIZE", 20),

		BricklinkConsumerKey:    getEnv("BRICKLINK_CONSUMER_KEY", ""),
		BricklinkConsumerSecret: getEnv("BRICKLINK_CONSUMER_SECRET", ""),
		BricklinkToken:          getEnv("BRICKLINK_TOKEN", ""),
		BricklinkTokenSecret:    getEnv("BRICKLINK_TOKEN_SECRET", ""),
		BricklinkDelay:          getDuration("BRICKLINK_DELAY_MS", 200),
		BricklinkRegion:         getEnv("BRICKLINK_REGION", "UK"),
		BricklinkCurrency:       getEnv("BRICKLINK_CURRENCY", "GBP"),
		BricklinkCondition:      getEnv("BRICKLINK_CONDITION", "N"),

		IncludeSeedSets: getEnv("INCLUDE_SEED_SETS", "true") == "true",

		SnapshotRetentionDays: getInt("SNAPSHOT_RETENTION_DAYS", 365),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDuration(key string, defaultMillis int) time.Duration {
	millis := getInt(key, defaultMillis)
	return time.Duration(millis) * time.Millisecond
}
