package database

import (
	"fmt"
	"time"

	"brick-trader/internal/models"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// Initialize opens the MySQL connection, configures the pool and runs the
// schema migration for all tracked tables.
func Initialize(databaseURL string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(databaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates the schema. Shared with the test helpers so
// the sqlite fixtures match production tables.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.TrackedASIN{},
		&models.SetMapping{},
		&models.AmazonPriceSnapshot{},
		&models.BricklinkPriceSnapshot{},
		&models.SyncStatus{},
		&models.SeedSet{},
		&models.Purchase{},
		&models.PurchaseItem{},
		&models.BulkLot{},
		&models.PlatformCredential{},
	)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}
