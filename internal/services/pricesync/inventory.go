package pricesync

import (
	"context"
	"time"

	"brick-trader/internal/models"
	"brick-trader/internal/services/amazon"
	"brick-trader/internal/services/lifecycle"
	"brick-trader/internal/services/upstream"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// InventoryClient is the slice of the SP-API service the importer needs.
type InventoryClient interface {
	GetInventory(ctx context.Context) ([]amazon.InventoryItem, error)
}

// InventoryImporter seeds the tracked set from the seller's own inventory,
// zero-stock listings included. New ASINs start active; existing rows only
// get their title, SKU and stock refreshed, never a lifecycle reset.
type InventoryImporter struct {
	db        *gorm.DB
	client    InventoryClient
	lifecycle *lifecycle.Manager
	status    *StatusRepo
	logger    zerolog.Logger
}

func NewInventoryImporter(db *gorm.DB, client InventoryClient, lm *lifecycle.Manager, logger zerolog.Logger) *InventoryImporter {
	return &InventoryImporter{
		db:        db,
		client:    client,
		lifecycle: lm,
		status:    NewStatusRepo(db),
		logger:    logger.With().Str("job", models.JobInventoryImport).Logger(),
	}
}

// Import pulls the inventory and upserts tracked ASINs.
func (im *InventoryImporter) Import(ctx context.Context) (*RunSummary, error) {
	start := time.Now()
	summary := &RunSummary{JobType: models.JobInventoryImport, Status: models.RunStatusCompleted}

	if err := im.status.Begin(models.JobInventoryImport); err != nil {
		return nil, err
	}

	var items []amazon.InventoryItem
	err := upstream.Do(ctx, upstream.DefaultAttempts, func() error {
		var callErr error
		items, callErr = im.client.GetInventory(ctx)
		return callErr
	})
	if err != nil {
		return im.finish(summary, start, err)
	}
	summary.Total = len(items)

	for _, item := range items {
		if item.ASIN == "" {
			continue
		}
		row, err := im.lifecycle.Track(item.ASIN, models.SourceInventory, item.Title)
		if err != nil {
			im.logger.Warn().Err(err).Str("asin", item.ASIN).Msg("track failed")
			summary.Failed++
			continue
		}

		updates := map[string]any{"stock_quantity": item.Quantity}
		if item.SellerSKU != "" {
			updates["seller_sku"] = item.SellerSKU
		}
		if item.Title != "" && row.Title == "" {
			updates["title"] = item.Title
		}
		err = im.db.Model(&models.TrackedASIN{}).Where("asin = ?", item.ASIN).Updates(updates).Error
		if err != nil {
			im.logger.Warn().Err(err).Str("asin", item.ASIN).Msg("refresh failed")
			summary.Failed++
			continue
		}
		summary.Processed++
	}

	return im.finish(summary, start, nil)
}

func (im *InventoryImporter) finish(summary *RunSummary, start time.Time, runErr error) (*RunSummary, error) {
	summary.Duration = time.Since(start)
	if runErr != nil {
		summary.Status = models.RunStatusFailed
		summary.Error = runErr.Error()
	}
	if err := im.status.Finish(summary); err != nil {
		im.logger.Error().Err(err).Msg("could not record run status")
	}
	return summary, runErr
}
