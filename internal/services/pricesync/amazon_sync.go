package pricesync

import (
	"context"
	"fmt"
	"time"

	"brick-trader/internal/models"
	"brick-trader/internal/services/amazon"
	"brick-trader/internal/services/lifecycle"
	"brick-trader/internal/services/upstream"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AmazonClient is the slice of the SP-API service the sell-side sync needs.
type AmazonClient interface {
	GetCompetitivePricing(ctx context.Context, asins []string) ([]amazon.CompetitivePricing, error)
	GetCatalogDetail(ctx context.Context, asins []string) ([]amazon.CatalogDetail, error)
}

// AmazonSyncer refreshes one AmazonPriceSnapshot per active ASIN per day.
// Work is batched to the upstream's 20-ASIN pricing limit and serialized
// through per-endpoint throttles; one call is ever in flight.
type AmazonSyncer struct {
	db              *gorm.DB
	client          AmazonClient
	lifecycle       *lifecycle.Manager
	status          *StatusRepo
	throttlePricing *upstream.Throttle
	throttleCatalog *upstream.Throttle
	batchSize       int
	logger          zerolog.Logger
}

func NewAmazonSyncer(db *gorm.DB, client AmazonClient, lm *lifecycle.Manager, batchSize int, pricingDelay, catalogDelay time.Duration, logger zerolog.Logger) *AmazonSyncer {
	if batchSize <= 0 {
		batchSize = 20
	}
	return &AmazonSyncer{
		db:              db,
		client:          client,
		lifecycle:       lm,
		status:          NewStatusRepo(db),
		throttlePricing: upstream.NewThrottle(pricingDelay),
		throttleCatalog: upstream.NewThrottle(catalogDelay),
		batchSize:       batchSize,
		logger:          logger.With().Str("job", models.JobAmazonPricing).Logger(),
	}
}

// Sync runs the sell-side pricing pass. Per-ASIN failures are counted, not
// fatal; a batch gets exactly one retry before its ASINs are written off;
// only rate-limit or authorization errors abort the run. The returned
// summary is also persisted as the job's SyncStatus row.
func (s *AmazonSyncer) Sync(ctx context.Context) (*RunSummary, error) {
	start := time.Now()
	summary := &RunSummary{JobType: models.JobAmazonPricing, Status: models.RunStatusCompleted}

	if err := s.status.Begin(models.JobAmazonPricing); err != nil {
		return nil, err
	}

	active, err := s.lifecycle.ActiveASINs()
	if err != nil {
		return s.finish(summary, start, err)
	}
	summary.Total = len(active)
	s.logger.Info().Int("asins", len(active)).Msg("sell-side sync started")

	today := dateOnly(time.Now())
	for batchStart := 0; batchStart < len(active); batchStart += s.batchSize {
		end := batchStart + s.batchSize
		if end > len(active) {
			end = len(active)
		}
		batch := active[batchStart:end]

		pricing, detail, batchErr := s.fetchBatchWithRetry(ctx, batch)
		if batchErr != nil {
			if upstream.IsRateLimit(batchErr) || upstream.IsAuth(batchErr) || ctx.Err() != nil {
				// Fatal for this run: everything not yet attempted counts
				// as failed and the partial progress stays written.
				summary.Failed += len(active) - batchStart
				return s.finish(summary, start, batchErr)
			}
			s.logger.Warn().Err(batchErr).Int("size", len(batch)).Msg("batch skipped after retry")
			summary.Failed += len(batch)
			continue
		}

		for _, row := range batch {
			if err := s.upsertSnapshot(row, today, pricing[row.ASIN], detail[row.ASIN]); err != nil {
				s.logger.Warn().Err(err).Str("asin", row.ASIN).Msg("snapshot upsert failed")
				summary.Failed++
				continue
			}
			summary.Processed++
		}
	}

	return s.finish(summary, start, nil)
}

// fetchBatchWithRetry is the retry-then-skip state machine: one attempt,
// one retry, then the batch is abandoned. Rate-limit and auth errors are
// returned immediately for the caller to abort on.
func (s *AmazonSyncer) fetchBatchWithRetry(ctx context.Context, batch []models.TrackedASIN) (map[string]*amazon.CompetitivePricing, map[string]*amazon.CatalogDetail, error) {
	asins := make([]string, len(batch))
	for i, row := range batch {
		asins[i] = row.ASIN
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		pricing, detail, err := s.fetchBatch(ctx, asins)
		if err == nil {
			return pricing, detail, nil
		}
		if upstream.IsRateLimit(err) || upstream.IsAuth(err) || ctx.Err() != nil {
			return nil, nil, err
		}
		lastErr = err
	}
	return nil, nil, lastErr
}

func (s *AmazonSyncer) fetchBatch(ctx context.Context, asins []string) (map[string]*amazon.CompetitivePricing, map[string]*amazon.CatalogDetail, error) {
	if err := s.throttlePricing.Wait(ctx); err != nil {
		return nil, nil, err
	}
	var priced []amazon.CompetitivePricing
	err := upstream.Do(ctx, upstream.DefaultAttempts, func() error {
		var callErr error
		priced, callErr = s.client.GetCompetitivePricing(ctx, asins)
		return callErr
	})
	if err != nil {
		return nil, nil, err
	}

	if err := s.throttleCatalog.Wait(ctx); err != nil {
		return nil, nil, err
	}
	var details []amazon.CatalogDetail
	err = upstream.Do(ctx, upstream.DefaultAttempts, func() error {
		var callErr error
		details, callErr = s.client.GetCatalogDetail(ctx, asins)
		return callErr
	})
	if err != nil {
		return nil, nil, err
	}

	pricingByASIN := make(map[string]*amazon.CompetitivePricing, len(priced))
	for i := range priced {
		pricingByASIN[priced[i].ASIN] = &priced[i]
	}
	detailByASIN := make(map[string]*amazon.CatalogDetail, len(details))
	for i := range details {
		detailByASIN[details[i].ASIN] = &details[i]
	}
	return pricingByASIN, detailByASIN, nil
}

// upsertSnapshot writes today's row for one ASIN and bumps last_synced_at.
// Missing pricing for an ASIN inside an otherwise-successful batch still
// produces a snapshot (with nil prices) so the day is covered.
func (s *AmazonSyncer) upsertSnapshot(row models.TrackedASIN, today time.Time, pricing *amazon.CompetitivePricing, detail *amazon.CatalogDetail) error {
	snapshot := models.AmazonPriceSnapshot{
		ASIN:          row.ASIN,
		SnapshotDate:  today,
		StockQuantity: row.StockQuantity,
	}
	if pricing != nil {
		snapshot.YourPrice = pricing.YourPrice
		snapshot.BuyBoxPrice = pricing.BuyBoxPrice
		snapshot.BuyBoxWon = pricing.BuyBoxWon
		snapshot.OfferCount = pricing.OfferCount
		snapshot.WasPrice = pricing.WasPrice
	}
	if detail != nil {
		snapshot.SalesRank = detail.SalesRank
		snapshot.RankCategory = detail.RankCategory
	}

	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "asin"}, {Name: "snapshot_date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"your_price", "stock_quantity", "buy_box_price", "buy_box_won",
			"offer_count", "was_price", "sales_rank", "rank_category", "updated_at",
		}),
	}).Create(&snapshot).Error
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}

	updates := map[string]any{"last_synced_at": time.Now()}
	if detail != nil && detail.Title != "" && row.Title == "" {
		updates["title"] = detail.Title
	}
	if detail != nil && detail.ImageURL != "" && row.ImageURL == "" {
		updates["image_url"] = detail.ImageURL
	}
	err = s.db.Model(&models.TrackedASIN{}).Where("asin = ?", row.ASIN).Updates(updates).Error
	if err != nil {
		return fmt.Errorf("bump last_synced_at: %w", err)
	}
	return nil
}

func (s *AmazonSyncer) finish(summary *RunSummary, start time.Time, runErr error) (*RunSummary, error) {
	summary.Duration = time.Since(start)
	if runErr != nil {
		summary.Status = models.RunStatusFailed
		summary.Error = runErr.Error()
	} else if summary.Failed > 0 && summary.Processed == 0 {
		summary.Status = models.RunStatusFailed
	}
	if err := s.status.Finish(summary); err != nil {
		s.logger.Error().Err(err).Msg("could not record run status")
	}
	s.logger.Info().
		Str("status", summary.Status).
		Int("processed", summary.Processed).
		Int("failed", summary.Failed).
		Dur("duration", summary.Duration).
		Msg("sell-side sync finished")
	return summary, runErr
}

// dateOnly truncates to day granularity; the snapshot unique key is
// (asin, day).
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
