package pricesync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"brick-trader/internal/models"
	"brick-trader/internal/services/bricklink"
	"brick-trader/internal/services/upstream"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BricklinkClient is the slice of the store API the buy-side sync needs.
type BricklinkClient interface {
	GetPriceGuide(ctx context.Context, setNumber string, opts bricklink.PriceGuideOptions) (*bricklink.PriceGuide, error)
}

// BricklinkSyncer refreshes one BricklinkPriceSnapshot per mapped set
// number per day. There is no batch endpoint, so keys are walked one at a
// time behind a single throttle.
type BricklinkSyncer struct {
	db              *gorm.DB
	client          BricklinkClient
	status          *StatusRepo
	throttle        *upstream.Throttle
	region          string
	currency        string
	condition       string
	includeSeedSets bool
	logger          zerolog.Logger
}

func NewBricklinkSyncer(db *gorm.DB, client BricklinkClient, delay time.Duration, region, currency, condition string, includeSeedSets bool, logger zerolog.Logger) *BricklinkSyncer {
	return &BricklinkSyncer{
		db:              db,
		client:          client,
		status:          NewStatusRepo(db),
		throttle:        upstream.NewThrottle(delay),
		region:          region,
		currency:        currency,
		condition:       condition,
		includeSeedSets: includeSeedSets,
		logger:          logger.With().Str("job", models.JobBricklinkPricing).Logger(),
	}
}

// Sync runs the buy-side pricing pass. A not-found set is logged and
// skipped (it may be withdrawn from the catalog); a rate-limit aborts the
// run with every unattempted key counted as failed.
func (s *BricklinkSyncer) Sync(ctx context.Context) (*RunSummary, error) {
	start := time.Now()
	summary := &RunSummary{JobType: models.JobBricklinkPricing, Status: models.RunStatusCompleted}

	if err := s.status.Begin(models.JobBricklinkPricing); err != nil {
		return nil, err
	}

	keys, err := s.collectSetNumbers()
	if err != nil {
		return s.finish(summary, start, err)
	}
	summary.Total = len(keys)
	s.logger.Info().Int("sets", len(keys)).Msg("buy-side sync started")

	today := dateOnly(time.Now())
	for i, setNumber := range keys {
		snapshot, keyErr := s.fetchMerged(ctx, setNumber, today)
		if errors.Is(keyErr, upstream.ErrNotFound) {
			s.logger.Info().Str("set", setNumber).Msg("set not in catalog, skipped")
			continue
		}
		if keyErr != nil {
			if upstream.IsRateLimit(keyErr) || upstream.IsAuth(keyErr) || ctx.Err() != nil {
				summary.Failed += len(keys) - i
				return s.finish(summary, start, keyErr)
			}
			s.logger.Warn().Err(keyErr).Str("set", setNumber).Msg("price guide fetch failed")
			summary.Failed++
			continue
		}

		if err := s.upsertSnapshot(snapshot); err != nil {
			s.logger.Warn().Err(err).Str("set", setNumber).Msg("snapshot upsert failed")
			summary.Failed++
			continue
		}
		summary.Processed++
	}

	return s.finish(summary, start, nil)
}

// collectSetNumbers builds the deduplicated key set: every set mapped from
// an active ASIN, plus the curated seed list when enabled.
func (s *BricklinkSyncer) collectSetNumbers() ([]string, error) {
	var mapped []string
	err := s.db.Model(&models.SetMapping{}).
		Distinct("set_mappings.set_number").
		Joins("JOIN tracked_asins ON tracked_asins.asin = set_mappings.asin").
		Where("tracked_asins.status = ?", models.StatusActive).
		Pluck("set_mappings.set_number", &mapped).Error
	if err != nil {
		return nil, fmt.Errorf("collect mapped sets: %w", err)
	}

	seen := make(map[string]bool, len(mapped))
	keys := make([]string, 0, len(mapped))
	for _, setNumber := range mapped {
		if !seen[setNumber] {
			seen[setNumber] = true
			keys = append(keys, setNumber)
		}
	}

	if s.includeSeedSets {
		var seeds []string
		if err := s.db.Model(&models.SeedSet{}).Pluck("set_number", &seeds).Error; err != nil {
			return nil, fmt.Errorf("collect seed sets: %w", err)
		}
		for _, setNumber := range seeds {
			if !seen[setNumber] {
				seen[setNumber] = true
				keys = append(keys, setNumber)
			}
		}
	}

	sort.Strings(keys)
	return keys, nil
}

// fetchMerged issues the two price guide calls and merges them. The
// region-filtered call provides the authoritative aggregates; the global
// call provides the per-listing breakdown, because the upstream suppresses
// listing detail whenever a country filter is applied. Both calls go
// through the throttle.
func (s *BricklinkSyncer) fetchMerged(ctx context.Context, setNumber string, today time.Time) (*models.BricklinkPriceSnapshot, error) {
	if err := s.throttle.Wait(ctx); err != nil {
		return nil, err
	}
	var regional *bricklink.PriceGuide
	err := upstream.Do(ctx, upstream.DefaultAttempts, func() error {
		var callErr error
		regional, callErr = s.client.GetPriceGuide(ctx, setNumber, bricklink.PriceGuideOptions{
			Condition: s.condition,
			Region:    s.region,
			Currency:  s.currency,
		})
		return callErr
	})
	if err != nil {
		return nil, err
	}

	if err := s.throttle.Wait(ctx); err != nil {
		return nil, err
	}
	var global *bricklink.PriceGuide
	err = upstream.Do(ctx, upstream.DefaultAttempts, func() error {
		var callErr error
		global, callErr = s.client.GetPriceGuide(ctx, setNumber, bricklink.PriceGuideOptions{
			Condition: s.condition,
			Currency:  s.currency,
		})
		return callErr
	})
	if err != nil && !errors.Is(err, upstream.ErrNotFound) {
		return nil, err
	}

	snapshot := &models.BricklinkPriceSnapshot{
		SetNumber:     setNumber,
		SnapshotDate:  today,
		Condition:     s.condition,
		Region:        s.region,
		LotCount:      regional.LotCount,
		TotalQuantity: regional.TotalQty,
	}
	if regional.MinPrice > 0 {
		snapshot.MinPrice = &regional.MinPrice
	}
	if regional.AvgPrice > 0 {
		snapshot.AvgPrice = &regional.AvgPrice
	}
	if regional.MaxPrice > 0 {
		snapshot.MaxPrice = &regional.MaxPrice
	}
	if regional.QtyAvgPrice > 0 {
		snapshot.QtyAvgPrice = &regional.QtyAvgPrice
	}

	if global != nil && len(global.Detail) > 0 {
		detail := make([]models.PriceDetailEntry, 0, len(global.Detail))
		for _, lot := range global.Detail {
			detail = append(detail, models.PriceDetailEntry{
				Quantity:  lot.Quantity,
				UnitPrice: lot.UnitPrice,
				Region:    lot.SellerCountryCode,
				Ships:     lot.ShippingAvailable,
			})
		}
		sortDetail(detail, s.region)
		encoded, err := json.Marshal(detail)
		if err != nil {
			return nil, fmt.Errorf("encode price detail: %w", err)
		}
		snapshot.PriceDetail = string(encoded)
	}
	return snapshot, nil
}

// sortDetail orders listings ascending by unit price; at equal price the
// target region comes first so domestic lots lead the drill-down.
func sortDetail(detail []models.PriceDetailEntry, region string) {
	sort.SliceStable(detail, func(i, j int) bool {
		if detail[i].UnitPrice != detail[j].UnitPrice {
			return detail[i].UnitPrice < detail[j].UnitPrice
		}
		return detail[i].Region == region && detail[j].Region != region
	})
}

func (s *BricklinkSyncer) upsertSnapshot(snapshot *models.BricklinkPriceSnapshot) error {
	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "set_number"}, {Name: "snapshot_date"},
			{Name: "condition"}, {Name: "region"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"min_price", "avg_price", "max_price", "qty_avg_price",
			"lot_count", "total_quantity", "price_detail", "updated_at",
		}),
	}).Create(snapshot).Error
	if err != nil {
		return fmt.Errorf("upsert snapshot %s: %w", snapshot.SetNumber, err)
	}
	return nil
}

func (s *BricklinkSyncer) finish(summary *RunSummary, start time.Time, runErr error) (*RunSummary, error) {
	summary.Duration = time.Since(start)
	if runErr != nil {
		summary.Status = models.RunStatusFailed
		summary.Error = runErr.Error()
	}
	if err := s.status.Finish(summary); err != nil {
		s.logger.Error().Err(err).Msg("could not record run status")
	}
	s.logger.Info().
		Str("status", summary.Status).
		Int("processed", summary.Processed).
		Int("failed", summary.Failed).
		Dur("duration", summary.Duration).
		Msg("buy-side sync finished")
	return summary, runErr
}
