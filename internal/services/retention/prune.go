package retention

import (
	"fmt"
	"time"

	"brick-trader/internal/models"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Pruner deletes price snapshots past the retention window. Housekeeping
// only; live margin queries never reach back this far.
type Pruner struct {
	db            *gorm.DB
	retentionDays int
	logger        zerolog.Logger
}

func NewPruner(db *gorm.DB, retentionDays int, logger zerolog.Logger) *Pruner {
	if retentionDays <= 0 {
		retentionDays = 365
	}
	return &Pruner{
		db:            db,
		retentionDays: retentionDays,
		logger:        logger.With().Str("job", "snapshot_retention").Logger(),
	}
}

// Prune removes snapshots older than the retention window from both
// snapshot tables and reports how many rows went.
func (p *Pruner) Prune() (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -p.retentionDays)

	sell := p.db.Where("snapshot_date < ?", cutoff).Delete(&models.AmazonPriceSnapshot{})
	if sell.Error != nil {
		return 0, fmt.Errorf("prune sell-side snapshots: %w", sell.Error)
	}
	buy := p.db.Where("snapshot_date < ?", cutoff).Delete(&models.BricklinkPriceSnapshot{})
	if buy.Error != nil {
		return sell.RowsAffected, fmt.Errorf("prune buy-side snapshots: %w", buy.Error)
	}

	total := sell.RowsAffected + buy.RowsAffected
	p.logger.Info().Int64("rows", total).Time("cutoff", cutoff).Msg("snapshot retention pass done")
	return total, nil
}
