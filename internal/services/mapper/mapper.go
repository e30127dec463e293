package mapper

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"brick-trader/internal/models"
	"brick-trader/internal/services/bricklink"
	"brick-trader/internal/services/setmatch"
	"brick-trader/internal/services/upstream"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// setNumberFormat validates manual catalog keys before any I/O.
var setNumberFormat = regexp.MustCompile(`^\d{4,6}-\d$`)

// CatalogVerifier is the slice of the BrickLink client the mapper needs.
type CatalogVerifier interface {
	GetCatalogItem(ctx context.Context, setNumber string) (*bricklink.CatalogItem, error)
}

// Result summarises one auto-mapping pass.
type Result struct {
	Mapped      []string `json:"mapped"`
	NeedsReview []string `json:"needs_review"`
	Failed      int      `json:"failed"`
}

// Mapper maintains ASIN → set number mappings. Auto-mapping extracts a
// candidate from the listing title and only ever writes a row after the
// BrickLink catalog confirms it; unverifiable ASINs land in the
// needs-review bucket instead.
type Mapper struct {
	db       *gorm.DB
	catalog  CatalogVerifier
	throttle *upstream.Throttle
	logger   zerolog.Logger
}

func New(db *gorm.DB, catalog CatalogVerifier, throttle *upstream.Throttle, logger zerolog.Logger) *Mapper {
	return &Mapper{
		db:       db,
		catalog:  catalog,
		throttle: throttle,
		logger:   logger.With().Str("component", "mapper").Logger(),
	}
}

// MapUnmapped walks every active ASIN without a mapping and tries to link
// it. A RateLimitExceeded from the catalog aborts the pass with partial
// progress kept.
func (m *Mapper) MapUnmapped(ctx context.Context) (*Result, error) {
	var unmapped []models.TrackedASIN
	err := m.db.
		Where("status = ?", models.StatusActive).
		Where("asin NOT IN (?)", m.db.Model(&models.SetMapping{}).Select("asin")).
		Order("asin").
		Find(&unmapped).Error
	if err != nil {
		return nil, fmt.Errorf("list unmapped asins: %w", err)
	}

	result := &Result{}
	for _, row := range unmapped {
		candidate := setmatch.ExtractSetNumber(row.Title)
		if candidate == "" {
			result.NeedsReview = append(result.NeedsReview, row.ASIN)
			continue
		}

		setNumber := setmatch.Canonicalize(candidate)

		if err := m.throttle.Wait(ctx); err != nil {
			return result, err
		}
		verifyErr := upstream.Do(ctx, upstream.DefaultAttempts, func() error {
			_, err := m.catalog.GetCatalogItem(ctx, setNumber)
			return err
		})
		if errors.Is(verifyErr, upstream.ErrNotFound) {
			result.NeedsReview = append(result.NeedsReview, row.ASIN)
			continue
		}
		if upstream.IsRateLimit(verifyErr) || upstream.IsAuth(verifyErr) {
			return result, verifyErr
		}
		if verifyErr != nil {
			m.logger.Warn().Err(verifyErr).Str("asin", row.ASIN).Msg("catalog verification failed")
			result.Failed++
			continue
		}

		confidence := models.ConfidenceProbable
		method := "title_number"
		if setmatch.HasDashSuffix(candidate) {
			confidence = models.ConfidenceExact
			method = "title_dash_suffix"
		}
		if err := m.write(row.ASIN, setNumber, confidence, method); err != nil {
			m.logger.Error().Err(err).Str("asin", row.ASIN).Msg("mapping write failed")
			result.Failed++
			continue
		}
		result.Mapped = append(result.Mapped, row.ASIN)
	}
	return result, nil
}

// SetManual links an ASIN to a set number on user request. Format is
// validated up front and the catalog is not consulted: manual links are
// trusted by construction.
func (m *Mapper) SetManual(asin, setNumber string) error {
	if !setNumberFormat.MatchString(setNumber) {
		return &upstream.ValidationError{Field: "set_number", Reason: "must match NNNN-N format"}
	}
	var tracked models.TrackedASIN
	if err := m.db.Where("asin = ?", asin).First(&tracked).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &upstream.ValidationError{Field: "asin", Reason: "not tracked"}
		}
		return fmt.Errorf("lookup %s: %w", asin, err)
	}
	return m.write(asin, setNumber, models.ConfidenceManual, "manual_link")
}

// Unlink removes the mapping for an ASIN, returning it to the unmapped set.
func (m *Mapper) Unlink(asin string) error {
	res := m.db.Where("asin = ?", asin).Delete(&models.SetMapping{})
	if res.Error != nil {
		return fmt.Errorf("unlink %s: %w", asin, res.Error)
	}
	if res.RowsAffected == 0 {
		return &upstream.ValidationError{Field: "asin", Reason: "no mapping to remove"}
	}
	return nil
}

func (m *Mapper) write(asin, setNumber, confidence, method string) error {
	mapping := models.SetMapping{
		ASIN:        asin,
		SetNumber:   setNumber,
		Confidence:  confidence,
		MatchMethod: method,
		VerifiedAt:  time.Now(),
	}
	err := m.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "asin"}},
		DoUpdates: clause.AssignmentColumns([]string{"set_number", "confidence", "match_method", "verified_at", "updated_at"}),
	}).Create(&mapping).Error
	if err != nil {
		return fmt.Errorf("upsert mapping %s -> %s: %w", asin, setNumber, err)
	}
	return nil
}
