package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"brick-trader/internal/models"

	"gorm.io/gorm"
)

// ErrInvalidTransition is returned for state changes the lifecycle does not
// allow (e.g. excluding an already-excluded ASIN).
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// ErrNotTracked is returned when the ASIN is unknown.
var ErrNotTracked = errors.New("asin is not tracked")

// Manager owns the tracked-ASIN state machine
// (active / excluded / pending_review). No transition deletes a row;
// exclusion is always reversible.
type Manager struct {
	db *gorm.DB
}

func NewManager(db *gorm.DB) *Manager {
	return &Manager{db: db}
}

// Track creates a tracked ASIN if it does not exist yet. The initial state
// follows the source: discovery finds land in pending_review, everything
// else starts active. Existing rows are left untouched.
func (m *Manager) Track(asin, source, title string) (*models.TrackedASIN, error) {
	var existing models.TrackedASIN
	err := m.db.Where("asin = ?", asin).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lookup %s: %w", asin, err)
	}

	status := models.StatusActive
	if source == models.SourceDiscovery {
		status = models.StatusPendingReview
	}
	row := models.TrackedASIN{
		ASIN:    asin,
		Source:  source,
		Status:  status,
		Title:   title,
		AddedAt: time.Now(),
	}
	if err := m.db.Create(&row).Error; err != nil {
		return nil, fmt.Errorf("track %s: %w", asin, err)
	}
	return &row, nil
}

// Exclude moves an active ASIN out of sync scope with an optional reason.
func (m *Manager) Exclude(asin, reason string) error {
	return m.transition(asin, []string{models.StatusActive}, func(row *models.TrackedASIN) {
		now := time.Now()
		row.Status = models.StatusExcluded
		row.ExcludedAt = &now
		row.ExclusionReason = reason
	})
}

// Restore returns an excluded ASIN to the active set; it becomes eligible
// for the next sync pass.
func (m *Manager) Restore(asin string) error {
	return m.transition(asin, []string{models.StatusExcluded}, func(row *models.TrackedASIN) {
		row.Status = models.StatusActive
		row.ExcludedAt = nil
		row.ExclusionReason = ""
	})
}

// Approve accepts a discovery candidate into the active set.
func (m *Manager) Approve(asin string) error {
	return m.transition(asin, []string{models.StatusPendingReview}, func(row *models.TrackedASIN) {
		row.Status = models.StatusActive
	})
}

// Reject excludes a discovery candidate without it ever having synced.
func (m *Manager) Reject(asin, reason string) error {
	return m.transition(asin, []string{models.StatusPendingReview}, func(row *models.TrackedASIN) {
		now := time.Now()
		row.Status = models.StatusExcluded
		row.ExcludedAt = &now
		row.ExclusionReason = reason
	})
}

// ActiveASINs returns every ASIN eligible for a sync pass. Excluded and
// pending_review rows never appear here.
func (m *Manager) ActiveASINs() ([]models.TrackedASIN, error) {
	var rows []models.TrackedASIN
	err := m.db.Where("status = ?", models.StatusActive).Order("asin").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list active asins: %w", err)
	}
	return rows, nil
}

func (m *Manager) transition(asin string, fromStates []string, apply func(*models.TrackedASIN)) error {
	var row models.TrackedASIN
	err := m.db.Where("asin = ?", asin).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotTracked
	}
	if err != nil {
		return fmt.Errorf("lookup %s: %w", asin, err)
	}

	allowed := false
	for _, state := range fromStates {
		if row.Status == state {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, asin, row.Status)
	}

	apply(&row)
	// Explicit column list so clearing ExcludedAt/reason persists.
	err = m.db.Model(&row).Select("Status", "ExcludedAt", "ExclusionReason").Updates(&row).Error
	if err != nil {
		return fmt.Errorf("update %s: %w", asin, err)
	}
	return nil
}
