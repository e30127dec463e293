package pricesync

import (
	"errors"
	"fmt"
	"time"

	"brick-trader/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RunSummary is what a sync routine reports back to its caller. Partial
// failure is a normal outcome: the summary carries counts, not an error.
type RunSummary struct {
	JobType   string        `json:"job_type"`
	Status    string        `json:"status"`
	Processed int           `json:"processed"`
	Failed    int           `json:"failed"`
	Total     int           `json:"total"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// StatusRepo keeps one SyncStatus row per job type, overwritten every run.
// Callers serialize runs of the same job type; the upsert is not built for
// concurrent writers of one key.
type StatusRepo struct {
	db *gorm.DB
}

func NewStatusRepo(db *gorm.DB) *StatusRepo {
	return &StatusRepo{db: db}
}

// Begin marks a job as running. The previous run's counters stay visible
// until Finish overwrites them.
func (r *StatusRepo) Begin(jobType string) error {
	row := models.SyncStatus{
		JobType:   jobType,
		Status:    models.RunStatusRunning,
		LastRunAt: time.Now(),
	}
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "last_run_at", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("begin %s run: %w", jobType, err)
	}
	return nil
}

// Finish records the final state of a run.
func (r *StatusRepo) Finish(summary *RunSummary) error {
	row := models.SyncStatus{
		JobType:         summary.JobType,
		Status:          summary.Status,
		LastRunAt:       time.Now().Add(-summary.Duration),
		DurationSeconds: summary.Duration.Seconds(),
		ItemsProcessed:  summary.Processed,
		ItemsFailed:     summary.Failed,
		ErrorMessage:    summary.Error,
	}
	if summary.Status == models.RunStatusCompleted {
		now := time.Now()
		row.LastSuccessAt = &now
	}
	assign := []string{"status", "last_run_at", "duration_seconds", "items_processed", "items_failed", "error_message", "updated_at"}
	if row.LastSuccessAt != nil {
		assign = append(assign, "last_success_at")
	}
	err := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_type"}},
		DoUpdates: clause.AssignmentColumns(assign),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("finish %s run: %w", summary.JobType, err)
	}
	return nil
}

// Get returns the latest status for one job type.
func (r *StatusRepo) Get(jobType string) (*models.SyncStatus, error) {
	var row models.SyncStatus
	err := r.db.Where("job_type = ?", jobType).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s status: %w", jobType, err)
	}
	return &row, nil
}

// List returns the status row of every job type that has ever run.
func (r *StatusRepo) List() ([]models.SyncStatus, error) {
	var rows []models.SyncStatus
	if err := r.db.Order("job_type").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list sync status: %w", err)
	}
	return rows, nil
}
