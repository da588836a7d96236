package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/batchpipe/engine/internal/models"
	"gorm.io/gorm"
)

// runRepo implements RunRepository using GORM.
type runRepo struct {
	db *gorm.DB
}

// NewRunRepository creates a new RunRepository.
func NewRunRepository(db *gorm.DB) *runRepo {
	return &runRepo{db: db}
}

// Create creates a new run record.
func (r *runRepo) Create(ctx context.Context, run *models.RunRecord) error {
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("creating run: %w", err)
	}
	return nil
}

// GetByID retrieves a run by ID.
func (r *runRepo) GetByID(ctx context.Context, id models.ULID) (*models.RunRecord, error) {
	var run models.RunRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&run).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting run by ID: %w", err)
	}
	return &run, nil
}

// GetByPlanID retrieves runs for a plan, most recent first.
func (r *runRepo) GetByPlanID(ctx context.Context, planID models.ULID, offset, limit int) ([]*models.RunRecord, int64, error) {
	var runs []*models.RunRecord
	var total int64

	query := r.db.WithContext(ctx).Model(&models.RunRecord{}).Where("plan_id = ?", planID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting runs: %w", err)
	}

	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&runs).Error; err != nil {
		return nil, 0, fmt.Errorf("getting runs by plan ID: %w", err)
	}

	return runs, total, nil
}

// GetRunning retrieves every run currently in progress.
func (r *runRepo) GetRunning(ctx context.Context) ([]*models.RunRecord, error) {
	var runs []*models.RunRecord
	if err := r.db.WithContext(ctx).
		Where("status IN (?, ?)", models.RunStatusRunning, models.RunStatusFlushing).
		Order("started_at ASC").
		Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("getting running runs: %w", err)
	}
	return runs, nil
}

// Update updates an existing run record.
func (r *runRepo) Update(ctx context.Context, run *models.RunRecord) error {
	if err := r.db.WithContext(ctx).Save(run).Error; err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	return nil
}

// DeleteCompleted deletes finished runs older than the given time.
func (r *runRepo) DeleteCompleted(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status IN (?, ?, ?) AND completed_at < ?",
			models.RunStatusCompleted, models.RunStatusFailed, models.RunStatusCancelled, before).
		Delete(&models.RunRecord{})

	if result.Error != nil {
		return 0, fmt.Errorf("deleting completed runs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// CreateStageRun creates a per-stage execution record.
func (r *runRepo) CreateStageRun(ctx context.Context, stageRun *models.StageRunRecord) error {
	if err := r.db.WithContext(ctx).Create(stageRun).Error; err != nil {
		return fmt.Errorf("creating stage run: %w", err)
	}
	return nil
}

// GetStageRuns retrieves every stage record for a run, in dispatch order.
func (r *runRepo) GetStageRuns(ctx context.Context, runID models.ULID) ([]*models.StageRunRecord, error) {
	var stageRuns []*models.StageRunRecord
	if err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("created_at ASC").
		Find(&stageRuns).Error; err != nil {
		return nil, fmt.Errorf("getting stage runs: %w", err)
	}
	return stageRuns, nil
}

// Ensure runRepo implements RunRepository at compile time.
var _ RunRepository = (*runRepo)(nil)
