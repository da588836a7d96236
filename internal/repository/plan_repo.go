package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/batchpipe/engine/internal/models"
	"gorm.io/gorm"
)

// planRepo implements PlanRepository using GORM.
type planRepo struct {
	db *gorm.DB
}

// NewPlanRepository creates a new PlanRepository.
func NewPlanRepository(db *gorm.DB) *planRepo {
	return &planRepo{db: db}
}

// Create creates a new plan.
func (r *planRepo) Create(ctx context.Context, plan *models.PlanRecord) error {
	if err := r.db.WithContext(ctx).Create(plan).Error; err != nil {
		return fmt.Errorf("creating plan: %w", err)
	}
	return nil
}

// GetByID retrieves a plan by ID.
func (r *planRepo) GetByID(ctx context.Context, id models.ULID) (*models.PlanRecord, error) {
	var plan models.PlanRecord
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&plan).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting plan by ID: %w", err)
	}
	return &plan, nil
}

// GetByName retrieves a plan by its unique name.
func (r *planRepo) GetByName(ctx context.Context, name string) (*models.PlanRecord, error) {
	var plan models.PlanRecord
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&plan).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting plan by name: %w", err)
	}
	return &plan, nil
}

// GetAll retrieves every registered plan.
func (r *planRepo) GetAll(ctx context.Context) ([]*models.PlanRecord, error) {
	var plans []*models.PlanRecord
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&plans).Error; err != nil {
		return nil, fmt.Errorf("getting all plans: %w", err)
	}
	return plans, nil
}

// GetScheduled retrieves every enabled plan with a non-empty cron schedule.
func (r *planRepo) GetScheduled(ctx context.Context) ([]*models.PlanRecord, error) {
	var plans []*models.PlanRecord
	if err := r.db.WithContext(ctx).
		Where("enabled = ? AND cron_schedule != ''", true).
		Order("name ASC").
		Find(&plans).Error; err != nil {
		return nil, fmt.Errorf("getting scheduled plans: %w", err)
	}
	return plans, nil
}

// Update updates an existing plan.
func (r *planRepo) Update(ctx context.Context, plan *models.PlanRecord) error {
	if err := r.db.WithContext(ctx).Save(plan).Error; err != nil {
		return fmt.Errorf("updating plan: %w", err)
	}
	return nil
}

// Delete deletes a plan by ID.
func (r *planRepo) Delete(ctx context.Context, id models.ULID) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.PlanRecord{}).Error; err != nil {
		return fmt.Errorf("deleting plan: %w", err)
	}
	return nil
}

// MarkRun updates a plan's LastRunAt timestamp.
func (r *planRepo) MarkRun(ctx context.Context, id models.ULID, at time.Time) error {
	markedAt := models.Time(at)
	result := r.db.WithContext(ctx).Model(&models.PlanRecord{}).Where("id = ?", id).
		UpdateColumn("last_run_at", markedAt)
	if result.Error != nil {
		return fmt.Errorf("marking plan run: %w", result.Error)
	}
	return nil
}

// Ensure planRepo implements PlanRepository at compile time.
var _ PlanRepository = (*planRepo)(nil)
