// Package repository defines data access interfaces for the engine's
// persisted plan and run history. All database access goes through these
// interfaces, enabling easy testing and database backend switching.
package repository

import (
	"context"
	"time"

	"github.com/batchpipe/engine/internal/models"
)

// PlanRepository defines operations for registered pipeline plan persistence.
type PlanRepository interface {
	// Create creates a new plan.
	Create(ctx context.Context, plan *models.PlanRecord) error
	// GetByID retrieves a plan by ID.
	GetByID(ctx context.Context, id models.ULID) (*models.PlanRecord, error)
	// GetByName retrieves a plan by its unique name.
	GetByName(ctx context.Context, name string) (*models.PlanRecord, error)
	// GetAll retrieves every registered plan.
	GetAll(ctx context.Context) ([]*models.PlanRecord, error)
	// GetScheduled retrieves every enabled plan with a non-empty cron
	// schedule, for cmd/planscheduled to consider.
	GetScheduled(ctx context.Context) ([]*models.PlanRecord, error)
	// Update updates an existing plan.
	Update(ctx context.Context, plan *models.PlanRecord) error
	// Delete deletes a plan by ID.
	Delete(ctx context.Context, id models.ULID) error
	// MarkRun updates a plan's LastRunAt timestamp.
	MarkRun(ctx context.Context, id models.ULID, at time.Time) error
}

// RunRepository defines operations for plan execution history persistence.
type RunRepository interface {
	// Create creates a new run record.
	Create(ctx context.Context, run *models.RunRecord) error
	// GetByID retrieves a run by ID.
	GetByID(ctx context.Context, id models.ULID) (*models.RunRecord, error)
	// GetByPlanID retrieves runs for a plan, most recent first.
	GetByPlanID(ctx context.Context, planID models.ULID, offset, limit int) ([]*models.RunRecord, int64, error)
	// GetRunning retrieves every run currently in progress.
	GetRunning(ctx context.Context) ([]*models.RunRecord, error)
	// Update updates an existing run record.
	Update(ctx context.Context, run *models.RunRecord) error
	// DeleteCompleted deletes finished runs older than the given time
	// (engine.history_retention, spec.md supplemented feature).
	DeleteCompleted(ctx context.Context, before time.Time) (int64, error)

	// CreateStageRun creates a per-stage execution record.
	CreateStageRun(ctx context.Context, stageRun *models.StageRunRecord) error
	// GetStageRuns retrieves every stage record for a run, in dispatch order.
	GetStageRuns(ctx context.Context, runID models.ULID) ([]*models.StageRunRecord, error)
}
