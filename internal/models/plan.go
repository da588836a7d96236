package models

import (
	"errors"

	"gorm.io/gorm"
)

// Validation errors returned by PlanRecord.Validate and RunRecord.Validate.
var (
	ErrNameRequired           = errors.New("plan name is required")
	ErrPlanDefinitionRequired = errors.New("plan definition is required")
	ErrPlanIDRequired         = errors.New("run plan ID is required")
)

// PlanRecord is a registered pipeline plan: the serialized stage graph the
// engine compiles into a plan.PipelinePlan before each run.
type PlanRecord struct {
	BaseModel

	// Name is a unique, human-readable identifier for this plan.
	Name string `gorm:"not null;size:255;uniqueIndex" json:"name"`

	// Description is optional free-form documentation.
	Description string `gorm:"size:1024" json:"description,omitempty"`

	// Definition is the YAML-encoded stage graph (stage specs, connections,
	// plugin configuration) the engine compiles at run time. The engine
	// never interprets this beyond compiling it into a plan.PipelinePlan.
	Definition string `gorm:"type:text;not null" json:"definition"`

	// CronSchedule drives cmd/planscheduled's recurring re-execution.
	// Empty means the plan only runs on demand.
	CronSchedule string `gorm:"size:100" json:"cron_schedule,omitempty"`

	// Enabled controls whether the scheduler considers this plan at all.
	Enabled *bool `gorm:"default:true" json:"enabled,omitempty"`

	// LastRunAt records when the scheduler last triggered this plan, to
	// support catch-up of missed runs after downtime.
	LastRunAt *Time `json:"last_run_at,omitempty"`
}

// TableName returns the table name for PlanRecord.
func (PlanRecord) TableName() string {
	return "plans"
}

// IsEnabled reports whether the plan should be considered by the scheduler.
func (p *PlanRecord) IsEnabled() bool {
	return BoolVal(p.Enabled)
}

// Validate performs basic validation on the plan record.
func (p *PlanRecord) Validate() error {
	if p.Name == "" {
		return ErrNameRequired
	}
	if p.Definition == "" {
		return ErrPlanDefinitionRequired
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the plan and generates a ULID.
func (p *PlanRecord) BeforeCreate(tx *gorm.DB) error {
	if err := p.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return p.Validate()
}

// BeforeUpdate is a GORM hook that validates the plan before update.
func (p *PlanRecord) BeforeUpdate(tx *gorm.DB) error {
	return p.Validate()
}
