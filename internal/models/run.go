package models

import "gorm.io/gorm"

// RunStatus represents the current status of a plan execution.
type RunStatus string

const (
	// RunStatusPending indicates the run is queued but not yet dispatching.
	RunStatusPending RunStatus = "pending"
	// RunStatusRunning indicates the driver is actively walking the DAG.
	RunStatusRunning RunStatus = "running"
	// RunStatusFlushing indicates every stage dispatched and the sink
	// scheduler is flushing the deferred sink queue (spec.md §4.7).
	RunStatusFlushing RunStatus = "flushing"
	// RunStatusCompleted indicates the run finished successfully.
	RunStatusCompleted RunStatus = "completed"
	// RunStatusFailed indicates the run failed.
	RunStatusFailed RunStatus = "failed"
	// RunStatusCancelled indicates the run was cancelled.
	RunStatusCancelled RunStatus = "cancelled"
)

// RunRecord is one execution of a registered PlanRecord.
type RunRecord struct {
	BaseModel

	// PlanID identifies the plan this run executed.
	PlanID ULID `gorm:"type:varchar(26);not null;index" json:"plan_id"`

	// PlanName is denormalized for display without a join.
	PlanName string `gorm:"size:255" json:"plan_name,omitempty"`

	// Status indicates the current status of the run.
	Status RunStatus `gorm:"not null;default:'pending';size:20;index" json:"status"`

	// Triggered indicates whether this run was started by the cron
	// scheduler or requested on demand.
	Triggered string `gorm:"size:20;default:'manual'" json:"triggered"`

	// StartedAt is the timestamp when dispatch began.
	StartedAt *Time `json:"started_at,omitempty"`

	// CompletedAt is the timestamp when the run finished, successfully or not.
	CompletedAt *Time `json:"completed_at,omitempty"`

	// DurationMs is the execution duration in milliseconds.
	DurationMs int64 `json:"duration_ms,omitempty"`

	// FailedStage names the stage dispatch or sink flush failed under, if
	// Status is failed.
	FailedStage string `gorm:"size:255" json:"failed_stage,omitempty"`

	// LastError contains the error message from a failed run.
	LastError string `gorm:"size:4096" json:"last_error,omitempty"`
}

// TableName returns the table name for RunRecord.
func (RunRecord) TableName() string {
	return "runs"
}

// IsFinished returns true if the run has completed, successfully or not.
func (r *RunRecord) IsFinished() bool {
	return r.Status == RunStatusCompleted || r.Status == RunStatusFailed || r.Status == RunStatusCancelled
}

// MarkRunning marks the run as actively dispatching stages.
func (r *RunRecord) MarkRunning() {
	r.Status = RunStatusRunning
	now := Now()
	r.StartedAt = &now
}

// MarkFlushing marks the run as flushing its deferred sink queue.
func (r *RunRecord) MarkFlushing() {
	r.Status = RunStatusFlushing
}

// MarkCompleted marks the run as completed successfully.
func (r *RunRecord) MarkCompleted() {
	r.Status = RunStatusCompleted
	now := Now()
	r.CompletedAt = &now
	if r.StartedAt != nil {
		r.DurationMs = now.Sub(*r.StartedAt).Milliseconds()
	}
}

// MarkFailed marks the run as failed under the named stage.
func (r *RunRecord) MarkFailed(stage string, err error) {
	r.Status = RunStatusFailed
	r.FailedStage = stage
	now := Now()
	r.CompletedAt = &now
	if err != nil {
		r.LastError = err.Error()
	}
	if r.StartedAt != nil {
		r.DurationMs = now.Sub(*r.StartedAt).Milliseconds()
	}
}

// Validate performs basic validation on the run record.
func (r *RunRecord) Validate() error {
	if r.PlanID.IsZero() {
		return ErrPlanIDRequired
	}
	return nil
}

// BeforeCreate is a GORM hook that validates the run and generates a ULID.
func (r *RunRecord) BeforeCreate(tx *gorm.DB) error {
	if err := r.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return r.Validate()
}

// StageRunRecord is the per-stage outcome within one RunRecord, kept for
// run-history inspection (spec.md §9 supplemented feature).
type StageRunRecord struct {
	BaseModel

	// RunID identifies the run this stage execution belongs to.
	RunID ULID `gorm:"type:varchar(26);not null;index" json:"run_id"`

	// StageName is the plan.StageSpec name that was dispatched.
	StageName string `gorm:"size:255;not null" json:"stage_name"`

	// Kind is the plugin kind dispatched, stored as plain text (the engine
	// package's plan.Kind).
	Kind string `gorm:"size:50" json:"kind"`

	// Status mirrors RunStatus but scoped to this one stage.
	Status RunStatus `gorm:"size:20" json:"status"`

	// StartedAt and CompletedAt bound this stage's dispatch call.
	StartedAt   *Time `json:"started_at,omitempty"`
	CompletedAt *Time `json:"completed_at,omitempty"`

	// DurationMs is the dispatch duration in milliseconds.
	DurationMs int64 `json:"duration_ms,omitempty"`

	// Error contains the error message if this stage's dispatch failed.
	Error string `gorm:"size:4096" json:"error,omitempty"`
}

// TableName returns the table name for StageRunRecord.
func (StageRunRecord) TableName() string {
	return "stage_runs"
}

// NewStageRunRecord starts a StageRunRecord for stage.
func NewStageRunRecord(runID ULID, stageName, kind string) *StageRunRecord {
	now := Now()
	return &StageRunRecord{
		RunID:     runID,
		StageName: stageName,
		Kind:      kind,
		Status:    RunStatusRunning,
		StartedAt: &now,
	}
}

// Finish records the outcome of a stage dispatch.
func (s *StageRunRecord) Finish(err error) {
	now := Now()
	s.CompletedAt = &now
	if s.StartedAt != nil {
		s.DurationMs = now.Sub(*s.StartedAt).Milliseconds()
	}
	if err != nil {
		s.Status = RunStatusFailed
		s.Error = err.Error()
		return
	}
	s.Status = RunStatusCompleted
}
