// Package execution wires a compiled plan.PipelinePlan to the engine driver
// and records the outcome to run history. Both cmd/enginectl's "run"
// command and cmd/planscheduled's cron-triggered re-execution share this
// path so a plan behaves identically whether it was run on demand or by
// schedule.
package execution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/batchpipe/engine/internal/models"
	"github.com/batchpipe/engine/internal/observability"
	"github.com/batchpipe/engine/internal/pipeline/engine"
	"github.com/batchpipe/engine/internal/pipeline/plan"
	"github.com/batchpipe/engine/internal/pipeline/plugin"
	"github.com/batchpipe/engine/internal/pipeline/sink"
	"github.com/batchpipe/engine/internal/repository"
)

// PlanExecutor compiles a registered plan's stored definition and runs it
// through the engine, recording a RunRecord and one StageRunRecord per
// dispatched stage.
type PlanExecutor struct {
	PlanRepo        repository.PlanRepository
	RunRepo         repository.RunRepository
	SinkConcurrency int
	StageTimeout    time.Duration
	Logger          *slog.Logger
	Triggered       string
}

// ExecutePlan implements scheduler.Executor.
func (e *PlanExecutor) ExecutePlan(ctx context.Context, record *models.PlanRecord) error {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}
	triggered := e.Triggered
	if triggered == "" {
		triggered = "manual"
	}

	// A fresh correlation ID ties every log line this run emits together,
	// independent of the ULID the run record gets once it is created.
	correlationID := uuid.NewString()
	ctx = observability.ContextWithCorrelationID(ctx, correlationID)
	logger = observability.WithCorrelationID(logger, correlationID)

	p, err := plan.Load([]byte(record.Definition), plugin.Factory)
	if err != nil {
		return fmt.Errorf("compiling plan %q: %w", record.Name, err)
	}

	run := &models.RunRecord{PlanID: record.ID, PlanName: record.Name, Triggered: triggered, Status: models.RunStatusPending}
	if err := e.RunRepo.Create(ctx, run); err != nil {
		return fmt.Errorf("creating run record: %w", err)
	}
	run.MarkRunning()
	if err := e.RunRepo.Update(ctx, run); err != nil {
		return fmt.Errorf("updating run record: %w", err)
	}

	runErr := engine.RunPipeline(ctx, p, engine.RunOptions{
		SinkConcurrency: e.SinkConcurrency,
		StageTimeout:    e.StageTimeout,
		Logger:          logger,
		OnStage: func(stage string, kind plan.Kind, dur time.Duration, stageErr error) {
			stageRun := models.NewStageRunRecord(run.ID, stage, string(kind))
			stageRun.Finish(stageErr)
			if err := e.RunRepo.CreateStageRun(ctx, stageRun); err != nil {
				logger.Warn("recording stage run failed", slog.String("stage", stage), slog.Any("error", err))
			}
		},
	})

	run.MarkFlushing()
	if runErr != nil {
		run.MarkFailed(failedStage(runErr), runErr)
	} else {
		run.MarkCompleted()
	}
	if err := e.RunRepo.Update(ctx, run); err != nil {
		logger.Warn("updating final run record failed", slog.Any("error", err))
	}

	if err := e.PlanRepo.MarkRun(ctx, record.ID, time.Now()); err != nil {
		logger.Warn("marking plan last run failed", slog.Any("error", err))
	}

	if runErr != nil {
		return fmt.Errorf("run %s failed: %w", run.ID, runErr)
	}
	return nil
}

// failedStage extracts the stage name a run failed under from either of the
// two error shapes RunPipeline can return: a dispatch-time *engine.StageFailure,
// or a *sink.Failure from the final sink flush.
func failedStage(err error) string {
	var stageFailure *engine.StageFailure
	if errors.As(err, &stageFailure) {
		return stageFailure.Stage
	}
	var sinkFailure *sink.Failure
	if errors.As(err, &sinkFailure) {
		return sinkFailure.Stage
	}
	return ""
}
