// Package engine implements the Pipeline Driver (spec.md §4.1): it walks a
// PipelinePlan in topological order, assembles each stage's inputs from the
// registry, dispatches the stage, applies the cache policy to what it
// produced, and finally flushes every deferred sink task.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/batchpipe/engine/internal/pipeline/cache"
	"github.com/batchpipe/engine/internal/pipeline/collection"
	"github.com/batchpipe/engine/internal/pipeline/dispatch"
	"github.com/batchpipe/engine/internal/pipeline/emit"
	"github.com/batchpipe/engine/internal/pipeline/plan"
	"github.com/batchpipe/engine/internal/pipeline/registry"
	"github.com/batchpipe/engine/internal/pipeline/sink"
)

// RunOptions configures one execution of RunPipeline.
type RunOptions struct {
	// SinkConcurrency bounds how many deferred sink tasks run at once. A
	// value <= 1 runs sinks sequentially (spec.md §4.7).
	SinkConcurrency int
	Logger          *slog.Logger

	// StageTimeout, if positive, bounds how long a single stage's dispatch
	// call may run before its context is cancelled. Zero means no deadline.
	StageTimeout time.Duration

	// OnStage, if set, is called once per stage immediately after its
	// dispatch call returns (err is nil on success). Callers use this to
	// record per-stage run history without the driver depending on any
	// persistence concern itself.
	OnStage func(stage string, kind plan.Kind, dur time.Duration, err error)
}

// StageFailure wraps the stage name a run failed under.
type StageFailure struct {
	Stage string
	Err   error
}

func (e *StageFailure) Error() string {
	return fmt.Sprintf("engine: stage %q: %v", e.Stage, e.Err)
}

func (e *StageFailure) Unwrap() error { return e.Err }

// RunPipeline executes p to completion: every stage is visited exactly once
// in the plan's deterministic topological order (spec.md §4.1
// "Determinism"), and every queued sink task is flushed before returning.
func RunPipeline(ctx context.Context, p *plan.PipelinePlan, opts RunOptions) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	reg := registry.New()
	queue := sink.NewQueue()
	schemas := outputSchemas(p)

	for _, name := range p.DAG.Order {
		spec := p.Stages[name]

		in, err := assembleInputs(reg, p, spec)
		if err != nil {
			return &StageFailure{Stage: name, Err: err}
		}

		downOpts := downstreamOptions(p, spec)

		logger.Debug("dispatching stage",
			slog.String("stage", name),
			slog.String("kind", string(spec.PluginType)))

		stageCtx, cancel := stageContext(ctx, opts.StageTimeout)

		started := time.Now()
		result, err := dispatch.Dispatch(stageCtx, spec, in, schemas, downOpts)
		cancel()
		if opts.OnStage != nil {
			opts.OnStage(name, spec.PluginType, time.Since(started), err)
		}
		if err != nil {
			return &StageFailure{Stage: name, Err: err}
		}

		if result.SinkTask != nil {
			if err := queue.Enqueue(name, result.SinkTask); err != nil {
				return &StageFailure{Stage: name, Err: err}
			}
			continue
		}

		shouldCache := cache.ShouldCache(name, p.DAG)
		rec := emit.CacheIfNeeded(result.Records, shouldCache)

		if err := reg.Set(name, rec); err != nil {
			return &StageFailure{Stage: name, Err: err}
		}
	}

	logger.Debug("flushing sink queue", slog.Int("concurrency", opts.SinkConcurrency))
	if err := sink.Flush(ctx, queue, sink.Options{Concurrency: opts.SinkConcurrency, Logger: logger}); err != nil {
		return err
	}

	return nil
}

// stageContext derives a per-stage context bounded by timeout, if positive.
// The returned cancel must be called once the stage's dispatch call returns,
// win or lose, to release the timer.
func stageContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// assembleInputs builds a stage's dispatch.Inputs from its upstream
// predecessors' registry entries, respecting port routing for splitter
// outputs and skipping upstream names this plan phase never produced
// (spec.md §4.1 "multi-phase pipelines", §9).
func assembleInputs(reg *registry.Registry, p *plan.PipelinePlan, spec *plan.StageSpec) (dispatch.Inputs, error) {
	in := dispatch.Inputs{Named: make(map[string]collection.Collection)}

	var combinedParts []collection.Collection
	var errParts []collection.Collection
	var alertParts []collection.Collection

	for _, up := range spec.InputOrder() {
		upRec, ok := reg.Get(up)
		if !ok {
			// Upstream belongs to a different plan phase; the multi-phase
			// driver stitches phases together externally (spec.md §4.1).
			continue
		}

		var c collection.Collection
		if port, ok := upPort(p, up, spec.Name); ok {
			c, ok = upRec.OutputPorts[port]
			if !ok {
				return dispatch.Inputs{}, fmt.Errorf("engine: stage %q: upstream %q has no output for port %q", spec.Name, up, port)
			}
		} else {
			c = upRec.Output
			if c == nil {
				return dispatch.Inputs{}, fmt.Errorf("engine: stage %q: upstream %q produced no output", spec.Name, up)
			}
		}

		in.Named[up] = c
		combinedParts = append(combinedParts, c)

		if upRec.Errors != nil {
			errParts = append(errParts, upRec.Errors)
		}
		if upRec.Alerts != nil {
			alertParts = append(alertParts, upRec.Alerts)
		}
	}

	if len(combinedParts) == 1 {
		in.Combined = combinedParts[0]
	} else if len(combinedParts) > 1 {
		in.Combined = combinedParts[0].Union(combinedParts[1:]...)
	}

	if spec.PluginType == plan.KindErrorTransform && len(errParts) > 0 {
		in.Errors = errParts[0]
		if len(errParts) > 1 {
			in.Errors = errParts[0].Union(errParts[1:]...)
		}
	}
	if spec.PluginType == plan.KindAlertPublisher && len(alertParts) > 0 {
		in.Alerts = alertParts[0]
		if len(alertParts) > 1 {
			in.Alerts = alertParts[0].Union(alertParts[1:]...)
		}
	}

	return in, nil
}

// upPort reports the output port name upstream uses to address downstream,
// if upstream is a splitter with a declared port for it.
func upPort(p *plan.PipelinePlan, upstream, downstream string) (string, bool) {
	upSpec := p.Stages[upstream]
	if upSpec == nil || upSpec.PluginType != plan.KindSplitterTransform {
		return "", false
	}
	port, ok := upSpec.OutputPorts[downstream]
	if !ok {
		return "", false
	}
	return port.Name, true
}

// downstreamOptions derives the emit.Options a stage needs by inspecting
// what kinds of stages read from it: ports for a splitter, error-transform
// and alert-publisher presence for the error/alert sub-streams.
func downstreamOptions(p *plan.PipelinePlan, spec *plan.StageSpec) emit.Options {
	opts := emit.Options{}

	if spec.PluginType == plan.KindSplitterTransform {
		ports := make([]string, 0, len(spec.OutputPorts))
		seen := make(map[string]bool)
		for _, port := range spec.OutputPorts {
			if !seen[port.Name] {
				seen[port.Name] = true
				ports = append(ports, port.Name)
			}
		}
		opts.Ports = ports
	}

	for _, down := range p.DAG.Downstream[spec.Name] {
		downSpec := p.Stages[down]
		if downSpec == nil {
			continue
		}
		switch downSpec.PluginType {
		case plan.KindErrorTransform:
			opts.NeedsErrors = true
		case plan.KindAlertPublisher:
			opts.NeedsAlerts = true
		}
	}

	return opts
}

// outputSchemas collects every stage's declared output schema for
// AutoJoiner stages to consult via JoinContext.
func outputSchemas(p *plan.PipelinePlan) map[string]plan.Schema {
	schemas := make(map[string]plan.Schema, len(p.Stages))
	for name, spec := range p.Stages {
		if spec.OutputSchema != nil {
			schemas[name] = *spec.OutputSchema
		}
	}
	return schemas
}
