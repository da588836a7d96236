// Package dispatch implements the Stage Dispatcher (spec.md §4.3): given a
// stage's resolved plugin handle and its assembled input collections, it
// switches on the stage's Kind to invoke the one plugin method that kind
// supports, and routes the result through the emit and cache policies.
package dispatch

import (
	"context"
	"fmt"

	"github.com/batchpipe/engine/internal/pipeline/collection"
	"github.com/batchpipe/engine/internal/pipeline/emit"
	"github.com/batchpipe/engine/internal/pipeline/join"
	"github.com/batchpipe/engine/internal/pipeline/plan"
	"github.com/batchpipe/engine/internal/pipeline/plugin"
	"github.com/batchpipe/engine/internal/pipeline/registry"
)

// UnsupportedPluginKindError is returned when a stage's PluginType is not one
// of the closed set dispatch knows how to drive.
type UnsupportedPluginKindError struct {
	Stage string
	Kind  plan.Kind
}

func (e *UnsupportedPluginKindError) Error() string {
	return fmt.Sprintf("dispatch: stage %q: unsupported plugin kind %q", e.Stage, e.Kind)
}

// MissingInputError is returned when a stage's assembled inputs do not
// satisfy what its kind requires.
type MissingInputError struct {
	Stage string
	Input string
}

func (e *MissingInputError) Error() string {
	return fmt.Sprintf("dispatch: stage %q: missing input %q", e.Stage, e.Input)
}

// WrongPluginTypeError is returned when PluginHandle does not implement the
// interface its declared Kind requires.
type WrongPluginTypeError struct {
	Stage string
	Want  string
}

func (e *WrongPluginTypeError) Error() string {
	return fmt.Sprintf("dispatch: stage %q: plugin handle does not implement %s", e.Stage, e.Want)
}

// Inputs is the assembled, per-named-input collections for one stage,
// already resolved from upstream output/port sub-collections by the driver
// (spec.md §4.1 "input assembly").
type Inputs struct {
	// Named holds one collection per declared input stage name.
	Named map[string]collection.Collection
	// Errors is the union of upstream error collections, built only when
	// the stage is an ErrorTransform.
	Errors collection.Collection
	// Alerts is the union of upstream alert collections, built only when
	// the stage is an AlertPublisher.
	Alerts collection.Collection
	// Combined is the union of every Named collection in deterministic
	// order, used by kinds that accept a single input stream.
	Combined collection.Collection
}

// Result is what dispatching one stage produces: the registry entry to
// store, plus an optional deferred sink task the sink scheduler should
// queue (non-nil only for sink and alert-publisher stages).
type Result struct {
	Records  registry.Records
	SinkTask collection.SinkTask
}

// Dispatch runs spec's plugin against in and returns the routed output. The
// cache policy (spec.md §4.5) is applied by the caller once it has the
// Records back, since it alone knows the stage's place in the DAG; schemas
// carries every input stage's output schema, used only by AutoJoiner stages.
func Dispatch(ctx context.Context, spec *plan.StageSpec, in Inputs, schemas map[string]plan.Schema, opts emit.Options) (Result, error) {
	switch spec.PluginType {
	case plan.KindSource:
		src, ok := spec.PluginHandle.(plugin.Source)
		if !ok {
			return Result{}, &WrongPluginTypeError{Stage: spec.Name, Want: "Source"}
		}
		out, err := src.GetSource(ctx, spec)
		if err != nil {
			return Result{}, fmt.Errorf("dispatch: stage %q: %w", spec.Name, err)
		}
		return routeTagged(spec, out, opts)

	case plan.KindConnector:
		if spec.ConnectorRole == plan.ConnectorRoleSink {
			return dispatchSink(ctx, spec, in)
		}
		src, ok := spec.PluginHandle.(plugin.Source)
		if !ok {
			return Result{}, &WrongPluginTypeError{Stage: spec.Name, Want: "Source"}
		}
		out, err := src.GetSource(ctx, spec)
		if err != nil {
			return Result{}, fmt.Errorf("dispatch: stage %q: %w", spec.Name, err)
		}
		return routeTagged(spec, out, opts)

	case plan.KindBatchSink, plan.KindSparkSink:
		return dispatchSink(ctx, spec, in)

	case plan.KindTransform:
		tr, ok := spec.PluginHandle.(plugin.Transform)
		if !ok {
			return Result{}, &WrongPluginTypeError{Stage: spec.Name, Want: "Transform"}
		}
		if in.Combined == nil {
			return Result{}, &MissingInputError{Stage: spec.Name, Input: "combined"}
		}
		out, err := tr.Transform(ctx, spec, in.Combined)
		if err != nil {
			return Result{}, fmt.Errorf("dispatch: stage %q: %w", spec.Name, err)
		}
		return routeTagged(spec, out, opts)

	case plan.KindSplitterTransform:
		sp, ok := spec.PluginHandle.(plugin.SplitterTransform)
		if !ok {
			return Result{}, &WrongPluginTypeError{Stage: spec.Name, Want: "SplitterTransform"}
		}
		if in.Combined == nil {
			return Result{}, &MissingInputError{Stage: spec.Name, Input: "combined"}
		}
		out, err := sp.MultiOutputTransform(ctx, spec, in.Combined)
		if err != nil {
			return Result{}, fmt.Errorf("dispatch: stage %q: %w", spec.Name, err)
		}
		return routeTagged(spec, out, opts)

	case plan.KindErrorTransform:
		et, ok := spec.PluginHandle.(plugin.ErrorTransform)
		if !ok {
			return Result{}, &WrongPluginTypeError{Stage: spec.Name, Want: "ErrorTransform"}
		}
		errs := in.Errors
		if errs == nil {
			return Result{}, &MissingInputError{Stage: spec.Name, Input: "errors"}
		}
		out, err := et.TransformErrors(ctx, spec, errs)
		if err != nil {
			return Result{}, fmt.Errorf("dispatch: stage %q: %w", spec.Name, err)
		}
		return routeTagged(spec, out, opts)

	case plan.KindSparkCompute:
		sc, ok := spec.PluginHandle.(plugin.SparkCompute)
		if !ok {
			return Result{}, &WrongPluginTypeError{Stage: spec.Name, Want: "SparkCompute"}
		}
		if in.Combined == nil {
			return Result{}, &MissingInputError{Stage: spec.Name, Input: "combined"}
		}
		out, err := sc.Compute(ctx, spec, in.Combined)
		if err != nil {
			return Result{}, fmt.Errorf("dispatch: stage %q: %w", spec.Name, err)
		}
		return routeTagged(spec, out, opts)

	case plan.KindBatchAggregator:
		ag, ok := spec.PluginHandle.(plugin.Aggregator)
		if !ok {
			return Result{}, &WrongPluginTypeError{Stage: spec.Name, Want: "Aggregator"}
		}
		if in.Combined == nil {
			return Result{}, &MissingInputError{Stage: spec.Name, Input: "combined"}
		}
		out, err := ag.Aggregate(ctx, spec, in.Combined, spec.Partitions)
		if err != nil {
			return Result{}, fmt.Errorf("dispatch: stage %q: %w", spec.Name, err)
		}
		return routeTagged(spec, out, opts)

	case plan.KindBatchReducibleAggregator:
		ag, ok := spec.PluginHandle.(plugin.ReducibleAggregator)
		if !ok {
			return Result{}, &WrongPluginTypeError{Stage: spec.Name, Want: "ReducibleAggregator"}
		}
		if in.Combined == nil {
			return Result{}, &MissingInputError{Stage: spec.Name, Input: "combined"}
		}
		out, err := ag.ReduceAggregate(ctx, spec, in.Combined, spec.Partitions)
		if err != nil {
			return Result{}, fmt.Errorf("dispatch: stage %q: %w", spec.Name, err)
		}
		return routeTagged(spec, out, opts)

	case plan.KindWindower:
		w, ok := spec.PluginHandle.(plugin.Windower)
		if !ok {
			return Result{}, &WrongPluginTypeError{Stage: spec.Name, Want: "Windower"}
		}
		if in.Combined == nil {
			return Result{}, &MissingInputError{Stage: spec.Name, Input: "combined"}
		}
		out, err := w.Window(ctx, spec, in.Combined)
		if err != nil {
			return Result{}, fmt.Errorf("dispatch: stage %q: %w", spec.Name, err)
		}
		return routeTagged(spec, out, opts)

	case plan.KindAlertPublisher:
		ap, ok := spec.PluginHandle.(plugin.AlertPublisher)
		if !ok {
			return Result{}, &WrongPluginTypeError{Stage: spec.Name, Want: "AlertPublisher"}
		}
		alerts := in.Alerts
		if alerts == nil {
			return Result{}, &MissingInputError{Stage: spec.Name, Input: "alerts"}
		}
		task, err := ap.PublishAlerts(ctx, spec, alerts)
		if err != nil {
			return Result{}, fmt.Errorf("dispatch: stage %q: %w", spec.Name, err)
		}
		return Result{SinkTask: task}, nil

	case plan.KindBatchJoiner:
		return dispatchJoin(ctx, spec, in, schemas, opts)

	default:
		return Result{}, &UnsupportedPluginKindError{Stage: spec.Name, Kind: spec.PluginType}
	}
}

func dispatchSink(ctx context.Context, spec *plan.StageSpec, in Inputs) (Result, error) {
	sk, ok := spec.PluginHandle.(plugin.Sink)
	if !ok {
		return Result{}, &WrongPluginTypeError{Stage: spec.Name, Want: "Sink"}
	}
	if in.Combined == nil {
		return Result{}, &MissingInputError{Stage: spec.Name, Input: "combined"}
	}
	task, err := sk.CreateStoreTask(ctx, spec, in.Combined)
	if err != nil {
		return Result{}, fmt.Errorf("dispatch: stage %q: %w", spec.Name, err)
	}
	return Result{SinkTask: task}, nil
}

func dispatchJoin(ctx context.Context, spec *plan.StageSpec, in Inputs, schemas map[string]plan.Schema, opts emit.Options) (Result, error) {
	switch joiner := spec.PluginHandle.(type) {
	case plugin.BatchJoiner:
		out, err := join.PlanExplicit(ctx, spec, in.Named, joiner)
		if err != nil {
			return Result{}, err
		}
		return routeTagged(spec, out, opts)
	case plugin.AutoJoiner:
		out, err := join.PlanAuto(ctx, spec, in.Named, joiner, schemas)
		if err != nil {
			return Result{}, err
		}
		return routeTagged(spec, out, opts)
	default:
		return Result{}, &join.UnknownJoinerTypeError{Stage: spec.Name}
	}
}

// routeTagged applies the emit router with the options the driver already
// computed for this stage, producing the stage's registry.Records. The
// cache policy is not applied here; the caller applies it afterwards.
func routeTagged(spec *plan.StageSpec, out collection.Collection, opts emit.Options) (Result, error) {
	rec := emit.Route(out, opts)
	return Result{Records: rec}, nil
}
