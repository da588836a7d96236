// Package plugin defines the per-kind plugin contracts the Stage Dispatcher
// invokes (spec.md §4.3) and the PluginContext collaborator that
// materializes plugin instances (spec.md §6). Plugin lifecycle beyond
// `initialize` is out of scope; this package only describes the call
// surface the engine needs.
package plugin

import (
	"context"

	"github.com/batchpipe/engine/internal/pipeline/collection"
	"github.com/batchpipe/engine/internal/pipeline/plan"
)

// StatsCollector is the opaque per-stage metrics collector threaded through
// plugin calls. The engine never interprets metrics (spec.md §6); NoopStats
// is used when a stage carries none.
type StatsCollector interface {
	Count(name string, n int64)
	Gauge(name string, v float64)
}

type noopStats struct{}

func (noopStats) Count(string, int64) {}
func (noopStats) Gauge(string, float64) {}

// NoopStats is the zero-value metrics collector.
var NoopStats StatsCollector = noopStats{}

// MacroEvaluator resolves runtime-argument macros in plugin configuration.
// Macro expansion itself is out of scope (spec.md §1); the engine only
// passes an evaluator through to plugin construction.
type MacroEvaluator interface {
	Evaluate(expr string) (string, error)
}

// Context supplies configured plugin instances to the dispatcher.
type Context interface {
	// NewPluginInstance materializes the plugin configured for stageName.
	NewPluginInstance(ctx context.Context, stageName string, evaluator MacroEvaluator) (any, error)
}

// InstantiationError wraps a failure from Context.NewPluginInstance.
type InstantiationError struct {
	StageName string
	Err       error
}

func (e *InstantiationError) Error() string {
	return "instantiating plugin for stage " + e.StageName + ": " + e.Err.Error()
}

func (e *InstantiationError) Unwrap() error { return e.Err }

// Source produces the initial collection of a source stage.
type Source interface {
	GetSource(ctx context.Context, spec *plan.StageSpec) (collection.Collection, error)
}

// Sink consumes one input collection and returns a deferred store action.
type Sink interface {
	CreateStoreTask(ctx context.Context, spec *plan.StageSpec, in collection.Collection) (collection.SinkTask, error)
}

// Transform maps one input collection to one output collection.
type Transform interface {
	Transform(ctx context.Context, spec *plan.StageSpec, in collection.Collection) (collection.Collection, error)
}

// SplitterTransform produces a single tagged stream carrying PortOutput
// records for each declared port; the emit router splits it apart.
type SplitterTransform interface {
	MultiOutputTransform(ctx context.Context, spec *plan.StageSpec, in collection.Collection) (collection.Collection, error)
}

// ErrorTransform consumes the union of upstream error records.
type ErrorTransform interface {
	TransformErrors(ctx context.Context, spec *plan.StageSpec, errs collection.Collection) (collection.Collection, error)
}

// SparkCompute runs arbitrary backend-native computation over one input.
type SparkCompute interface {
	Compute(ctx context.Context, spec *plan.StageSpec, in collection.Collection) (collection.Collection, error)
}

// Aggregator performs non-reducible aggregation (spec.md's BatchAggregator).
type Aggregator interface {
	Aggregate(ctx context.Context, spec *plan.StageSpec, in collection.Collection, partitions *int) (collection.Collection, error)
}

// ReducibleAggregator performs combiner-style aggregation.
type ReducibleAggregator interface {
	ReduceAggregate(ctx context.Context, spec *plan.StageSpec, in collection.Collection, partitions *int) (collection.Collection, error)
}

// Windower assigns records to windows ahead of a downstream aggregator.
type Windower interface {
	Window(ctx context.Context, spec *plan.StageSpec, in collection.Collection) (collection.Collection, error)
}

// AlertPublisher consumes the union of upstream alerts. Publication is
// deferred like a sink: the engine never executes it during DAG traversal
// (spec.md §5, "the only points that execute data movement are
// create_store_task invocations in the sink phase").
type AlertPublisher interface {
	PublishAlerts(ctx context.Context, spec *plan.StageSpec, alerts collection.Collection) (collection.SinkTask, error)
}

// BatchJoiner is the explicit, pull-model join API (spec.md §4.4).
type BatchJoiner interface {
	// RequiredInputs returns the declared required input stage names, in
	// configured order (spec.md §3 JoinRequest, §4.4 step 2 tie-break).
	RequiredInputs() []string

	// AddJoinKey derives the keyed-pair collection for one input stage.
	AddJoinKey(ctx context.Context, spec *plan.StageSpec, inputName string, in collection.Collection) (collection.KeyedCollection, error)

	// InitialJoin seeds the join accumulator from the first required input.
	InitialJoin(ctx context.Context, spec *plan.StageSpec, inputName string, v any) any

	// JoinFlatten merges a join accumulator with a newly-joined value.
	JoinFlatten(ctx context.Context, spec *plan.StageSpec, inputName string, acc any, joined any) any

	// MergeJoinResults produces the final output record from a join
	// accumulator (spec.md §4.4 step 5).
	MergeJoinResults(ctx context.Context, spec *plan.StageSpec, v any) any
}

// JoinConditionOp is the closed set of auto-join condition operators.
type JoinConditionOp string

// KeyEquality is the only operator the engine currently supports
// (spec.md §4.4 step 3); anything else is UnsupportedJoinCondition.
const KeyEquality JoinConditionOp = "KEY_EQUALITY"

// JoinCondition describes how an AutoJoiner's inputs relate.
type JoinCondition struct {
	Op   JoinConditionOp
	Keys map[string][]string // stage name -> key field list
}

// JoinStageRef is one input of a declarative join definition.
type JoinStageRef struct {
	StageName string
	Required  bool
	Broadcast bool
}

// JoinDefinition is what AutoJoiner.Define returns (spec.md §4.4 step 1).
type JoinDefinition struct {
	Stages         []JoinStageRef
	Condition      JoinCondition
	SelectedFields []string
	OutputSchema   map[string]any
}

// JoinContext carries each input stage's schema into AutoJoiner.Define.
type JoinContext struct {
	Schemas map[string]plan.Schema
}

// AutoJoiner is the declarative join API (spec.md §4.4).
type AutoJoiner interface {
	Define(ctx context.Context, jctx JoinContext) (JoinDefinition, error)
}
