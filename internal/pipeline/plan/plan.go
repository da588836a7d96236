// Package plan holds the frozen, validated pipeline DAG the engine executes.
// Plan compilation and schema validation happen upstream of this package;
// plan only models the already-validated result (spec.md §3).
package plan

import (
	"fmt"
	"sort"
)

// Kind is the closed set of plugin tags a stage may carry.
type Kind string

const (
	KindSource                     Kind = "source"
	KindConnector                  Kind = "connector"
	KindBatchSink                  Kind = "batch_sink"
	KindTransform                  Kind = "transform"
	KindSplitterTransform          Kind = "splitter_transform"
	KindErrorTransform             Kind = "error_transform"
	KindSparkCompute                Kind = "spark_compute"
	KindSparkSink                   Kind = "spark_sink"
	KindBatchAggregator             Kind = "batch_aggregator"
	KindBatchReducibleAggregator    Kind = "batch_reducible_aggregator"
	KindBatchJoiner                 Kind = "batch_joiner"
	KindWindower                    Kind = "windower"
	KindAlertPublisher              Kind = "alert_publisher"
)

// ConnectorRole distinguishes the two roles a Connector stage may play.
type ConnectorRole string

const (
	ConnectorRoleNone   ConnectorRole = ""
	ConnectorRoleSource ConnectorRole = "source"
	ConnectorRoleSink   ConnectorRole = "sink"
)

// Schema is an opaque per-input/output record schema. The engine never
// interprets it; it is threaded through to plugins and the plan loader.
type Schema map[string]any

// Port is a named output channel of a splitter stage.
type Port struct {
	Name string
}

// StageSpec is the per-stage contract of a validated plan.
type StageSpec struct {
	Name           string
	PluginType     Kind
	ConnectorRole  ConnectorRole
	PluginName     string
	InputSchemas   map[string]Schema
	OutputSchema   *Schema
	OutputPorts    map[string]Port // downstream stage name -> port
	PluginHandle   any
	Partitions     *int
	RequiredInputs []string // explicit BatchJoiner: declared required input stage names, in order
}

// InputOrder returns the declared input stage names in deterministic order:
// the order keys were inserted is not preserved by Go maps, so callers that
// need a stable order use this, which falls back to lexicographic.
func (s *StageSpec) InputOrder() []string {
	names := make([]string, 0, len(s.InputSchemas))
	for name := range s.InputSchemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DAG is the precomputed adjacency and topological order of a PipelinePlan.
type DAG struct {
	// Order is the stable topological order of stage names.
	Order []string
	// Downstream maps a stage to the stages it feeds, in deterministic order.
	Downstream map[string][]string
	// Upstream maps a stage to its declared input stage names, in
	// deterministic (lexicographic) order — the order observable anywhere
	// predecessor iteration order matters (union inputs, sink enqueue order).
	Upstream map[string][]string
}

// PipelinePlan is a frozen, validated DAG of stages.
type PipelinePlan struct {
	Stages  map[string]*StageSpec
	Sources map[string]bool
	Sinks   map[string]bool
	DAG     *DAG
}

// MalformedPipelineError reports a plan missing required structure.
type MalformedPipelineError struct {
	Reason string
}

func (e *MalformedPipelineError) Error() string {
	return fmt.Sprintf("malformed pipeline: %s", e.Reason)
}

// Build computes the DAG for a set of stages and returns a frozen
// PipelinePlan. Stage input names must themselves be keys of stages (this
// represents a single-phase plan; multi-phase plans are assembled by the
// caller stitching independently-built plans together, see engine.RunPipeline).
func Build(stages map[string]*StageSpec) (*PipelinePlan, error) {
	if len(stages) == 0 {
		return nil, &MalformedPipelineError{Reason: "no stages"}
	}

	downstream := make(map[string][]string, len(stages))
	upstream := make(map[string][]string, len(stages))
	inDegree := make(map[string]int, len(stages))

	for name := range stages {
		downstream[name] = nil
		upstream[name] = nil
		inDegree[name] = 0
	}

	for name, spec := range stages {
		ups := spec.InputOrder()
		for _, up := range ups {
			if _, ok := stages[up]; !ok {
				// Upstream not present in this plan: this is how multi-phase
				// pipelines tolerate cross-phase actions (spec.md §4.1, §9).
				continue
			}
			upstream[name] = append(upstream[name], up)
			downstream[up] = append(downstream[up], name)
			inDegree[name]++
		}
	}
	for _, downs := range downstream {
		sort.Strings(downs)
	}

	order, err := topoSort(stages, downstream, inDegree)
	if err != nil {
		return nil, err
	}

	sources := make(map[string]bool)
	sinks := make(map[string]bool)
	for name, spec := range stages {
		if len(upstream[name]) == 0 {
			sources[name] = true
		}
		if spec.PluginType == KindBatchSink || spec.PluginType == KindSparkSink ||
			(spec.PluginType == KindConnector && spec.ConnectorRole == ConnectorRoleSink) {
			sinks[name] = true
		}
	}
	if len(sources) == 0 {
		return nil, &MalformedPipelineError{Reason: "no source stage (every stage has an inbound edge)"}
	}

	return &PipelinePlan{
		Stages:  stages,
		Sources: sources,
		Sinks:   sinks,
		DAG: &DAG{
			Order:      order,
			Downstream: downstream,
			Upstream:   upstream,
		},
	}, nil
}

// topoSort computes a deterministic topological order via Kahn's algorithm,
// tie-breaking ready stages lexicographically by name so the same plan
// always yields the same dispatch order (spec.md §4.1 "Determinism").
func topoSort(stages map[string]*StageSpec, downstream map[string][]string, inDegree map[string]int) ([]string, error) {
	remaining := make(map[string]int, len(inDegree))
	for k, v := range inDegree {
		remaining[k] = v
	}

	ready := make([]string, 0)
	for name, deg := range remaining {
		if deg == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(stages))
	for len(ready) > 0 {
		sort.Strings(ready)
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		downs := append([]string(nil), downstream[next]...)
		sort.Strings(downs)
		for _, d := range downs {
			remaining[d]--
			if remaining[d] == 0 {
				ready = append(ready, d)
			}
		}
	}

	if len(order) != len(stages) {
		return nil, &MalformedPipelineError{Reason: "cycle detected in stage graph"}
	}
	return order, nil
}
