// Package cache implements the caching/materialization policy that avoids
// recomputation under fan-out (spec.md §4.5).
package cache

import "github.com/batchpipe/engine/internal/pipeline/plan"

// ShouldCache decides whether a stage's output collection should be cached
// before being handed to downstream stages.
//
// True when the stage fans out to more than one downstream stage, or when
// any downstream stage has more than one input (that downstream's union
// merge would otherwise recompute this stage once per union operand).
// Stage cost is deliberately ignored (spec.md §9 Open Questions).
func ShouldCache(stage string, dag *plan.DAG) bool {
	downs := dag.Downstream[stage]
	if len(downs) > 1 {
		return true
	}
	for _, d := range downs {
		if len(dag.Upstream[d]) > 1 {
			return true
		}
	}
	return false
}
