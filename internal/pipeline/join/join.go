// Package join implements the Join Planner (spec.md §4.4): it drives both
// the explicit BatchJoiner pull-model API and the declarative AutoJoiner API
// down to the same KeyedCollection join primitives.
package join

import (
	"context"
	"fmt"
	"sort"

	"github.com/batchpipe/engine/internal/pipeline/collection"
	"github.com/batchpipe/engine/internal/pipeline/plan"
	"github.com/batchpipe/engine/internal/pipeline/plugin"
)

// UnsupportedJoinConditionError is returned when an AutoJoiner declares a
// condition the engine cannot plan.
type UnsupportedJoinConditionError struct {
	Stage string
	Op    plugin.JoinConditionOp
}

func (e *UnsupportedJoinConditionError) Error() string {
	return fmt.Sprintf("join: stage %q declared unsupported join condition %q", e.Stage, e.Op)
}

// UnknownJoinerTypeError is returned when a BatchJoiner stage's plugin
// handle implements neither BatchJoiner nor AutoJoiner.
type UnknownJoinerTypeError struct {
	Stage string
}

func (e *UnknownJoinerTypeError) Error() string {
	return fmt.Sprintf("join: stage %q plugin is neither a BatchJoiner nor an AutoJoiner", e.Stage)
}

// PlanExplicit drives the pull-model BatchJoiner API (spec.md §4.4 step 2):
// required inputs are inner-joined together in RequiredInputs order, then
// non-required inputs are merged in (full-outer if there were no required
// inputs, left-outer otherwise), and the result is flattened through
// MergeJoinResults and cached once.
func PlanExplicit(ctx context.Context, spec *plan.StageSpec, inputs map[string]collection.Collection, joiner plugin.BatchJoiner) (collection.Collection, error) {
	required := joiner.RequiredInputs()
	requiredSet := make(map[string]bool, len(required))
	for _, name := range required {
		requiredSet[name] = true
	}

	var nonRequired []string
	for name := range inputs {
		if !requiredSet[name] {
			nonRequired = append(nonRequired, name)
		}
	}
	sort.Strings(nonRequired)

	keyed := make(map[string]collection.KeyedCollection, len(inputs))
	for name, in := range inputs {
		kc, err := joiner.AddJoinKey(ctx, spec, name, in)
		if err != nil {
			return nil, fmt.Errorf("join: stage %q: adding join key for input %q: %w", spec.Name, name, err)
		}
		keyed[name] = kc
	}

	var acc collection.KeyedCollection
	for i, name := range required {
		if i == 0 {
			input := name
			acc = keyed[name].MapValues(func(v any) any {
				return joiner.InitialJoin(ctx, spec, input, v)
			})
			continue
		}

		joined, err := acc.Join(keyed[name], spec.Partitions)
		if err != nil {
			return nil, fmt.Errorf("join: stage %q: joining required input %q: %w", spec.Name, name, err)
		}
		input := name
		acc = joined.MapValues(func(v any) any {
			jv, ok := v.(collection.Joined)
			if !ok {
				return v
			}
			return joiner.JoinFlatten(ctx, spec, input, jv.Left, jv.Right)
		})
	}

	// With no required inputs every side is optional, so the whole merge is
	// full-outer; with at least one required input already joined, each
	// remaining non-required input merges in as left-outer so a missing
	// optional side never drops a row that satisfied every required input
	// (spec.md §4.4 step 4).
	hadRequired := acc != nil
	for i, name := range nonRequired {
		input := name
		if acc == nil {
			if i == 0 {
				acc = keyed[name].MapValues(func(v any) any {
					return joiner.InitialJoin(ctx, spec, input, v)
				})
				continue
			}
		}

		var joined collection.KeyedCollection
		var err error
		if hadRequired {
			joined, err = acc.LeftOuterJoin(keyed[name], spec.Partitions)
		} else {
			joined, err = acc.FullOuterJoin(keyed[name], spec.Partitions)
		}
		if err != nil {
			return nil, fmt.Errorf("join: stage %q: merging non-required input %q: %w", spec.Name, name, err)
		}
		acc = joined.MapValues(func(v any) any {
			jv, ok := v.(collection.Joined)
			if !ok {
				return v
			}
			return joiner.JoinFlatten(ctx, spec, input, jv.Left, jv.Right)
		})
	}

	if acc == nil {
		return nil, &plan.MalformedPipelineError{Reason: fmt.Sprintf("stage %q: join has no inputs", spec.Name)}
	}

	flattened := acc.Values(func(v any) any { return v })
	result := flattened.Map(func(v any) any {
		return joiner.MergeJoinResults(ctx, spec, v)
	})
	return result.Cache(), nil
}

// PlanAuto drives the declarative AutoJoiner API (spec.md §4.4 step 1): the
// joiner is asked to Define the join over the candidate inputs' schemas,
// broadcast sides are ordered last so the largest side plans as the join's
// left collection, and the resulting JoinRequest is handed to the left
// input's Collection.Join.
func PlanAuto(ctx context.Context, spec *plan.StageSpec, inputs map[string]collection.Collection, joiner plugin.AutoJoiner, schemas map[string]plan.Schema) (collection.Collection, error) {
	def, err := joiner.Define(ctx, plugin.JoinContext{Schemas: schemas})
	if err != nil {
		return nil, fmt.Errorf("join: stage %q: defining auto-join: %w", spec.Name, err)
	}
	if def.Condition.Op != plugin.KeyEquality {
		return nil, &UnsupportedJoinConditionError{Stage: spec.Name, Op: def.Condition.Op}
	}

	stages := append([]plugin.JoinStageRef(nil), def.Stages...)
	sort.SliceStable(stages, func(i, j int) bool { return !stages[i].Broadcast && stages[j].Broadcast })

	if len(stages) == 0 {
		return nil, &plan.MalformedPipelineError{Reason: fmt.Sprintf("stage %q: auto-join defined no inputs", spec.Name)}
	}

	left := stages[0]
	leftCollection, ok := inputs[left.StageName]
	if !ok {
		return nil, fmt.Errorf("join: stage %q: auto-join left input %q has no collection", spec.Name, left.StageName)
	}

	req := collection.JoinRequest{
		LeftStageName:  left.StageName,
		LeftKeys:       def.Condition.Keys[left.StageName],
		LeftRequired:   left.Required,
		NullSafe:       false,
		SelectedFields: def.SelectedFields,
		OutputSchema:   def.OutputSchema,
		Partitions:     spec.Partitions,
	}
	for _, ref := range stages[1:] {
		in, ok := inputs[ref.StageName]
		if !ok {
			return nil, fmt.Errorf("join: stage %q: auto-join input %q has no collection", spec.Name, ref.StageName)
		}
		req.Right = append(req.Right, collection.JoinCollection{
			StageName:  ref.StageName,
			Collection: in,
			Keys:       def.Condition.Keys[ref.StageName],
			Required:   ref.Required,
			Broadcast:  ref.Broadcast,
		})
	}

	result, err := leftCollection.Join(req)
	if err != nil {
		return nil, fmt.Errorf("join: stage %q: %w", spec.Name, err)
	}
	return result.Cache(), nil
}
