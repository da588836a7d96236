// Package integration exercises plan.Load and engine.RunPipeline together,
// end to end, against the built-in plugins rather than fakes.
package integration_test

import (
	"context"
	"sync"
	"testing"
	"time"

	_ "github.com/batchpipe/engine/internal/pipeline/builtin"
	"github.com/batchpipe/engine/internal/pipeline/collection"
	"github.com/batchpipe/engine/internal/pipeline/engine"
	"github.com/batchpipe/engine/internal/pipeline/plan"
	"github.com/batchpipe/engine/internal/pipeline/plugin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureSink records every batch handed to it, so a test can assert on
// what actually reached the end of a run without a real storage connector.
type captureSink struct {
	mu  *sync.Mutex
	out *[]any
}

func (s captureSink) CreateStoreTask(ctx context.Context, spec *plan.StageSpec, in collection.Collection) (collection.SinkTask, error) {
	return in.CreateStoreTask(func(_ context.Context, batch []any) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		*s.out = append(*s.out, batch...)
		return nil
	}), nil
}

func TestEndToEnd_SourceTransformSink(t *testing.T) {
	var captured []any
	var mu sync.Mutex
	plugin.Register(plan.KindBatchSink, "capture-e2e-linear", func(config map[string]any) (any, error) {
		return captureSink{mu: &mu, out: &captured}, nil
	})

	doc := []byte(`
stages:
  - name: read
    type: source
    plugin: constant
    config:
      records: ["alpha", "beta", "gamma"]
  - name: pass
    type: transform
    plugin: passthrough
    inputs: [read]
  - name: write
    type: batch_sink
    plugin: capture-e2e-linear
    inputs: [pass]
`)

	p, err := plan.Load(doc, plugin.Factory)
	require.NoError(t, err)

	var stagesRun []string
	err = engine.RunPipeline(context.Background(), p, engine.RunOptions{
		OnStage: func(stage string, kind plan.Kind, dur time.Duration, stageErr error) {
			stagesRun = append(stagesRun, stage)
			assert.NoError(t, stageErr)
		},
	})
	require.NoError(t, err)

	assert.ElementsMatch(t, []any{"alpha", "beta", "gamma"}, captured)
	assert.Equal(t, []string{"read", "pass", "write"}, stagesRun)
}

func TestEndToEnd_FanOutSharedSourceCachesOnce(t *testing.T) {
	var computeCount int
	var mu sync.Mutex
	plugin.Register(plan.KindSource, "counting-source-e2e", func(config map[string]any) (any, error) {
		return countingSource{mu: &mu, count: &computeCount}, nil
	})

	var sinkA, sinkB []any
	var outMu sync.Mutex
	plugin.Register(plan.KindBatchSink, "capture-e2e-a", func(config map[string]any) (any, error) {
		return captureSink{mu: &outMu, out: &sinkA}, nil
	})
	plugin.Register(plan.KindBatchSink, "capture-e2e-b", func(config map[string]any) (any, error) {
		return captureSink{mu: &outMu, out: &sinkB}, nil
	})

	doc := []byte(`
stages:
  - name: read
    type: source
    plugin: counting-source-e2e
  - name: write-a
    type: batch_sink
    plugin: capture-e2e-a
    inputs: [read]
  - name: write-b
    type: batch_sink
    plugin: capture-e2e-b
    inputs: [read]
`)

	p, err := plan.Load(doc, plugin.Factory)
	require.NoError(t, err)

	err = engine.RunPipeline(context.Background(), p, engine.RunOptions{SinkConcurrency: 2})
	require.NoError(t, err)

	assert.ElementsMatch(t, []any{"x", "y"}, sinkA)
	assert.ElementsMatch(t, []any{"x", "y"}, sinkB)
	assert.Equal(t, 1, computeCount, "a source feeding two sinks must be cached and computed once")
}

// countingSource increments a shared counter each time its underlying
// collection is materialized, so TestEndToEnd_FanOutSharedSourceCachesOnce
// can assert the cache policy actually prevents recomputation on fan-out.
type countingSource struct {
	mu    *sync.Mutex
	count *int
}

func (s countingSource) GetSource(ctx context.Context, spec *plan.StageSpec) (collection.Collection, error) {
	base := collection.FromSlice([]any{"x", "y"})
	return base.Map(func(v any) any {
		if v == "x" {
			s.mu.Lock()
			*s.count++
			s.mu.Unlock()
		}
		return v
	}), nil
}
