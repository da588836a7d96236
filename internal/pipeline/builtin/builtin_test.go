package builtin_test

import (
	"context"
	"testing"

	_ "github.com/batchpipe/engine/internal/pipeline/builtin"
	"github.com/batchpipe/engine/internal/pipeline/collection"
	"github.com/batchpipe/engine/internal/pipeline/plan"
	"github.com/batchpipe/engine/internal/pipeline/plugin"
	"github.com/batchpipe/engine/internal/pipeline/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstantSource(t *testing.T) {
	handle, err := plugin.Factory(plan.KindSource, "constant", map[string]any{
		"records": []any{"a", "b", "c"},
	})
	require.NoError(t, err)

	source, ok := handle.(plugin.Source)
	require.True(t, ok)

	out, err := source.GetSource(context.Background(), &plan.StageSpec{Name: "read"})
	require.NoError(t, err)

	var collected []any
	out.CreateStoreTask(func(ctx context.Context, batch []any) error {
		collected = append(collected, batch...)
		return nil
	})(context.Background())

	require.Len(t, collected, 3)
	var values []any
	for _, c := range collected {
		info, ok := c.(record.Info)
		require.True(t, ok, "constant source must emit tagged record.Info values")
		v, ok := info.AsOutput()
		require.True(t, ok)
		values = append(values, v)
	}
	assert.Equal(t, []any{"a", "b", "c"}, values)
}

func TestPassthroughTransform(t *testing.T) {
	handle, err := plugin.Factory(plan.KindTransform, "passthrough", nil)
	require.NoError(t, err)

	transform, ok := handle.(plugin.Transform)
	require.True(t, ok)

	in := collection.FromSlice([]any{1, 2, 3})
	out, err := transform.Transform(context.Background(), &plan.StageSpec{Name: "noop"}, in)
	require.NoError(t, err)
	assert.Same(t, in, out)
}

func TestLogSink(t *testing.T) {
	handle, err := plugin.Factory(plan.KindBatchSink, "log", nil)
	require.NoError(t, err)

	sink, ok := handle.(plugin.Sink)
	require.True(t, ok)

	in := collection.FromSlice([]any{"x", "y"})
	task, err := sink.CreateStoreTask(context.Background(), &plan.StageSpec{Name: "write"}, in)
	require.NoError(t, err)
	require.NoError(t, task(context.Background()))
}
