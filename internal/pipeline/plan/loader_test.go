package plan_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/batchpipe/engine/internal/pipeline/collection"
	"github.com/batchpipe/engine/internal/pipeline/plan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct{ name string }

func (s stubSource) GetSource(ctx context.Context, spec *plan.StageSpec) (collection.Collection, error) {
	return collection.FromSlice([]any{s.name}), nil
}

type stubSink struct{}

func (stubSink) CreateStoreTask(ctx context.Context, spec *plan.StageSpec, in collection.Collection) (collection.SinkTask, error) {
	return func(ctx context.Context) error { return nil }, nil
}

func fakeFactory(kind plan.Kind, pluginName string, config map[string]any) (any, error) {
	switch kind {
	case plan.KindSource:
		return stubSource{name: pluginName}, nil
	case plan.KindBatchSink:
		return stubSink{}, nil
	default:
		return nil, fmt.Errorf("unhandled plugin kind in test: %s", kind)
	}
}

func TestLoad_BuildsPlan(t *testing.T) {
	doc := []byte(`
stages:
  - name: read-orders
    type: source
    plugin: orders-csv
  - name: write-orders
    type: batch_sink
    plugin: orders-db
    inputs: [read-orders]
`)

	p, err := plan.Load(doc, fakeFactory)
	require.NoError(t, err)
	require.NotNil(t, p)

	assert.Equal(t, []string{"read-orders", "write-orders"}, p.DAG.Order)
	assert.True(t, p.Sources["read-orders"])
	assert.True(t, p.Sinks["write-orders"])

	source := p.Stages["read-orders"]
	require.NotNil(t, source)
	_, ok := source.PluginHandle.(stubSource)
	assert.True(t, ok)
}

func TestLoad_EmptyDocument(t *testing.T) {
	_, err := plan.Load([]byte(`stages: []`), fakeFactory)
	require.Error(t, err)
	var malformed *plan.MalformedPipelineError
	assert.ErrorAs(t, err, &malformed)
}

func TestLoad_DuplicateStageName(t *testing.T) {
	doc := []byte(`
stages:
  - name: read-orders
    type: source
    plugin: orders-csv
  - name: read-orders
    type: source
    plugin: orders-csv-2
`)
	_, err := plan.Load(doc, fakeFactory)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate stage name")
}

func TestLoad_UnresolvablePlugin(t *testing.T) {
	doc := []byte(`
stages:
  - name: compute
    type: spark_compute
    plugin: whatever
`)
	_, err := plan.Load(doc, fakeFactory)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolving plugin")
}

func TestLoad_OutputPorts(t *testing.T) {
	doc := []byte(`
stages:
  - name: read-orders
    type: source
    plugin: orders-csv
  - name: split-orders
    type: splitter_transform
    plugin: by-region
    inputs: [read-orders]
    output_ports:
      write-west: west
      write-east: east
  - name: write-west
    type: batch_sink
    plugin: west-db
    inputs: [split-orders]
  - name: write-east
    type: batch_sink
    plugin: east-db
    inputs: [split-orders]
`)

	factory := func(kind plan.Kind, pluginName string, config map[string]any) (any, error) {
		switch kind {
		case plan.KindSource:
			return stubSource{name: pluginName}, nil
		case plan.KindBatchSink:
			return stubSink{}, nil
		case plan.KindSplitterTransform:
			return struct{}{}, nil
		default:
			return nil, fmt.Errorf("unhandled plugin kind in test: %s", kind)
		}
	}

	p, err := plan.Load(doc, factory)
	require.NoError(t, err)

	split := p.Stages["split-orders"]
	require.NotNil(t, split)
	require.Len(t, split.OutputPorts, 2)
	assert.Equal(t, "west", split.OutputPorts["write-west"].Name)
	assert.Equal(t, "east", split.OutputPorts["write-east"].Name)
}
