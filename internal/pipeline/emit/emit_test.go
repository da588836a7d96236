package emit_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batchpipe/engine/internal/pipeline/collection"
	"github.com/batchpipe/engine/internal/pipeline/emit"
	"github.com/batchpipe/engine/internal/pipeline/record"
)

func materialize(t *testing.T, c collection.Collection) []any {
	t.Helper()
	if c == nil {
		return nil
	}
	var out []any
	task := c.CreateStoreTask(func(_ context.Context, batch []any) error {
		out = batch
		return nil
	})
	require.NoError(t, task(context.Background()))
	return out
}

func TestRoute_PlainOutput(t *testing.T) {
	combined := collection.FromSlice([]any{
		record.Output("a"),
		record.Output("b"),
	})
	rec := emit.Route(combined, emit.Options{})
	assert.Equal(t, []any{"a", "b"}, materialize(t, rec.Output))
	assert.Nil(t, rec.Errors)
	assert.Nil(t, rec.Alerts)
	assert.Nil(t, rec.OutputPorts)
}

func TestRoute_ErrorsSeparatedFromOutput(t *testing.T) {
	errRec := record.ErrorRecord{Stage: "parse", Message: "bad input"}
	combined := collection.FromSlice([]any{
		record.Output("ok"),
		record.Error(errRec),
	})
	rec := emit.Route(combined, emit.Options{NeedsErrors: true})

	assert.Equal(t, []any{"ok"}, materialize(t, rec.Output))
	errs := materialize(t, rec.Errors)
	require.Len(t, errs, 1)
	assert.Equal(t, errRec, errs[0])
}

func TestRoute_AlertsSeparatedFromOutput(t *testing.T) {
	alert := record.Alert{Stage: "sink", Level: "warn", Message: "slow"}
	combined := collection.FromSlice([]any{
		record.Output("ok"),
		record.NewAlert(alert),
	})
	rec := emit.Route(combined, emit.Options{NeedsAlerts: true})

	assert.Equal(t, []any{"ok"}, materialize(t, rec.Output))
	alerts := materialize(t, rec.Alerts)
	require.Len(t, alerts, 1)
	assert.Equal(t, alert, alerts[0])
}

func TestRoute_MultiplePorts(t *testing.T) {
	combined := collection.FromSlice([]any{
		record.PortOutput("even", 2),
		record.PortOutput("odd", 1),
		record.PortOutput("even", 4),
	})
	rec := emit.Route(combined, emit.Options{Ports: []string{"even", "odd"}})

	require.NotNil(t, rec.OutputPorts)
	assert.Equal(t, []any{2, 4}, materialize(t, rec.OutputPorts["even"]))
	assert.Equal(t, []any{1}, materialize(t, rec.OutputPorts["odd"]))
	assert.Nil(t, rec.Output)
}

func TestRoute_SinglePortStillRoutesByPort(t *testing.T) {
	combined := collection.FromSlice([]any{
		record.PortOutput("only", "x"),
	})
	rec := emit.Route(combined, emit.Options{Ports: []string{"only"}})
	assert.Equal(t, []any{"x"}, materialize(t, rec.OutputPorts["only"]))
}

func TestCacheIfNeeded_NoopWhenFalse(t *testing.T) {
	rec := emit.Route(collection.FromSlice([]any{record.Output(1)}), emit.Options{})
	out := emit.CacheIfNeeded(rec, false)
	assert.Equal(t, []any{1}, materialize(t, out.Output))
}

func TestCacheIfNeeded_CachesAllSubStreams(t *testing.T) {
	combined := collection.FromSlice([]any{
		record.Output("a"),
		record.Error(record.ErrorRecord{Message: "e"}),
		record.NewAlert(record.Alert{Message: "a"}),
	})
	rec := emit.Route(combined, emit.Options{NeedsErrors: true, NeedsAlerts: true})
	cached := emit.CacheIfNeeded(rec, true)

	assert.Equal(t, []any{"a"}, materialize(t, cached.Output))
	require.Len(t, materialize(t, cached.Errors), 1)
	require.Len(t, materialize(t, cached.Alerts), 1)
}
