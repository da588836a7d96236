package record_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/batchpipe/engine/internal/pipeline/record"
)

func TestOutput(t *testing.T) {
	info := record.Output("hello")
	assert.Equal(t, record.KindOutput, info.Kind())

	v, ok := info.AsOutput()
	assert.True(t, ok)
	assert.Equal(t, "hello", v)

	_, ok = info.AsPort()
	assert.False(t, ok)
	_, ok = info.AsError()
	assert.False(t, ok)
	_, ok = info.AsAlert()
	assert.False(t, ok)
}

func TestPortOutput(t *testing.T) {
	info := record.PortOutput("errors", 42)
	assert.Equal(t, record.KindPort, info.Kind())

	port, v, ok := info.AsPort()
	assert.True(t, ok)
	assert.Equal(t, "errors", port)
	assert.Equal(t, 42, v)

	_, ok = info.AsOutput()
	assert.False(t, ok)
}

func TestError(t *testing.T) {
	wrapped := errors.New("boom")
	info := record.Error(record.ErrorRecord{
		Input:   "bad-row",
		Stage:   "parse",
		Code:    "E001",
		Message: "could not parse",
		Err:     wrapped,
	})
	assert.Equal(t, record.KindError, info.Kind())

	e, ok := info.AsError()
	assert.True(t, ok)
	assert.Equal(t, "bad-row", e.Input)
	assert.Equal(t, "parse", e.Stage)
	assert.Equal(t, wrapped.Error(), e.Error())
}

func TestErrorRecord_ErrorFallsBackToMessage(t *testing.T) {
	e := record.ErrorRecord{Message: "no underlying error"}
	assert.Equal(t, "no underlying error", e.Error())
}

func TestNewAlert(t *testing.T) {
	info := record.NewAlert(record.Alert{Stage: "sink", Level: "warn", Message: "disk almost full"})
	assert.Equal(t, record.KindAlert, info.Kind())

	a, ok := info.AsAlert()
	assert.True(t, ok)
	assert.Equal(t, "sink", a.Stage)
	assert.Equal(t, "warn", a.Level)
}

func TestKind_String(t *testing.T) {
	cases := map[record.Kind]string{
		record.KindOutput: "output",
		record.KindPort:   "port",
		record.KindError:  "error",
		record.KindAlert:  "alert",
		record.Kind(99):   "unknown",
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.String())
	}
}
