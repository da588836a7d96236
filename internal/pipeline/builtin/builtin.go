// Package builtin registers a handful of general-purpose plugins with
// internal/pipeline/plugin's registry: an in-memory constant source, a
// passthrough transform, and a log sink. None of these model a real
// connector system; they exist so a plan document and the `enginectl`
// CLI have something runnable without a hand-written plugin binary,
// the same role the teacher's built-in "direct" relay profile plays as a
// zero-configuration default.
package builtin

import (
	"context"
	"log/slog"

	"github.com/batchpipe/engine/internal/pipeline/collection"
	"github.com/batchpipe/engine/internal/pipeline/plan"
	"github.com/batchpipe/engine/internal/pipeline/plugin"
	"github.com/batchpipe/engine/internal/pipeline/record"
)

func init() {
	plugin.Register(plan.KindSource, "constant", newConstantSource)
	plugin.Register(plan.KindTransform, "passthrough", newPassthroughTransform)
	plugin.Register(plan.KindBatchSink, "log", newLogSink)
}

// constantSource emits a fixed, configured slice of records. Useful for
// smoke-testing a plan document end to end without a real connector.
type constantSource struct {
	records []any
}

func newConstantSource(config map[string]any) (any, error) {
	raw, _ := config["records"].([]any)
	return constantSource{records: raw}, nil
}

func (s constantSource) GetSource(ctx context.Context, spec *plan.StageSpec) (collection.Collection, error) {
	tagged := make([]any, len(s.records))
	for i, v := range s.records {
		tagged[i] = record.Output(v)
	}
	return collection.FromSlice(tagged), nil
}

// passthroughTransform returns its input unchanged.
type passthroughTransform struct{}

func newPassthroughTransform(config map[string]any) (any, error) {
	return passthroughTransform{}, nil
}

func (passthroughTransform) Transform(ctx context.Context, spec *plan.StageSpec, in collection.Collection) (collection.Collection, error) {
	return in, nil
}

// logSink writes each batch to the given logger at info level. Useful as a
// default sink when a plan is run without a real storage connector
// configured.
type logSink struct {
	logger *slog.Logger
}

func newLogSink(config map[string]any) (any, error) {
	return logSink{logger: slog.Default()}, nil
}

func (s logSink) CreateStoreTask(ctx context.Context, spec *plan.StageSpec, in collection.Collection) (collection.SinkTask, error) {
	return in.CreateStoreTask(func(ctx context.Context, batch []any) error {
		s.logger.Info("sink received batch", slog.String("stage", spec.Name), slog.Int("count", len(batch)))
		for _, r := range batch {
			s.logger.Debug("record", slog.String("stage", spec.Name), slog.Any("value", r))
		}
		return nil
	}), nil
}
