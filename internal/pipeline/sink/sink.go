// Package sink implements the Sink Scheduler (spec.md §4.7): it runs the
// deferred SinkTasks a pipeline queued during DAG traversal, bounded to a
// configurable worker count, and reports the first failure in enqueue order.
package sink

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/batchpipe/engine/internal/pipeline/collection"
)

// entry is one enqueued sink task, kept alongside its stage name so Flush
// can run tasks in true enqueue order rather than a derived one.
type entry struct {
	stage string
	task  collection.SinkTask
}

// Queue holds the deferred SinkTasks collected for one run, in the order
// they were enqueued.
type Queue struct {
	seen    map[string]struct{}
	entries []entry
}

// NewQueue creates an empty sink queue.
func NewQueue() *Queue {
	return &Queue{seen: make(map[string]struct{})}
}

// Enqueue registers stage's deferred store action. Enqueuing the same
// stage twice is a programming bug.
func (q *Queue) Enqueue(stage string, task collection.SinkTask) error {
	if _, ok := q.seen[stage]; ok {
		return fmt.Errorf("sink: stage %q already enqueued", stage)
	}
	q.seen[stage] = struct{}{}
	q.entries = append(q.entries, entry{stage: stage, task: task})
	return nil
}

// Failure wraps the stage name a sink task failed under.
type Failure struct {
	Stage string
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("sink: stage %q: %v", f.Stage, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Options configures the flush.
type Options struct {
	// Concurrency is the maximum number of sink tasks run at once. Values
	// <= 1 run all tasks sequentially in enqueue order.
	Concurrency int
	Logger      *slog.Logger
}

// Flush runs every queued sink task in the order it was enqueued. With
// Concurrency > 1 tasks run in a bounded worker pool; once one fails, no
// further task is started and the context passed to the tasks still
// running is cancelled. The failure of the earliest-enqueued failing task,
// wrapped in Failure, is returned, even if a later task failed first.
func Flush(ctx context.Context, q *Queue, opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if opts.Concurrency <= 1 {
		for _, e := range q.entries {
			logger.Debug("running sink task", slog.String("stage", e.stage))
			if err := e.task(ctx); err != nil {
				return &Failure{Stage: e.stage, Err: err}
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)

	failures := make([]error, len(q.entries))
	for i, e := range q.entries {
		if gctx.Err() != nil {
			break
		}
		i, e := i, e
		g.Go(func() error {
			logger.Debug("running sink task", slog.String("stage", e.stage))
			if err := e.task(gctx); err != nil {
				failures[i] = &Failure{Stage: e.stage, Err: err}
				return failures[i]
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		for _, f := range failures {
			if f != nil {
				return f
			}
		}
	}
	return ctx.Err()
}
