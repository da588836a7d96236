package sink_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batchpipe/engine/internal/pipeline/sink"
)

func TestQueue_EnqueueDuplicateStageErrors(t *testing.T) {
	q := sink.NewQueue()
	require.NoError(t, q.Enqueue("write", func(context.Context) error { return nil }))
	err := q.Enqueue("write", func(context.Context) error { return nil })
	assert.Error(t, err)
}

func TestFlush_RunsAllTasksSequentially(t *testing.T) {
	q := sink.NewQueue()
	var order []string
	var mu sync.Mutex
	for _, name := range []string{"c", "a", "b"} {
		name := name
		require.NoError(t, q.Enqueue(name, func(context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}))
	}

	err := sink.Flush(context.Background(), q, sink.Options{Concurrency: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, order)
}

func TestFlush_SequentialStopsAtFirstFailure(t *testing.T) {
	q := sink.NewQueue()
	boom := errors.New("disk full")
	var ranC atomic.Bool

	require.NoError(t, q.Enqueue("a", func(context.Context) error { return nil }))
	require.NoError(t, q.Enqueue("b", func(context.Context) error { return boom }))
	require.NoError(t, q.Enqueue("c", func(context.Context) error { ranC.Store(true); return nil }))

	err := sink.Flush(context.Background(), q, sink.Options{Concurrency: 1})
	require.Error(t, err)

	var failure *sink.Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "b", failure.Stage)
	assert.ErrorIs(t, err, boom)
	assert.False(t, ranC.Load())
}

func TestFlush_ConcurrentRunsAllTasks(t *testing.T) {
	q := sink.NewQueue()
	var count atomic.Int32
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(string(rune('a'+i)), func(context.Context) error {
			count.Add(1)
			return nil
		}))
	}

	err := sink.Flush(context.Background(), q, sink.Options{Concurrency: 3})
	require.NoError(t, err)
	assert.EqualValues(t, 5, count.Load())
}

func TestFlush_ConcurrentReportsFailure(t *testing.T) {
	q := sink.NewQueue()
	boom := errors.New("write failed")
	require.NoError(t, q.Enqueue("a", func(context.Context) error { return nil }))
	require.NoError(t, q.Enqueue("b", func(context.Context) error { return boom }))

	err := sink.Flush(context.Background(), q, sink.Options{Concurrency: 2})
	require.Error(t, err)

	var failure *sink.Failure
	require.ErrorAs(t, err, &failure)
	assert.Equal(t, "b", failure.Stage)
}

func TestFlush_EmptyQueueSucceeds(t *testing.T) {
	q := sink.NewQueue()
	assert.NoError(t, sink.Flush(context.Background(), q, sink.Options{}))
}
