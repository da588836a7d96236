package collection_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batchpipe/engine/internal/pipeline/collection"
)

func values(t *testing.T, c collection.Collection) []any {
	t.Helper()
	var out []any
	task := c.CreateStoreTask(func(_ context.Context, batch []any) error {
		out = batch
		return nil
	})
	require.NoError(t, task(context.Background()))
	return out
}

func TestFromSlice_Map(t *testing.T) {
	c := collection.FromSlice([]any{1, 2, 3})
	doubled := c.Map(func(v any) any { return v.(int) * 2 })
	assert.Equal(t, []any{2, 4, 6}, values(t, doubled))
}

func TestFlatMap_DropsFilteredElements(t *testing.T) {
	c := collection.FromSlice([]any{1, 2, 3, 4})
	evens := c.FlatMap(func(v any) []any {
		if v.(int)%2 == 0 {
			return []any{v}
		}
		return nil
	})
	assert.Equal(t, []any{2, 4}, values(t, evens))
}

func TestFilter(t *testing.T) {
	c := collection.FromSlice([]any{1, 2, 3, 4, 5})
	odds := c.Filter(func(v any) bool { return v.(int)%2 != 0 })
	assert.Equal(t, []any{1, 3, 5}, values(t, odds))
}

func TestUnion(t *testing.T) {
	a := collection.FromSlice([]any{1, 2})
	b := collection.FromSlice([]any{3, 4})
	union := a.Union(b)
	assert.ElementsMatch(t, []any{1, 2, 3, 4}, values(t, union))
}

func TestCache_ComputesOnce(t *testing.T) {
	calls := 0
	c := collection.FromFunc(func(context.Context) ([]any, error) {
		calls++
		return []any{"a"}, nil
	}).Cache()

	task1 := c.CreateStoreTask(func(context.Context, []any) error { return nil })
	task2 := c.CreateStoreTask(func(context.Context, []any) error { return nil })
	require.NoError(t, task1(context.Background()))
	require.NoError(t, task2(context.Background()))

	assert.Equal(t, 1, calls)
}

func TestCache_Idempotent(t *testing.T) {
	c := collection.FromSlice([]any{1})
	cached := c.Cache()
	assert.Same(t, cached, cached.Cache())
}

func TestKeyBy_InnerJoin(t *testing.T) {
	left := collection.FromSlice([]any{
		map[string]any{"id": 1, "name": "a"},
		map[string]any{"id": 2, "name": "b"},
	}).KeyBy(func(v any) any { return v.(map[string]any)["id"] })

	right := collection.FromSlice([]any{
		map[string]any{"id": 1, "score": 10},
	}).KeyBy(func(v any) any { return v.(map[string]any)["id"] })

	joined, err := left.Join(right, nil)
	require.NoError(t, err)

	out := joined.Values(nil)
	results := values(t, out)
	require.Len(t, results, 1)
	joinedVal := results[0].(collection.Joined)
	assert.True(t, joinedVal.HasLeft)
	assert.True(t, joinedVal.HasRight)
}

func TestKeyBy_LeftOuterJoin(t *testing.T) {
	left := collection.FromSlice([]any{
		map[string]any{"id": 1},
		map[string]any{"id": 2},
	}).KeyBy(func(v any) any { return v.(map[string]any)["id"] })

	right := collection.FromSlice([]any{
		map[string]any{"id": 1},
	}).KeyBy(func(v any) any { return v.(map[string]any)["id"] })

	joined, err := left.LeftOuterJoin(right, nil)
	require.NoError(t, err)

	results := values(t, joined.Values(nil))
	require.Len(t, results, 2)

	var unmatched int
	for _, r := range results {
		j := r.(collection.Joined)
		if !j.HasRight {
			unmatched++
		}
	}
	assert.Equal(t, 1, unmatched)
}

func TestKeyBy_FullOuterJoin(t *testing.T) {
	left := collection.FromSlice([]any{
		map[string]any{"id": 1},
	}).KeyBy(func(v any) any { return v.(map[string]any)["id"] })

	right := collection.FromSlice([]any{
		map[string]any{"id": 2},
	}).KeyBy(func(v any) any { return v.(map[string]any)["id"] })

	joined, err := left.FullOuterJoin(right, nil)
	require.NoError(t, err)

	results := values(t, joined.Values(nil))
	require.Len(t, results, 2)
}

func TestCollection_Join_RequiredSideDropsUnmatched(t *testing.T) {
	left := collection.FromSlice([]any{
		map[string]any{"id": 1},
		map[string]any{"id": 2},
	})
	right := collection.FromSlice([]any{
		map[string]any{"id": 1},
	})

	joined, err := left.Join(collection.JoinRequest{
		LeftKeys: []string{"id"},
		Right: []collection.JoinCollection{
			{StageName: "right", Collection: right, Keys: []string{"id"}, Required: true},
		},
	})
	require.NoError(t, err)
	assert.Len(t, values(t, joined), 1)
}

func TestCollection_Join_OptionalSideKeepsUnmatched(t *testing.T) {
	left := collection.FromSlice([]any{
		map[string]any{"id": 1},
		map[string]any{"id": 2},
	})
	right := collection.FromSlice([]any{
		map[string]any{"id": 1},
	})

	joined, err := left.Join(collection.JoinRequest{
		LeftKeys: []string{"id"},
		Right: []collection.JoinCollection{
			{StageName: "right", Collection: right, Keys: []string{"id"}, Required: false},
		},
	})
	require.NoError(t, err)
	assert.Len(t, values(t, joined), 2)
}

func TestCreateStoreTask_PropagatesComputeError(t *testing.T) {
	boom := assert.AnError
	c := collection.FromFunc(func(context.Context) ([]any, error) { return nil, boom })
	task := c.CreateStoreTask(func(context.Context, []any) error { return nil })
	assert.ErrorIs(t, task(context.Background()), boom)
}

func TestCreateStoreTask_InvokesSinkFn(t *testing.T) {
	c := collection.FromSlice([]any{1, 2, 3})
	var got []any
	task := c.CreateStoreTask(func(_ context.Context, batch []any) error {
		got = batch
		return nil
	})
	require.NoError(t, task(context.Background()))
	assert.Equal(t, []any{1, 2, 3}, got)
}
