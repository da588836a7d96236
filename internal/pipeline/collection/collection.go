// Package collection defines the distributed-collection contract the engine
// consumes (spec.md §6) and a lazily-evaluated in-memory reference backend
// that implements it. Collections hold elements of type `any`: the engine
// never interprets record contents, only tags them (see package record).
package collection

import "context"

// SinkTask is a deferred action that materializes a collection into its
// target when run. Building one never moves data; only running it does
// (spec.md §4.7, "Deferred sinks").
type SinkTask func(ctx context.Context) error

// Collection is the functional operator surface the engine needs from the
// compute backend. All operations are lazy: they return a new handle without
// touching data.
type Collection interface {
	// Map applies fn to every element, producing a new collection.
	Map(fn func(any) any) Collection

	// FlatMap applies fn to every element, flattening and optionally
	// dropping elements (fn returning nil/empty means "filtered out").
	FlatMap(fn func(any) []any) Collection

	// Filter keeps only elements for which fn returns true.
	Filter(fn func(any) bool) Collection

	// Union concatenates this collection with others into one.
	Union(others ...Collection) Collection

	// Cache marks this collection for memoization so that multiple
	// downstream reads do not recompute it. Caching twice is a no-op
	// (spec.md §8 "Cache idempotence").
	Cache() Collection

	// KeyBy projects each element to a key, producing a keyed-pair
	// collection for join planning (spec.md §4.4 "add_join_key").
	KeyBy(fn func(any) any) KeyedCollection

	// Join performs the backend join described by req and returns the
	// resulting (unioned/merged) collection.
	Join(req JoinRequest) (Collection, error)

	// CreateStoreTask produces a deferred action that, when run, writes
	// this collection's elements via sinkFn.
	CreateStoreTask(sinkFn func(ctx context.Context, batch []any) error) SinkTask
}

// KeyedCollection is the keyed-pair flavor used by the join planner.
type KeyedCollection interface {
	// MapValues transforms the value half of each keyed pair.
	MapValues(fn func(any) any) KeyedCollection

	// Join performs an inner join against other.
	Join(other KeyedCollection, partitions *int) (KeyedCollection, error)

	// LeftOuterJoin performs a left-outer join against other.
	LeftOuterJoin(other KeyedCollection, partitions *int) (KeyedCollection, error)

	// FullOuterJoin performs a full-outer join against other.
	FullOuterJoin(other KeyedCollection, partitions *int) (KeyedCollection, error)

	// Values drops the key, returning a plain collection of values
	// (spec.md §4.4 "value-flatten").
	Values(flatten func(any) any) Collection
}

// JoinCollection is one right-hand side of a planned join (spec.md §3).
type JoinCollection struct {
	StageName  string
	Collection Collection
	Schema     map[string]any
	Keys       []string
	Required   bool
	Broadcast  bool
}

// JoinRequest is the fully-planned join handed to Collection.Join.
type JoinRequest struct {
	LeftStageName  string
	LeftKeys       []string
	LeftRequired   bool
	Right          []JoinCollection
	NullSafe       bool
	SelectedFields []string
	OutputSchema   map[string]any
	Partitions     *int
}
