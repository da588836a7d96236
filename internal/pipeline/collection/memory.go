package collection

import (
	"context"
	"fmt"
	"sync"
)

// memCollection is a lazily-evaluated, single-process reference
// implementation of Collection. It is the default backend used by tests and
// by cmd/enginectl when no cluster backend is configured; a distributed
// implementation would satisfy the same interface without changing anything
// in the engine (spec.md §6).
type memCollection struct {
	compute func(ctx context.Context) ([]any, error)

	once   sync.Once
	cached []any
	cErr   error
	memoize bool
}

// FromSlice builds a Collection whose elements are the given slice. Useful
// for sources and for tests.
func FromSlice(items []any) Collection {
	cp := append([]any(nil), items...)
	return &memCollection{compute: func(context.Context) ([]any, error) { return cp, nil }}
}

// FromFunc builds a Collection whose elements are produced lazily by fn.
// fn is not invoked until a SinkTask reading the collection (directly or
// through collections derived from it) is run; calling Cache alone does
// not invoke it.
func FromFunc(fn func(ctx context.Context) ([]any, error)) Collection {
	return &memCollection{compute: fn}
}

func (c *memCollection) materialize(ctx context.Context) ([]any, error) {
	if !c.memoize {
		return c.compute(ctx)
	}
	c.once.Do(func() {
		c.cached, c.cErr = c.compute(ctx)
	})
	return c.cached, c.cErr
}

func (c *memCollection) Map(fn func(any) any) Collection {
	return &memCollection{compute: func(ctx context.Context) ([]any, error) {
		items, err := c.materialize(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]any, len(items))
		for i, it := range items {
			out[i] = fn(it)
		}
		return out, nil
	}}
}

func (c *memCollection) FlatMap(fn func(any) []any) Collection {
	return &memCollection{compute: func(ctx context.Context) ([]any, error) {
		items, err := c.materialize(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, len(items))
		for _, it := range items {
			out = append(out, fn(it)...)
		}
		return out, nil
	}}
}

func (c *memCollection) Filter(fn func(any) bool) Collection {
	return c.FlatMap(func(v any) []any {
		if fn(v) {
			return []any{v}
		}
		return nil
	})
}

func (c *memCollection) Union(others ...Collection) Collection {
	all := append([]Collection{c}, others...)
	return &memCollection{compute: func(ctx context.Context) ([]any, error) {
		var out []any
		for _, other := range all {
			mc, ok := other.(*memCollection)
			if !ok {
				return nil, fmt.Errorf("collection: Union requires same backend type")
			}
			items, err := mc.materialize(ctx)
			if err != nil {
				return nil, err
			}
			out = append(out, items...)
		}
		return out, nil
	}}
}

// Cache marks the collection so its upstream compute chain runs exactly
// once no matter how many downstream consumers read it (spec.md §8 "Cache
// idempotence" — calling Cache again on an already-cached collection
// returns the same memoized handle).
func (c *memCollection) Cache() Collection {
	if c.memoize {
		return c
	}
	return &memCollection{compute: c.compute, memoize: true}
}

func (c *memCollection) KeyBy(fn func(any) any) KeyedCollection {
	return &memKeyed{compute: func(ctx context.Context) ([]pair, error) {
		items, err := c.materialize(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]pair, len(items))
		for i, it := range items {
			out[i] = pair{key: fn(it), value: it}
		}
		return out, nil
	}}
}

func (c *memCollection) Join(req JoinRequest) (Collection, error) {
	return planMemoryJoin(c, req)
}

func (c *memCollection) CreateStoreTask(sinkFn func(ctx context.Context, batch []any) error) SinkTask {
	return func(ctx context.Context) error {
		items, err := c.materialize(ctx)
		if err != nil {
			return err
		}
		return sinkFn(ctx, items)
	}
}

// pair is a key/value element of a KeyedCollection.
type pair struct {
	key   any
	value any
}

type memKeyed struct {
	compute func(ctx context.Context) ([]pair, error)
}

func (k *memKeyed) materialize(ctx context.Context) ([]pair, error) { return k.compute(ctx) }

func (k *memKeyed) MapValues(fn func(any) any) KeyedCollection {
	return &memKeyed{compute: func(ctx context.Context) ([]pair, error) {
		items, err := k.materialize(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]pair, len(items))
		for i, p := range items {
			out[i] = pair{key: p.key, value: fn(p.value)}
		}
		return out, nil
	}}
}

func (k *memKeyed) Values(flatten func(any) any) Collection {
	return &memCollection{compute: func(ctx context.Context) ([]any, error) {
		items, err := k.materialize(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]any, len(items))
		for i, p := range items {
			if flatten != nil {
				out[i] = flatten(p.value)
			} else {
				out[i] = p.value
			}
		}
		return out, nil
	}}
}

func (k *memKeyed) Join(other KeyedCollection, _ *int) (KeyedCollection, error) {
	return keyedJoin(k, other, joinInner)
}

func (k *memKeyed) LeftOuterJoin(other KeyedCollection, _ *int) (KeyedCollection, error) {
	return keyedJoin(k, other, joinLeftOuter)
}

func (k *memKeyed) FullOuterJoin(other KeyedCollection, _ *int) (KeyedCollection, error) {
	return keyedJoin(k, other, joinFullOuter)
}

type joinMode int

const (
	joinInner joinMode = iota
	joinLeftOuter
	joinFullOuter
)

// Joined holds one side of a join result before value-flattening; the
// join planner's flatten callback decides how to combine Left/Right.
type Joined struct {
	Left    any
	Right   any
	HasLeft bool
	HasRight bool
}

func keyedJoin(left, right KeyedCollection, mode joinMode) (KeyedCollection, error) {
	lk, ok := left.(*memKeyed)
	if !ok {
		return nil, fmt.Errorf("collection: join requires same backend type")
	}
	rk, ok := right.(*memKeyed)
	if !ok {
		return nil, fmt.Errorf("collection: join requires same backend type")
	}
	return &memKeyed{compute: func(ctx context.Context) ([]pair, error) {
		lItems, err := lk.materialize(ctx)
		if err != nil {
			return nil, err
		}
		rItems, err := rk.materialize(ctx)
		if err != nil {
			return nil, err
		}

		rByKey := make(map[any][]any)
		for _, p := range rItems {
			rByKey[p.key] = append(rByKey[p.key], p.value)
		}
		matchedKeys := make(map[any]bool)

		var out []pair
		for _, lp := range lItems {
			matches, found := rByKey[lp.key]
			if found {
				matchedKeys[lp.key] = true
				for _, rv := range matches {
					out = append(out, pair{key: lp.key, value: Joined{Left: lp.value, HasLeft: true, Right: rv, HasRight: true}})
				}
				continue
			}
			if mode == joinLeftOuter || mode == joinFullOuter {
				out = append(out, pair{key: lp.key, value: Joined{Left: lp.value, HasLeft: true}})
			}
		}
		if mode == joinFullOuter {
			for _, rp := range rItems {
				if matchedKeys[rp.key] {
					continue
				}
				out = append(out, pair{key: rp.key, value: Joined{Right: rp.value, HasRight: true}})
			}
		}
		return out, nil
	}}, nil
}
