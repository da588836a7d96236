package collection

import (
	"context"
	"fmt"
)

// planMemoryJoin implements the generic Collection.Join entry point used by
// the declarative AutoJoiner path (spec.md §4.4 step 6: "invoke
// left_collection.join(request)"). It performs a left-preserving sequential
// join across req.Right: required sides use inner semantics (no match drops
// the row), non-required sides use left-outer semantics. Records must be
// map[string]any so the backend can read the fields named by each side's
// Keys — this reference backend has no schema to consult, unlike a real
// columnar engine.
func planMemoryJoin(left *memCollection, req JoinRequest) (Collection, error) {
	return &memCollection{compute: func(ctx context.Context) ([]any, error) {
		leftItems, err := left.materialize(ctx)
		if err != nil {
			return nil, err
		}

		type accumulated struct {
			key   any
			parts []any
		}

		current := make([]accumulated, 0, len(leftItems))
		for _, item := range leftItems {
			k, err := compositeKey(item, req.LeftKeys)
			if err != nil {
				return nil, err
			}
			current = append(current, accumulated{key: k, parts: []any{item}})
		}

		for _, right := range req.Right {
			rightItems, err := materializeAny(ctx, right.Collection)
			if err != nil {
				return nil, err
			}
			byKey := make(map[any][]any, len(rightItems))
			for _, item := range rightItems {
				k, err := compositeKey(item, right.Keys)
				if err != nil {
					return nil, err
				}
				byKey[k] = append(byKey[k], item)
			}

			next := make([]accumulated, 0, len(current))
			for _, cur := range current {
				matches, ok := byKey[cur.key]
				switch {
				case ok:
					for _, rv := range matches {
						parts := append(append([]any(nil), cur.parts...), rv)
						next = append(next, accumulated{key: cur.key, parts: parts})
					}
				case !right.Required:
					parts := append(append([]any(nil), cur.parts...), nil)
					next = append(next, accumulated{key: cur.key, parts: parts})
				}
			}
			current = next
		}

		out := make([]any, len(current))
		for i, c := range current {
			out[i] = map[string]any{"_joined": c.parts}
		}
		return out, nil
	}}, nil
}

func materializeAny(ctx context.Context, c Collection) ([]any, error) {
	mc, ok := c.(*memCollection)
	if !ok {
		return nil, fmt.Errorf("collection: join requires same backend type, got %T", c)
	}
	return mc.materialize(ctx)
}

// compositeKey reads the named fields off a map[string]any record and
// canonicalizes them into a comparable map key.
func compositeKey(record any, keys []string) (any, error) {
	m, ok := record.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("collection: record of type %T is not map[string]any; the in-memory backend requires map records for keyed joins", record)
	}
	parts := make([]any, len(keys))
	for i, k := range keys {
		parts[i] = m[k]
	}
	return fmt.Sprint(parts), nil
}
