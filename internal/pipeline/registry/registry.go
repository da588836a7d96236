// Package registry holds the per-stage EmittedRecords built during a
// pipeline run (spec.md §3, §4.2). Entries are single-assignment: writing a
// stage's entry twice is a programming bug and is rejected by construction.
package registry

import (
	"fmt"
	"sync"

	"github.com/batchpipe/engine/internal/pipeline/collection"
)

// Records is the per-stage, per-kind output a stage produces. Built exactly
// once and never mutated afterward.
type Records struct {
	Output      collection.Collection
	OutputPorts map[string]collection.Collection
	Errors      collection.Collection
	Alerts      collection.Collection
}

// AlreadySetError is returned when a stage's entry is written more than once.
type AlreadySetError struct {
	Stage string
}

func (e *AlreadySetError) Error() string {
	return fmt.Sprintf("registry: stage %q already has emitted records", e.Stage)
}

// Registry maps stage name to its EmittedRecords. Accessed only by the
// driver thread during a run (spec.md §5 "Shared resources").
type Registry struct {
	mu      sync.Mutex
	entries map[string]Records
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]Records)}
}

// Set records a stage's EmittedRecords. Returns AlreadySetError if the stage
// was already written.
func (r *Registry) Set(stage string, rec Records) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[stage]; ok {
		return &AlreadySetError{Stage: stage}
	}
	r.entries[stage] = rec
	return nil
}

// Get returns the EmittedRecords for stage, if present.
func (r *Registry) Get(stage string) (Records, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.entries[stage]
	return rec, ok
}
