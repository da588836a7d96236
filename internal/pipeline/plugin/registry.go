package plugin

import (
	"fmt"
	"sync"

	"github.com/batchpipe/engine/internal/pipeline/plan"
)

// Constructor builds a plugin instance from its declared stage
// configuration. The returned value must satisfy the plugin.* interface
// matching the kind it was registered under (Source, Transform,
// BatchJoiner, ...) — dispatch.Dispatch type-asserts it accordingly.
type Constructor func(config map[string]any) (any, error)

type registryKey struct {
	Kind plan.Kind
	Name string
}

var (
	mu           sync.RWMutex
	constructors = make(map[registryKey]Constructor)
)

// Register records a constructor for the named plugin of the given kind.
// Intended to be called from a plugin package's init(), the same pattern
// database/sql drivers and image format decoders use to make themselves
// available without the registering package needing to know its caller.
// Panics on a duplicate registration, since that can only be a build-time
// wiring mistake.
func Register(kind plan.Kind, name string, ctor Constructor) {
	mu.Lock()
	defer mu.Unlock()
	key := registryKey{Kind: kind, Name: name}
	if _, exists := constructors[key]; exists {
		panic(fmt.Sprintf("plugin: %s plugin %q already registered", kind, name))
	}
	constructors[key] = ctor
}

// UnknownPluginError is returned when no constructor is registered for a
// stage's declared kind and name.
type UnknownPluginError struct {
	Kind plan.Kind
	Name string
}

func (e *UnknownPluginError) Error() string {
	return fmt.Sprintf("plugin: no %s plugin registered as %q", e.Kind, e.Name)
}

// Factory adapts the registered constructors into a plan.PluginFactory,
// the only mechanism a plan document's stage bindings are resolved by; the
// engine never loads code dynamically (spec.md §1, §6).
func Factory(kind plan.Kind, name string, config map[string]any) (any, error) {
	mu.RLock()
	ctor, ok := constructors[registryKey{Kind: kind, Name: name}]
	mu.RUnlock()
	if !ok {
		return nil, &UnknownPluginError{Kind: kind, Name: name}
	}
	return ctor(config)
}
