// Package emit implements the Emit Router: it splits a stage's single
// heterogeneous RecordInfo stream into the normal/port/error/alert
// sub-collections the registry stores (spec.md §4.2).
package emit

import (
	"sort"

	"github.com/batchpipe/engine/internal/pipeline/collection"
	"github.com/batchpipe/engine/internal/pipeline/record"
	"github.com/batchpipe/engine/internal/pipeline/registry"
)

// Options describes which sub-streams a stage's combined output needs,
// decided by the pipeline driver from the plan (which downstream stages exist
// and what kind they are) rather than by the router itself.
type Options struct {
	// Ports lists the declared output ports for a splitter stage. Empty for
	// non-splitters.
	Ports []string
	// NeedsErrors is true iff at least one downstream stage is an
	// ErrorTransform.
	NeedsErrors bool
	// NeedsAlerts is true iff at least one downstream stage is an
	// AlertPublisher.
	NeedsAlerts bool
}

// Route splits combined into the registry.Records a stage's EmittedRecords
// entry should hold. If any combination of {errors, alerts, multi-port} is
// needed, combined is cached first so the filters below do not each
// recompute the stage (spec.md §4.2). For a non-splitter stage, values that
// are not a record.Info are kept as normal output; the error, alert and
// port sub-streams drop them.
func Route(combined collection.Collection, opts Options) registry.Records {
	needsCombinedCache := opts.NeedsErrors || opts.NeedsAlerts || len(opts.Ports) > 1
	stream := combined
	if needsCombinedCache {
		stream = stream.Cache()
	}

	rec := registry.Records{}

	if opts.NeedsErrors {
		rec.Errors = stream.FlatMap(func(v any) []any {
			info, ok := v.(record.Info)
			if !ok {
				return nil
			}
			if e, ok := info.AsError(); ok {
				return []any{e}
			}
			return nil
		})
	}

	if opts.NeedsAlerts {
		rec.Alerts = stream.FlatMap(func(v any) []any {
			info, ok := v.(record.Info)
			if !ok {
				return nil
			}
			if a, ok := info.AsAlert(); ok {
				return []any{a}
			}
			return nil
		})
	}

	if len(opts.Ports) > 0 {
		ports := append([]string(nil), opts.Ports...)
		sort.Strings(ports)
		rec.OutputPorts = make(map[string]collection.Collection, len(ports))
		for _, port := range ports {
			port := port
			rec.OutputPorts[port] = stream.FlatMap(func(v any) []any {
				info, ok := v.(record.Info)
				if !ok {
					return nil
				}
				if p, val, ok := info.AsPort(); ok && p == port {
					return []any{val}
				}
				return nil
			})
		}
		return rec
	}

	rec.Output = stream.FlatMap(func(v any) []any {
		info, ok := v.(record.Info)
		if !ok {
			return []any{v}
		}
		if out, ok := info.AsOutput(); ok {
			return []any{out}
		}
		return nil
	})
	return rec
}

// CacheIfNeeded applies the Cache Policy (spec.md §4.5) to every
// sub-collection a stage produced, once the driver has decided the stage's
// own output fans out enough to warrant it.
func CacheIfNeeded(rec registry.Records, should bool) registry.Records {
	if !should {
		return rec
	}
	if rec.Output != nil {
		rec.Output = rec.Output.Cache()
	}
	if rec.Errors != nil {
		rec.Errors = rec.Errors.Cache()
	}
	if rec.Alerts != nil {
		rec.Alerts = rec.Alerts.Cache()
	}
	for port, c := range rec.OutputPorts {
		rec.OutputPorts[port] = c.Cache()
	}
	return rec
}
