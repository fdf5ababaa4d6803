// Package catalog is the closed mapping from an action's "type" string to
// the factory that builds it (spec.md §9 REDESIGN FLAG: a static catalog
// replaces runtime class dispatch over heterogeneous action subclasses).
// Site-specific catalogs (autofocus v-curves, sky-flat loops, field
// acquisition, guided observation) are out of scope as implementations,
// but ParkTelescope and ConformanceProbe live here as the two entries the
// core itself depends on: ParkTelescope is the Scheduler's implicit
// queue-drain action, and ConformanceProbe is a reference implementation
// exercising every operation of the Action Runtime Contract.
package catalog

import (
	"fmt"
	"sync"

	"github.com/obscore/supervisor/internal/action"
	"github.com/rs/zerolog"
)

// Factory builds one Action instance for a given site and validated
// config map. Registered catalog entries are the only extension point
// for new action types (spec.md §9: "the catalog is a mapping from
// action.type string to a factory").
type Factory func(site string, config map[string]interface{}, log zerolog.Logger) action.Runnable

// Registry is the in-memory action-type catalog loaded from the
// configured catalog module at startup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a Registry pre-populated with the core entries the
// Scheduler itself depends on (ParkTelescope) plus the reference
// ConformanceProbe implementation. Site catalogs call Register to add
// their own entries on top.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.Register("park_telescope", NewParkTelescope)
	r.Register("conformance_probe", NewConformanceProbe)
	return r
}

// BuiltinModule is the only action-catalog module this distribution
// ships. A site deploying its own autofocus/sky-flat/acquisition
// actions (spec.md §9) would register a different module name here.
const BuiltinModule = "builtin"

// NewRegistryForModule builds the Registry for the named catalog
// module, gating construction on config.Config.ActionCatalogModule so a
// typo or an unported site-specific module name fails at startup
// instead of silently running with only the core entries.
func NewRegistryForModule(module string) (*Registry, error) {
	if module != BuiltinModule {
		return nil, fmt.Errorf("catalog: unknown action catalog module %q", module)
	}
	return NewRegistry(), nil
}

// Register installs or replaces the factory for typeKey.
func (r *Registry) Register(typeKey string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[typeKey] = f
}

// Build constructs an Action for typeKey, or an error if no factory is
// registered for it (Schedule Ingest's "type must match a catalog entry"
// validation rule, spec.md §6).
func (r *Registry) Build(typeKey, site string, config map[string]interface{}, log zerolog.Logger) (action.Runnable, error) {
	r.mu.RLock()
	f, ok := r.factories[typeKey]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("catalog: unknown action type %q", typeKey)
	}
	return f(site, config, log), nil
}

// MustBuild is Build for callers with a compile-time-known typeKey that
// is always registered (the Scheduler's own implicit ParkTelescope
// enqueue): it panics instead of surfacing an error that can never
// legitimately occur.
func (r *Registry) MustBuild(typeKey, site string, config map[string]interface{}, log zerolog.Logger) action.Runnable {
	act, err := r.Build(typeKey, site, config, log)
	if err != nil {
		panic(err)
	}
	return act
}

// Has reports whether typeKey is a registered catalog entry, used by
// Schedule Ingest validation without constructing an instance.
func (r *Registry) Has(typeKey string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[typeKey]
	return ok
}

// NewParkTelescope satisfies the Factory signature for "park_telescope".
func NewParkTelescope(site string, config map[string]interface{}, log zerolog.Logger) action.Runnable {
	return newParkTelescope(site, config, log, nil)
}
