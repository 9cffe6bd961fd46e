// Package registry implements the explicit service registry SPEC_FULL.md
// §6's design note calls for: a small typed map of named services,
// constructed once per process and frozen before the engine starts using
// it, so no component can register a replacement service mid-execution.
package registry

import (
	"fmt"
	"sync"

	"github.com/dipeo/engine/engine"
)

// Registry holds named services keyed by their registered name. It is
// built with New, populated with Register calls, and then sealed with
// Freeze; any Register after Freeze is a programmer error.
type Registry struct {
	mu       sync.RWMutex
	services map[string]interface{}
	frozen   bool
}

// New returns an empty, unfrozen Registry.
func New() *Registry {
	return &Registry{services: make(map[string]interface{})}
}

// Register adds a named service. It panics with an *engine.EngineError if
// called after Freeze or with a name already registered — both are
// programmer errors, never a runtime condition a caller should recover
// from.
func (r *Registry) Register(name string, service interface{}) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		panic(&engine.EngineError{
			Message: fmt.Sprintf("registry: Register(%q) called after Freeze", name),
			Code:    "REGISTRY_FROZEN",
		})
	}
	if _, exists := r.services[name]; exists {
		panic(&engine.EngineError{
			Message: fmt.Sprintf("registry: service %q already registered", name),
			Code:    "REGISTRY_DUPLICATE",
		})
	}
	r.services[name] = service
	return r
}

// Freeze seals the registry against further Register calls. It returns the
// receiver so construction reads as registry.New().Register(...).Freeze().
func (r *Registry) Freeze() *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
	return r
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Lookup returns the service registered under name, if any.
func (r *Registry) Lookup(name string) (interface{}, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	service, ok := r.services[name]
	return service, ok
}

// MustLookup returns the service registered under name, panicking with an
// *engine.EngineError if it is missing. Intended for process bootstrap
// code where a missing service means the binary is misconfigured, not a
// condition to handle gracefully at the call site.
func (r *Registry) MustLookup(name string) interface{} {
	service, ok := r.Lookup(name)
	if !ok {
		panic(&engine.EngineError{
			Message: fmt.Sprintf("registry: no service registered under %q", name),
			Code:    "REGISTRY_MISSING_SERVICE",
		})
	}
	return service
}
