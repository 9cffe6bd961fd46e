package registry

import (
	"github.com/jmoiron/sqlx"

	"github.com/dipeo/engine/bus"
	"github.com/dipeo/engine/cost"
	"github.com/dipeo/engine/llm"
	"github.com/dipeo/engine/router"
)

// Well-known service names used by cmd/enginectl to assemble a Registry
// from config.Load's output. Keeping these as constants rather than
// letting each caller invent a string avoids a typo silently producing a
// MustLookup panic at startup instead of a registration conflict earlier.
const (
	ServiceBus     = "bus"
	ServiceModel   = "llm.model"
	ServiceTracker = "cost.tracker"
	ServiceDB      = "db"
	ServiceRouter  = "router"
)

// Bus returns the registered event bus, or nil if none was registered.
func (r *Registry) Bus() *bus.Bus {
	v, ok := r.Lookup(ServiceBus)
	if !ok {
		return nil
	}
	return v.(*bus.Bus)
}

// Model returns the registered LLM model, or nil if none was registered.
func (r *Registry) Model() llm.Model {
	v, ok := r.Lookup(ServiceModel)
	if !ok {
		return nil
	}
	return v.(llm.Model)
}

// Tracker returns the registered cost tracker, or nil if none was registered.
func (r *Registry) Tracker() *cost.Tracker {
	v, ok := r.Lookup(ServiceTracker)
	if !ok {
		return nil
	}
	return v.(*cost.Tracker)
}

// DB returns the registered database connection, or nil if none was registered.
func (r *Registry) DB() *sqlx.DB {
	v, ok := r.Lookup(ServiceDB)
	if !ok {
		return nil
	}
	return v.(*sqlx.DB)
}

// Router returns the registered message router, or nil if none was registered.
func (r *Registry) Router() *router.Router {
	v, ok := r.Lookup(ServiceRouter)
	if !ok {
		return nil
	}
	return v.(*router.Router)
}
