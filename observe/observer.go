// Package observe implements the Observer Adapters (C10): it bridges the
// event bus out to external sinks, generalizing the teacher's Emitter
// interface (graph/emit/emitter.go) from a single engine-owned sink into
// bus subscribers that can be attached and detached per execution.
package observe

import "github.com/dipeo/engine/bus"

// Meta carries the per-observer attachment options spec.md names:
// whether a sub-diagram's child execution should also reach this observer,
// whether delivery is restricted to one execution id, and an optional
// event-type filter. Nil FilterEvents means every event type.
type Meta struct {
	PropagateToSub   bool
	ScopeToExecution bool
	FilterEvents     []bus.EventType
}

// Observer receives bus events already filtered to its Meta. Implementations
// must not block the publisher for long; the bus already buffers each
// subscription, so slow observers should drop or sample internally rather
// than stall Notify.
type Observer interface {
	Notify(event bus.Event)
	Close()
}

// Attach subscribes observer to b according to meta, running a dedicated
// goroutine that forwards matching events until the subscription closes.
// executionID is used only when meta.ScopeToExecution is set; pass "" when
// the observer is meant to see every execution the process runs.
func Attach(b *bus.Bus, executionID string, observer Observer, meta Meta) *bus.Subscription {
	sub := b.Subscribe(meta.FilterEvents, bus.PriorityNormal)

	go func() {
		for event := range sub.Events() {
			if meta.ScopeToExecution && executionID != "" && event.ExecutionID != executionID {
				continue
			}
			observer.Notify(event)
		}
		observer.Close()
	}()

	return sub
}
