package observe

import (
	"context"

	"github.com/dipeo/engine/bus"
)

// RouterPublishing is the built-in publishing observer shape from
// spec.md §4.9: rather than owning its own delivery queues like
// DirectStreaming, it delegates entirely to the Message Router (C5) by
// republishing events onto the shared bus that router.Router already
// subscribes to for SSE and websocket delivery.
//
// Its one piece of real logic is sub-execution propagation: a sub-diagram's
// child execution publishes its own events under the child's execution id,
// invisible to observers scoped to the parent. When Meta.PropagateToSub is
// set for the parent's attachment, RouterPublishing re-publishes the
// child's events tagged with the parent's execution id so the router's
// existing per-execution SSE/websocket subscribers see them without any
// client-side change.
type RouterPublishing struct {
	Bus *bus.Bus
}

// NewRouterPublishing wires a publishing observer to an existing bus.
func NewRouterPublishing(b *bus.Bus) *RouterPublishing {
	return &RouterPublishing{Bus: b}
}

// PropagateChild mirrors childExecutionID's events onto the bus tagged with
// parentExecutionID, for as long as ctx is alive or until the child
// execution reaches a terminal event. meta.FilterEvents restricts which
// event types propagate; a nil filter propagates everything.
func (r *RouterPublishing) PropagateChild(ctx context.Context, parentExecutionID, childExecutionID string, meta Meta) {
	if !meta.PropagateToSub {
		return
	}

	sub := r.Bus.Subscribe(meta.FilterEvents, bus.PriorityNormal)
	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-sub.Events():
				if !ok {
					return
				}
				if event.ExecutionID != childExecutionID {
					continue
				}
				mirrored := event
				mirrored.ExecutionID = parentExecutionID
				mirrored.Meta = withSubExecutionTag(event.Meta, childExecutionID)
				r.Bus.Publish(ctx, mirrored)
				if isTerminalEvent(event.Type) {
					return
				}
			}
		}
	}()
}

func withSubExecutionTag(meta map[string]interface{}, childExecutionID string) map[string]interface{} {
	tagged := make(map[string]interface{}, len(meta)+1)
	for k, v := range meta {
		tagged[k] = v
	}
	tagged["sub_execution_id"] = childExecutionID
	return tagged
}
