package observe

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dipeo/engine/bus"
)

// DefaultStreamQueueDepth bounds each per-execution SSE-style queue this
// observer owns. Once full, the oldest frame is dropped in favor of the
// newest one rather than blocking the bus publisher.
const DefaultStreamQueueDepth = 64

// DirectStreaming is the built-in streaming observer shape from spec.md
// §4.9: it owns its own per-execution subscriber queues, formats each bus
// event into an SSE-style text frame, and closes the queue once the
// execution reaches a terminal event. Unlike router.ServeSSE (which writes
// straight to an http.ResponseWriter) this keeps the formatted frames on a
// channel, so it can back any transport, not just HTTP.
type DirectStreaming struct {
	Bus        *bus.Bus
	QueueDepth int

	mu     sync.Mutex
	queues map[string]chan string
}

// NewDirectStreaming wires a streaming observer to an existing bus. depth
// <= 0 uses DefaultStreamQueueDepth.
func NewDirectStreaming(b *bus.Bus, depth int) *DirectStreaming {
	if depth <= 0 {
		depth = DefaultStreamQueueDepth
	}
	return &DirectStreaming{Bus: b, QueueDepth: depth, queues: make(map[string]chan string)}
}

// Stream returns a channel of formatted SSE-style frames for one execution.
// The channel closes once that execution completes or fails. Each call
// makes its own bus subscription: calling Stream twice for the same
// executionID gives two channels that both receive its frames.
func (d *DirectStreaming) Stream(executionID string) <-chan string {
	out := make(chan string, d.QueueDepth)

	d.mu.Lock()
	d.queues[executionID] = out
	d.mu.Unlock()

	sub := d.Bus.Subscribe(nil, bus.PriorityNormal)
	go func() {
		defer sub.Close()
		defer close(out)
		defer func() {
			d.mu.Lock()
			delete(d.queues, executionID)
			d.mu.Unlock()
		}()

		for event := range sub.Events() {
			if event.ExecutionID != executionID {
				continue
			}
			frame := formatSSEFrame(event)
			enqueueDropOldest(out, frame)
			if isTerminalEvent(event.Type) {
				return
			}
		}
	}()

	return out
}

func enqueueDropOldest(ch chan string, frame string) {
	select {
	case ch <- frame:
		return
	default:
	}
	// Queue is full: drop the oldest frame, then push the new one. A
	// concurrent reader may win the race for the slot we just freed; that's
	// fine, the frame we're inserting still gets a slot one way or another.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- frame:
	default:
	}
}

func formatSSEFrame(event bus.Event) string {
	payload, err := json.Marshal(event)
	if err != nil {
		payload = []byte(`{}`)
	}
	return fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload)
}

func isTerminalEvent(t bus.EventType) bool {
	switch t {
	case bus.EventExecutionCompleted, bus.EventExecutionFailed:
		return true
	default:
		return false
	}
}
