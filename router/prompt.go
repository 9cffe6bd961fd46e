package router

import (
	"context"
	"fmt"
	"sync"
)

// PromptBroker is how a blocked user_response handler (engine.Handler)
// hands off to the websocket transport and waits for a client's answer.
// Await registers the wait; Answer (called from the websocket read loop)
// delivers it. Exactly one Answer per Await is consumed; extras are
// dropped, matching a single-shot prompt/response exchange.
type PromptBroker struct {
	mu      sync.Mutex
	pending map[string]chan string
}

// NewPromptBroker returns an empty broker.
func NewPromptBroker() *PromptBroker {
	return &PromptBroker{pending: make(map[string]chan string)}
}

func promptKey(executionID, nodeID string) string {
	return executionID + ":" + nodeID
}

// Await blocks until a client answers the prompt for (executionID, nodeID)
// or ctx is cancelled.
func (b *PromptBroker) Await(ctx context.Context, executionID, nodeID string) (string, error) {
	key := promptKey(executionID, nodeID)
	ch := make(chan string, 1)

	b.mu.Lock()
	b.pending[key] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, key)
		b.mu.Unlock()
	}()

	select {
	case answer := <-ch:
		return answer, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Answer delivers value to the pending Await for (executionID, nodeID), if
// one is registered. It reports whether a waiter was found.
func (b *PromptBroker) Answer(executionID, nodeID, value string) bool {
	key := promptKey(executionID, nodeID)

	b.mu.Lock()
	ch, ok := b.pending[key]
	b.mu.Unlock()
	if !ok {
		return false
	}

	select {
	case ch <- value:
		return true
	default:
		return false
	}
}

// String is a debug helper reporting how many prompts are currently pending.
func (b *PromptBroker) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fmt.Sprintf("PromptBroker{pending: %d}", len(b.pending))
}
