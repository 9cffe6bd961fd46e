package engine

import (
	"context"
	"sync"
	"time"

	"github.com/dipeo/engine/bus"
	"github.com/dipeo/engine/diagram"
	"github.com/dipeo/engine/state"
)

// ExecRequest is everything a Handler needs to run one node once: its
// resolved input bundle plus enough execution context to look up services
// or honor cancellation. Handlers never see the ExecutionState directly —
// only what the Input Resolver decided belongs to them — so a handler
// cannot accidentally read another node's output out of band.
type ExecRequest struct {
	Ctx         context.Context
	Node        diagram.Node
	Input       map[string]any
	ExecutionID string
	DiagramID   string
	ExecCount   int // this node's exec_counts value for the run about to start
	Variables   map[string]any
}

// Handler executes one node type. Implementations live in the handler
// package; the engine only depends on this interface so it never needs to
// know how an individual node type does its work.
type Handler interface {
	Execute(req ExecRequest) (state.NodeOutput, error)
}

// RetryableError lets a handler mark an error as worth retrying without
// the executor needing a node-specific Retryable predicate.
type RetryableError interface {
	error
	Retryable() bool
}

// HandlerRegistry maps node types to their Handler. It is built once at
// startup and frozen by convention (the engine never mutates it mid-run).
type HandlerRegistry struct {
	handlers map[diagram.NodeType]Handler
}

// NewHandlerRegistry returns an empty registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[diagram.NodeType]Handler)}
}

// Register installs the handler for a node type, overwriting any prior one.
func (r *HandlerRegistry) Register(t diagram.NodeType, h Handler) {
	r.handlers[t] = h
}

// Lookup returns the handler registered for t, if any.
func (r *HandlerRegistry) Lookup(t diagram.NodeType) (Handler, bool) {
	h, ok := r.handlers[t]
	return h, ok
}

// Executor is the Node Executor (C9): it marks a node RUNNING, resolves its
// input, dispatches to the registered handler under the node's timeout and
// retry policy, and records the outcome back into the ExecutionState.
type Executor struct {
	Handlers  *HandlerRegistry
	Resolver  Resolver
	Publisher *bus.Bus

	// DefaultNodeTimeout applies when a node's NodePolicy sets none.
	DefaultNodeTimeout time.Duration

	// Policies maps node id to its NodePolicy. Nodes absent from this map
	// run with engine defaults and no retry.
	Policies map[string]*NodePolicy

	// StateMu guards every read or write of an ExecutionState shared across
	// a step's concurrently dispatched nodes. state.ExecutionState is
	// documented as not concurrency-safe on its own; the executor is what
	// owns synchronizing access to it once the iterator starts running
	// more than one node at a time. Set by the caller that builds the
	// Executor (engine.go); muInit guards the zero-value fallback for
	// Executors built directly in tests.
	StateMu *sync.RWMutex
	muInit  sync.Once
}

func (ex *Executor) mu() *sync.RWMutex {
	ex.muInit.Do(func() {
		if ex.StateMu == nil {
			ex.StateMu = &sync.RWMutex{}
		}
	})
	return ex.StateMu
}

func (ex *Executor) policyFor(nodeID string) *NodePolicy {
	if ex.Policies == nil {
		return nil
	}
	return ex.Policies[nodeID]
}

// Run executes node n once: starts it, resolves its input, dispatches to
// its handler (with timeout and retry), and applies the resulting
// COMPLETED/MAXITER_REACHED/FAILED transition to st. It never decides
// readiness or loop resets — that is the flow controller's job, invoked by
// the iterator around this call.
func (ex *Executor) Run(ctx context.Context, d *diagram.Diagram, n diagram.Node, st *state.ExecutionState, executionID, diagramID string) error {
	mu := ex.mu()
	now := time.Now()

	mu.Lock()
	err := st.StartNode(n.ID, now)
	mu.Unlock()
	if err != nil {
		return err
	}

	ex.publish(ctx, bus.Event{
		Type: bus.EventNodeStarted, ExecutionID: executionID, DiagramID: diagramID,
		NodeID: n.ID, Timestamp: now,
	})

	mu.RLock()
	input, err := ex.Resolver.Resolve(d, n, st)
	execCount := st.ExecCounts[n.ID]
	variables := st.Variables
	mu.RUnlock()
	if err != nil {
		return ex.failNode(ctx, n, st, executionID, diagramID, err, 0, now)
	}

	handler, ok := ex.Handlers.Lookup(n.Type)
	if !ok {
		return ex.failNode(ctx, n, st, executionID, diagramID, ErrNoHandler, 0, now)
	}

	req := ExecRequest{
		Ctx: ctx, Node: n, Input: input,
		ExecutionID: executionID, DiagramID: diagramID,
		ExecCount: execCount, Variables: variables,
	}

	out, attempts, err := ex.dispatchWithRetry(ctx, handler, req, ex.policyFor(n.ID))
	if err != nil {
		return ex.failNode(ctx, n, st, executionID, diagramID, err, attempts, now)
	}

	mu.Lock()
	maxIterReached := n.Type == diagram.NodePersonJob && n.HasMaxIteration() &&
		st.ExecCounts[n.ID] >= n.MaxIteration &&
		out.Metadata.Skipped && out.Metadata.SkipReason == "max iteration"
	completedAt := time.Now()
	err = st.CompleteNode(n.ID, completedAt, out, maxIterReached)
	mu.Unlock()
	if err != nil {
		return err
	}

	ex.publish(ctx, bus.Event{
		Type: bus.EventNodeCompleted, ExecutionID: executionID, DiagramID: diagramID,
		NodeID: n.ID, Timestamp: completedAt,
		Meta: map[string]interface{}{
			"max_iter_reached": maxIterReached,
			"attempts":         attempts,
			"duration_ms":      completedAt.Sub(now).Milliseconds(),
		},
	})
	return nil
}

func (ex *Executor) failNode(ctx context.Context, n diagram.Node, st *state.ExecutionState, executionID, diagramID string, cause error, attempts int, startedAt time.Time) error {
	now := time.Now()
	mu := ex.mu()
	mu.Lock()
	_ = st.FailNode(n.ID, now, cause.Error())
	mu.Unlock()
	ex.publish(ctx, bus.Event{
		Type: bus.EventNodeFailed, ExecutionID: executionID, DiagramID: diagramID,
		NodeID: n.ID, Timestamp: now,
		Meta: map[string]interface{}{
			"error":       cause.Error(),
			"attempts":    attempts,
			"duration_ms": now.Sub(startedAt).Milliseconds(),
		},
	})
	return cause
}

func (ex *Executor) publish(ctx context.Context, event bus.Event) {
	if ex.Publisher == nil {
		return
	}
	ex.Publisher.Publish(ctx, event)
}

// dispatchWithRetry runs handler.Execute under the node's timeout,
// retrying per policy.Retry when the error is retryable.
func (ex *Executor) dispatchWithRetry(ctx context.Context, handler Handler, req ExecRequest, policy *NodePolicy) (state.NodeOutput, int, error) {
	var lastOut state.NodeOutput
	var lastErr error

	attempts := 1
	var retry *RetryPolicy
	if policy != nil && policy.Retry != nil {
		retry = policy.Retry
		attempts = retry.MaxAttempts
		if attempts < 1 {
			attempts = 1
		}
	}

	for attempt := 0; attempt < attempts; attempt++ {
		err := runWithTimeout(ctx, req.Node.ID, policy, ex.DefaultNodeTimeout, func(runCtx context.Context) error {
			req.Ctx = runCtx
			out, execErr := handler.Execute(req)
			lastOut, lastErr = out, execErr
			return execErr
		})
		if err == nil {
			return lastOut, attempt + 1, nil
		}
		lastErr = err

		if retry == nil || attempt == attempts-1 || !isRetryable(retry, err) {
			return state.NodeOutput{}, attempt + 1, err
		}

		delay := computeBackoff(attempt, retry.BaseDelay, retry.MaxDelay, nil)
		select {
		case <-ctx.Done():
			return state.NodeOutput{}, attempt + 1, ctx.Err()
		case <-time.After(delay):
		}
	}
	return state.NodeOutput{}, attempts, lastErr
}

func isRetryable(retry *RetryPolicy, err error) bool {
	if re, ok := err.(RetryableError); ok {
		return re.Retryable()
	}
	if retry.Retryable == nil {
		return false
	}
	return retry.Retryable(err)
}
