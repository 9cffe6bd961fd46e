// Package engine implements the execution core: the Flow Controller (C6),
// Input Resolver (C7), Execution Iterator (C8), and Node Executor (C9)
// that together drive a compiled diagram.Diagram to completion against a
// state.ExecutionState, publishing progress on a bus.Bus as they go.
package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/dipeo/engine/bus"
	"github.com/dipeo/engine/diagram"
	"github.com/dipeo/engine/state"
)

// Engine owns one compiled diagram and the handler registry that knows how
// to run its node types. It is safe to start many concurrent executions of
// the same Engine: each Start call gets its own ExecutionState, Iterator,
// and synchronization, sharing only the read-only Diagram, the immutable
// HandlerRegistry, and the process-wide event bus.
type Engine struct {
	Diagram   *diagram.Diagram
	Handlers  *HandlerRegistry
	Publisher *bus.Bus
	Checkpoint func(ctx context.Context, st *state.ExecutionState) error

	cfg *engineConfig
}

// New builds an Engine for d, dispatching to handlers, applying opts.
func New(d *diagram.Diagram, handlers *HandlerRegistry, publisher *bus.Bus, opts ...Option) (*Engine, error) {
	cfg := newEngineConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("engine option: %w", err)
		}
	}
	return &Engine{Diagram: d, Handlers: handlers, Publisher: publisher, cfg: cfg}, nil
}

// Start creates a fresh ExecutionState for this diagram and runs it to
// completion, returning the terminal state whether the run succeeded,
// failed, deadlocked, or was cancelled. A non-nil error accompanies a
// FAILED/CANCELLED terminal state; the state itself is always returned so
// callers can inspect partial progress either way.
func (e *Engine) Start(ctx context.Context, variables map[string]any) (*state.ExecutionState, error) {
	executionID := state.NewExecutionID()
	return e.Resume(ctx, state.New(executionID, e.Diagram.ID, nodeIDs(e.Diagram), variables))
}

// Resume drives an existing ExecutionState to completion, used both for a
// freshly created state (from Start) and for one recovered from the store
// after a crash (G5's orphan-recovery path feeds a RUNNING state back in
// here after the caller decides whether to retry or fail it outright).
func (e *Engine) Resume(ctx context.Context, st *state.ExecutionState) (*state.ExecutionState, error) {
	st.Status = state.ExecRunning

	publishExecutionLifecycle(ctx, e.Publisher, bus.EventExecutionStarted, st.ID, e.Diagram.ID, nil)

	flow := FlowController{MaxIterations: e.cfg.maxIterations}
	executor := &Executor{
		Handlers:           e.Handlers,
		Resolver:           Resolver{},
		Publisher:          e.Publisher,
		DefaultNodeTimeout: e.cfg.defaultNodeTimeout,
		Policies:           e.cfg.policies,
		StateMu:            &sync.RWMutex{},
	}
	it := &Iterator{
		Diagram:            e.Diagram,
		Flow:                flow,
		Executor:            executor,
		MaxConcurrentNodes: e.cfg.maxConcurrentNodes,
		QueueDepth:          e.cfg.queueDepth,
		OnCheckpoint:        e.Checkpoint,
	}

	runErr := it.Run(ctx, st, st.ID, e.Diagram.ID)

	switch {
	case runErr == nil:
		publishExecutionLifecycle(ctx, e.Publisher, bus.EventExecutionCompleted, st.ID, e.Diagram.ID, nil)
	default:
		publishExecutionLifecycle(ctx, e.Publisher, bus.EventExecutionFailed, st.ID, e.Diagram.ID,
			map[string]interface{}{"error": runErr.Error()})
	}
	return st, runErr
}

func nodeIDs(d *diagram.Diagram) []string {
	nodes := d.AllNodes()
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	return ids
}
