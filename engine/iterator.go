package engine

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dipeo/engine/bus"
	"github.com/dipeo/engine/diagram"
	"github.com/dipeo/engine/state"
)

// DefaultMaxConcurrentNodes matches DIPEO_MAX_CONCURRENT_NODES's documented
// default: how many nodes the iterator will dispatch in parallel within a
// single step.
const DefaultMaxConcurrentNodes = 10

// DefaultQueueDepth matches DIPEO_QUEUE_DEPTH's documented default.
const DefaultQueueDepth = 100

// Iterator is the Execution Iterator (C8): it drives the diagram to
// completion by repeatedly asking the flow controller for the ready set,
// dispatching it through the executor under a bounded worker pool, and
// running the loop-reset pass after every completed node. One Iterator
// runs exactly one execution.
type Iterator struct {
	Diagram  *diagram.Diagram
	Flow     FlowController
	Executor *Executor

	// MaxConcurrentNodes bounds how many handlers run at once. Zero uses
	// DefaultMaxConcurrentNodes.
	MaxConcurrentNodes int
	// QueueDepth is stored but not consulted: each step's frontier is sized
	// to that step's ready set.
	QueueDepth int

	// OnCheckpoint, if set, is called after every step with the latest
	// state snapshot so the caller can persist it (store.Store.Save). It
	// runs synchronously between steps, matching the teacher's
	// checkpoint-after-step cadence.
	OnCheckpoint func(ctx context.Context, st *state.ExecutionState) error
}

func (it *Iterator) concurrency() int64 {
	if it.MaxConcurrentNodes > 0 {
		return int64(it.MaxConcurrentNodes)
	}
	return DefaultMaxConcurrentNodes
}

func (it *Iterator) queueDepth() int {
	if it.QueueDepth > 0 {
		return it.QueueDepth
	}
	return DefaultQueueDepth
}

// Run drives st to completion (every endpoint COMPLETED) or to a terminal
// error (ErrDeadlock, ErrIterationCapExceeded, a propagated handler error,
// or ctx cancellation surfaced as ErrCancelled).
func (it *Iterator) Run(ctx context.Context, st *state.ExecutionState, executionID, diagramID string) error {
	steps := 0
	for {
		select {
		case <-ctx.Done():
			st.Finish(state.ExecCancelled, time.Now())
			return ErrCancelled
		default:
		}

		if it.Flow.allEndpointsComplete(it.Diagram, st) {
			st.Finish(state.ExecCompleted, time.Now())
			it.checkpoint(ctx, st)
			return nil
		}

		ready := it.Flow.GetReadyNodes(it.Diagram, st)
		if len(ready) == 0 {
			st.Finish(state.ExecFailed, time.Now())
			it.checkpoint(ctx, st)
			return ErrDeadlock
		}
		if steps >= it.Flow.maxIterations() {
			st.Finish(state.ExecFailed, time.Now())
			it.checkpoint(ctx, st)
			return ErrIterationCapExceeded
		}

		if err := it.runStep(ctx, steps, ready, st, executionID, diagramID); err != nil {
			st.Finish(state.ExecFailed, time.Now())
			it.checkpoint(ctx, st)
			return err
		}

		steps++
		it.checkpoint(ctx, st)
	}
}

// runStep feeds the ready set through the frontier (so dispatch order is
// the same deterministic OrderKey sequence the teacher's scheduler uses)
// and drains it with a bounded worker pool, then applies the loop-reset
// pass for each node that completed in this batch.
func (it *Iterator) runStep(ctx context.Context, stepID int, ready []diagram.Node, st *state.ExecutionState, executionID, diagramID string) error {
	byID := make(map[string]diagram.Node, len(ready))
	frontier := NewFrontier(max(len(ready), 1))
	for _, n := range ready {
		byID[n.ID] = n
		item := WorkItem{StepID: stepID, NodeID: n.ID, ExecCount: st.ExecCounts[n.ID]}
		item.OrderKey = computeOrderKey(n.ID, item.ExecCount)
		if err := frontier.Enqueue(ctx, item); err != nil {
			return err
		}
	}

	total := int64(len(ready))
	workers := it.concurrency()
	if int64(len(ready)) < workers {
		workers = int64(len(ready))
	}

	var taken atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for w := int64(0); w < workers; w++ {
		g.Go(func() error {
			for {
				if taken.Add(1) > total {
					return nil
				}
				item, err := frontier.Dequeue(gctx)
				if err != nil {
					return err
				}
				n := byID[item.NodeID]
				if err := it.Executor.Run(gctx, it.Diagram, n, st, executionID, diagramID); err != nil {
					return err
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	for _, n := range ready {
		if st.NodeStates[n.ID].Status == state.StatusCompleted {
			it.Flow.ResetForLoop(it.Diagram, st, n.ID)
		}
	}
	return nil
}

func (it *Iterator) checkpoint(ctx context.Context, st *state.ExecutionState) {
	if it.OnCheckpoint == nil {
		return
	}
	_ = it.OnCheckpoint(ctx, st) // best-effort; a failed checkpoint doesn't abort a running execution
}

// publishExecutionLifecycle is a small helper the top-level Engine (engine.go)
// uses to announce execution_started/completed/failed without duplicating
// the bus.Event construction in two places.
func publishExecutionLifecycle(ctx context.Context, pub *bus.Bus, eventType bus.EventType, executionID, diagramID string, meta map[string]interface{}) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, bus.Event{
		Type: eventType, ExecutionID: executionID, DiagramID: diagramID,
		Timestamp: time.Now(), Meta: meta,
	})
}
