package state

import (
	"fmt"
	"time"
)

// InvalidTransitionError reports an attempted node status change that
// violates I1 (PENDING -> RUNNING -> {COMPLETED, FAILED, MAXITER_REACHED},
// with re-entry to PENDING reserved for engine-driven loop resets).
type InvalidTransitionError struct {
	NodeID string
	From   NodeStatus
	To     NodeStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("node %s: invalid transition %s -> %s", e.NodeID, e.From, e.To)
}

// StartNode transitions a node PENDING -> RUNNING, incrementing its exec
// count (I2: exec_counts[n] equals the number of times n transitioned into
// RUNNING).
func (s *ExecutionState) StartNode(nodeID string, now time.Time) error {
	cur := s.NodeStates[nodeID]
	if cur.Status != StatusPending {
		return &InvalidTransitionError{NodeID: nodeID, From: cur.Status, To: StatusRunning}
	}
	cur.Status = StatusRunning
	cur.StartedAt = &now
	cur.EndedAt = nil
	cur.Error = ""
	s.NodeStates[nodeID] = cur
	s.ExecCounts[nodeID]++
	return nil
}

// CompleteNode transitions RUNNING -> COMPLETED (or MAXITER_REACHED when
// maxIterReached is true), records the output (I4: node_outputs[n] exists
// iff the last completion stored an output), appends to ExecutedNodes (I3),
// and folds the node's token usage into the aggregate (I5).
func (s *ExecutionState) CompleteNode(nodeID string, now time.Time, out NodeOutput, maxIterReached bool) error {
	cur := s.NodeStates[nodeID]
	if cur.Status != StatusRunning {
		return &InvalidTransitionError{NodeID: nodeID, From: cur.Status, To: StatusCompleted}
	}
	if maxIterReached {
		cur.Status = StatusMaxIterReached
	} else {
		cur.Status = StatusCompleted
	}
	cur.EndedAt = &now
	cur.TokenUsage = out.Metadata.TokenUsage
	s.NodeStates[nodeID] = cur

	s.NodeOutputs[nodeID] = out
	s.ExecutedNodes = append(s.ExecutedNodes, nodeID)
	s.TokenUsage = s.TokenUsage.Add(out.Metadata.TokenUsage)
	return nil
}

// FailNode transitions RUNNING -> FAILED, recording the error text. No
// output is stored; I4 keeps node_outputs[n] absent for a failed run.
func (s *ExecutionState) FailNode(nodeID string, now time.Time, errText string) error {
	cur := s.NodeStates[nodeID]
	if cur.Status != StatusRunning {
		return &InvalidTransitionError{NodeID: nodeID, From: cur.Status, To: StatusFailed}
	}
	cur.Status = StatusFailed
	cur.EndedAt = &now
	cur.Error = errText
	s.NodeStates[nodeID] = cur
	return nil
}

// ResetNode performs the engine-only re-entry to PENDING that backs loop
// resets (§4.5): the node's output is cleared and its status returns to
// PENDING so the flow controller can consider it ready again. Handlers
// never call this directly — only the flow controller's loop-reset pass
// does, which is why it lives beside the other state-machine transitions
// instead of behind a public store.Store method.
func (s *ExecutionState) ResetNode(nodeID string) {
	s.NodeStates[nodeID] = NodeState{Status: StatusPending}
	delete(s.NodeOutputs, nodeID)
}

// Finish marks the execution itself COMPLETED, FAILED, or CANCELLED.
func (s *ExecutionState) Finish(status ExecutionStatus, now time.Time) {
	s.Status = status
	s.EndedAt = &now
	s.IsActive = false
}
