// Package state defines the mutable per-execution record (C2): node
// states, node outputs, exec counts, variables, and aggregate token usage.
// Nothing in this package mutates a state directly except through the
// methods below. This package itself is not concurrency-safe on its own,
// by design — callers own the synchronization (the engine's Executor
// guards each execution's state with its StateMu).
package state

import (
	"time"

	"github.com/google/uuid"
)

// NodeStatus is one of the statuses spec.md §3 enumerates for a single node.
type NodeStatus string

const (
	StatusPending        NodeStatus = "PENDING"
	StatusRunning        NodeStatus = "RUNNING"
	StatusCompleted      NodeStatus = "COMPLETED"
	StatusFailed         NodeStatus = "FAILED"
	StatusMaxIterReached NodeStatus = "MAXITER_REACHED"
)

// ExecutionStatus is the overall status of one execution.
type ExecutionStatus string

const (
	ExecPending   ExecutionStatus = "PENDING"
	ExecRunning   ExecutionStatus = "RUNNING"
	ExecCompleted ExecutionStatus = "COMPLETED"
	ExecFailed    ExecutionStatus = "FAILED"
	ExecCancelled ExecutionStatus = "CANCELLED"
)

// TokenUsage aggregates LLM token counts. It is additive: Add never loses
// precision across repeated node completions (I5 requires the aggregate to
// equal the sum over every per-node token_usage value).
type TokenUsage struct {
	Input  int64
	Output int64
	Cached int64
}

// Add returns the element-wise sum of u and other.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		Input:  u.Input + other.Input,
		Output: u.Output + other.Output,
		Cached: u.Cached + other.Cached,
	}
}

// NodeState is the per-node mutable record spec.md §3 defines.
type NodeState struct {
	Status     NodeStatus
	StartedAt  *time.Time
	EndedAt    *time.Time
	Error      string
	TokenUsage TokenUsage
}

// NodeOutput is what a completed node produced. Value maps output handle
// name to payload; ordinary nodes populate "default" plus any named
// outputs, condition nodes populate exactly one of "condtrue"/"condfalse".
type NodeOutput struct {
	NodeID         string
	Value          map[string]any
	Metadata       OutputMetadata
	ExecutedNodes  []string // provenance for sub-diagram/nested executions, optional
}

// OutputMetadata carries provenance spec.md §3 requires: token usage,
// which condition branch fired, and skip signaling for max-iteration exits.
type OutputMetadata struct {
	TokenUsage      TokenUsage
	ConditionResult *bool // non-nil only for condition node outputs
	Skipped         bool
	SkipReason      string
}

// ConditionBranch returns the output handle name ("condtrue"/"condfalse")
// a condition node's last output is tagged with, or "" if this output
// carries no condition result.
func (o NodeOutput) ConditionBranch() string {
	if o.Metadata.ConditionResult == nil {
		return ""
	}
	if *o.Metadata.ConditionResult {
		return "condtrue"
	}
	return "condfalse"
}

// ExecutionState is the full mutable record for one execution, owned
// exclusively by that execution and mutated through the methods of this
// package; snapshots of it are persisted through a store.Store.
type ExecutionState struct {
	ID         string
	DiagramID  string
	Status     ExecutionStatus
	StartedAt  time.Time
	EndedAt    *time.Time

	NodeStates map[string]NodeState
	NodeOutputs map[string]NodeOutput
	ExecCounts  map[string]int
	// ExecutedNodes preserves completion order (I3); duplicates are
	// expected for iterative nodes that re-fire across loop resets.
	ExecutedNodes []string

	Variables  map[string]any
	TokenUsage TokenUsage
	IsActive   bool
}

// NewExecutionID returns a fresh unique execution identifier.
func NewExecutionID() string {
	return uuid.New().String()
}

// New builds a fresh ExecutionState with every node PENDING, matching
// spec.md §3's "Initial state is PENDING for every node" invariant.
func New(id, diagramID string, nodeIDs []string, variables map[string]any) *ExecutionState {
	if variables == nil {
		variables = make(map[string]any)
	}
	st := &ExecutionState{
		ID:          id,
		DiagramID:   diagramID,
		Status:      ExecPending,
		StartedAt:   time.Now(),
		NodeStates:  make(map[string]NodeState, len(nodeIDs)),
		NodeOutputs: make(map[string]NodeOutput),
		ExecCounts:  make(map[string]int, len(nodeIDs)),
		Variables:   variables,
		IsActive:    true,
	}
	for _, id := range nodeIDs {
		st.NodeStates[id] = NodeState{Status: StatusPending}
		st.ExecCounts[id] = 0
	}
	return st
}

// Clone returns a deep-enough copy of the state for safe concurrent reads:
// every map is copied, so mutating the clone never touches the original.
// Values inside Variables/NodeOutputs are not deep-copied (they are treated
// as immutable payloads once written, same as the teacher's deepCopy of
// branch state for fan-out isolation).
func (s *ExecutionState) Clone() *ExecutionState {
	clone := *s
	clone.NodeStates = make(map[string]NodeState, len(s.NodeStates))
	for k, v := range s.NodeStates {
		clone.NodeStates[k] = v
	}
	clone.NodeOutputs = make(map[string]NodeOutput, len(s.NodeOutputs))
	for k, v := range s.NodeOutputs {
		clone.NodeOutputs[k] = v
	}
	clone.ExecCounts = make(map[string]int, len(s.ExecCounts))
	for k, v := range s.ExecCounts {
		clone.ExecCounts[k] = v
	}
	clone.ExecutedNodes = append([]string(nil), s.ExecutedNodes...)
	clone.Variables = make(map[string]any, len(s.Variables))
	for k, v := range s.Variables {
		clone.Variables[k] = v
	}
	return &clone
}
