package engine

import "errors"

// EngineError is a typed, machine-readable execution error, following the
// teacher's {Message, Code} convention so callers can switch on Code
// instead of parsing error strings.
type EngineError struct {
	Message string
	Code    string
	NodeID  string
}

func (e *EngineError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

// Sentinel errors for the conditions spec.md §7 enumerates.
var (
	// ErrDeadlock is returned when should_continue reports false because no
	// node is ready and none is running, yet the execution is not complete.
	ErrDeadlock = errors.New("deadlock: no ready nodes and none running")

	// ErrIterationCapExceeded is returned when the global iteration cap
	// (DIPEO_MAX_ITERATIONS) is hit before the execution could complete.
	ErrIterationCapExceeded = errors.New("deadlock: global iteration cap exceeded")

	// ErrOrphaned marks an execution recovered at startup whose last
	// persisted status was RUNNING (G5 crash-safety floor).
	ErrOrphaned = errors.New("orphaned: execution was RUNNING at process start")

	// ErrCancelled is returned when an execution is cancelled externally.
	ErrCancelled = errors.New("cancelled")

	// ErrNoHandler is returned when a node's type has no registered handler.
	ErrNoHandler = errors.New("no handler registered for node type")
)
