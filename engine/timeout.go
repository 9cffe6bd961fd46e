package engine

import (
	"context"
	"fmt"
	"time"
)

// nodeTimeout resolves the precedence spec.md §6 documents: a per-node
// NodePolicy.Timeout wins, otherwise the engine-wide default applies, and
// zero means unlimited.
func nodeTimeout(policy *NodePolicy, defaultTimeout time.Duration) time.Duration {
	if policy != nil && policy.Timeout > 0 {
		return policy.Timeout
	}
	if defaultTimeout > 0 {
		return defaultTimeout
	}
	return 0
}

// runWithTimeout wraps a single handler dispatch with the resolved
// timeout, returning an EngineError tagged NODE_TIMEOUT when the handler
// doesn't return before its deadline.
func runWithTimeout(ctx context.Context, nodeID string, policy *NodePolicy, defaultTimeout time.Duration, fn func(context.Context) error) error {
	timeout := nodeTimeout(policy, defaultTimeout)
	if timeout == 0 {
		return fn(ctx)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(timeoutCtx)
	if err != nil && timeoutCtx.Err() == context.DeadlineExceeded {
		return &EngineError{
			Message: fmt.Sprintf("node %s exceeded timeout of %v", nodeID, timeout),
			Code:    "NODE_TIMEOUT",
			NodeID:  nodeID,
		}
	}
	return err
}
