package engine

import (
	"math/rand"
	"time"
)

// NodePolicy configures execution behavior for a single node: timeout and
// retry strategy. Handlers don't see this directly — the executor (C9)
// consults it around every dispatch. Unset fields fall back to the
// engine-wide Options defaults.
type NodePolicy struct {
	// Timeout is this node's execution deadline. Zero defers to
	// Options.DefaultNodeTimeout.
	Timeout time.Duration

	// Retry governs automatic retry of transient failures. Nil means no
	// retries — a single FAILED attempt ends the node.
	Retry *RetryPolicy
}

// RetryPolicy configures exponential backoff with jitter for a node whose
// handler returns a retryable error.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts including the first.
	// Must be >= 1; 1 means no retries.
	MaxAttempts int

	// BaseDelay is the starting backoff; each attempt doubles it up to MaxDelay.
	BaseDelay time.Duration

	// MaxDelay caps the exponential growth. Zero means no cap.
	MaxDelay time.Duration

	// Retryable decides whether a given error should trigger another
	// attempt. Nil treats every error as non-retryable.
	Retryable func(error) bool
}

// Validate reports a malformed policy: a non-positive MaxAttempts, or a
// MaxDelay below BaseDelay when both are set.
func (rp *RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return &EngineError{Message: "retry policy: MaxAttempts must be >= 1", Code: "INVALID_RETRY_POLICY"}
	}
	if rp.MaxDelay > 0 && rp.BaseDelay > 0 && rp.MaxDelay < rp.BaseDelay {
		return &EngineError{Message: "retry policy: MaxDelay must be >= BaseDelay", Code: "INVALID_RETRY_POLICY"}
	}
	return nil
}

// computeBackoff returns the delay before the given zero-based retry
// attempt: exponential growth from BaseDelay, capped at MaxDelay, plus
// jitter in [0, BaseDelay) to spread concurrent retries apart.
func computeBackoff(attempt int, base, maxDelay time.Duration, rng *rand.Rand) time.Duration {
	delay := base * (1 << attempt)
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}
	if base <= 0 {
		return delay
	}
	if rng != nil {
		return delay + time.Duration(rng.Int63n(int64(base)))
	}
	return delay + time.Duration(rand.Int63n(int64(base)))
}
