package engine

import "time"

// Option configures an Engine at construction time, following the
// teacher's functional-options pattern: chainable, self-documenting, and
// additive over the zero-value config.
type Option func(*engineConfig) error

type engineConfig struct {
	maxConcurrentNodes int
	queueDepth         int
	maxIterations      int
	defaultNodeTimeout time.Duration
	policies           map[string]*NodePolicy
}

func newEngineConfig() *engineConfig {
	return &engineConfig{policies: make(map[string]*NodePolicy)}
}

// WithMaxConcurrentNodes bounds how many nodes the iterator dispatches in
// parallel within a single step. Default: DefaultMaxConcurrentNodes.
func WithMaxConcurrentNodes(n int) Option {
	return func(cfg *engineConfig) error {
		cfg.maxConcurrentNodes = n
		return nil
	}
}

// WithQueueDepth sets the iterator's QueueDepth, which is stored but not
// consulted: each step's frontier is sized to that step's ready set.
func WithQueueDepth(n int) Option {
	return func(cfg *engineConfig) error {
		cfg.queueDepth = n
		return nil
	}
}

// WithMaxIterations caps how many steps the iterator will take before
// failing with ErrIterationCapExceeded. Default: DefaultMaxIterations.
func WithMaxIterations(n int) Option {
	return func(cfg *engineConfig) error {
		cfg.maxIterations = n
		return nil
	}
}

// WithDefaultNodeTimeout sets the engine-wide per-node timeout applied
// when a node has no NodePolicy.Timeout of its own. Zero means unlimited.
func WithDefaultNodeTimeout(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		cfg.defaultNodeTimeout = d
		return nil
	}
}

// WithNodePolicy attaches a NodePolicy (timeout/retry override) to a
// specific node id.
func WithNodePolicy(nodeID string, policy *NodePolicy) Option {
	return func(cfg *engineConfig) error {
		if policy != nil {
			if policy.Retry != nil {
				if err := policy.Retry.Validate(); err != nil {
					return err
				}
			}
		}
		cfg.policies[nodeID] = policy
		return nil
	}
}
