package engine

import (
	"testing"
	"time"
)

func TestOptionsApplyOverDefaults(t *testing.T) {
	cfg := newEngineConfig()
	opts := []Option{
		WithMaxConcurrentNodes(4),
		WithQueueDepth(50),
		WithMaxIterations(200),
		WithDefaultNodeTimeout(2 * time.Second),
	}
	for _, o := range opts {
		if err := o(cfg); err != nil {
			t.Fatalf("option: %v", err)
		}
	}
	if cfg.maxConcurrentNodes != 4 {
		t.Errorf("maxConcurrentNodes = %d, want 4", cfg.maxConcurrentNodes)
	}
	if cfg.queueDepth != 50 {
		t.Errorf("queueDepth = %d, want 50", cfg.queueDepth)
	}
	if cfg.maxIterations != 200 {
		t.Errorf("maxIterations = %d, want 200", cfg.maxIterations)
	}
	if cfg.defaultNodeTimeout != 2*time.Second {
		t.Errorf("defaultNodeTimeout = %v, want 2s", cfg.defaultNodeTimeout)
	}
}

func TestWithNodePolicyRejectsInvalidRetry(t *testing.T) {
	cfg := newEngineConfig()
	opt := WithNodePolicy("P", &NodePolicy{Retry: &RetryPolicy{MaxAttempts: 0}})
	if err := opt(cfg); err == nil {
		t.Fatal("expected an error for an invalid retry policy")
	}
}

func TestWithNodePolicyStoresValidPolicy(t *testing.T) {
	cfg := newEngineConfig()
	policy := &NodePolicy{Timeout: time.Second}
	if err := WithNodePolicy("P", policy)(cfg); err != nil {
		t.Fatalf("option: %v", err)
	}
	if cfg.policies["P"] != policy {
		t.Fatal("node policy was not stored")
	}
}
