// Package cost prices LLM token usage against a static per-model rate
// table and accumulates per-execution totals for reporting. Token
// aggregation itself (I5) lives on state.ExecutionState; Tracker only
// turns those counts into money and keeps a call-level audit trail.
package cost

import (
	"fmt"
	"sync"
	"time"

	"github.com/dipeo/engine/state"
)

// ModelPricing is USD cost per 1M tokens, input and output priced
// separately since output tokens run several times more expensive across
// every provider in defaultPricing.
type ModelPricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// defaultPricing covers the models the llm package's three provider
// adapters default to or commonly target. Prices are current as of this
// writing and are expected to drift; SetCustomPricing overrides without
// a code change.
var defaultPricing = map[string]ModelPricing{
	"gpt-4o":                 {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-2024-08-06":      {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-mini":            {InputPer1M: 0.15, OutputPer1M: 0.60},
	"gpt-4-turbo":            {InputPer1M: 10.00, OutputPer1M: 30.00},
	"gpt-4-turbo-2024-04-09": {InputPer1M: 10.00, OutputPer1M: 30.00},
	"gpt-3.5-turbo":          {InputPer1M: 0.50, OutputPer1M: 1.50},

	"claude-sonnet-4-5-20250929": {InputPer1M: 3.00, OutputPer1M: 15.00},
	"claude-3-5-sonnet-20241022": {InputPer1M: 3.00, OutputPer1M: 15.00},
	"claude-3-opus-20240229":     {InputPer1M: 15.00, OutputPer1M: 75.00},
	"claude-3-sonnet-20240229":   {InputPer1M: 3.00, OutputPer1M: 15.00},
	"claude-3-haiku-20240307":    {InputPer1M: 0.25, OutputPer1M: 1.25},

	"gemini-2.5-flash": {InputPer1M: 0.30, OutputPer1M: 2.50},
	"gemini-1.5-pro":   {InputPer1M: 1.25, OutputPer1M: 5.00},
	"gemini-1.5-flash": {InputPer1M: 0.075, OutputPer1M: 0.30},
	"gemini-1.0-pro":   {InputPer1M: 0.50, OutputPer1M: 1.50},
}

// Call records one priced LLM invocation.
type Call struct {
	Model     string
	Usage     state.TokenUsage
	CostUSD   float64
	Timestamp time.Time
	NodeID    string
}

// Tracker accumulates priced LLM calls for one execution. Safe for
// concurrent use: person_job nodes in the same step may record
// concurrently.
type Tracker struct {
	ExecutionID string
	Currency    string

	mu         sync.RWMutex
	pricing    map[string]ModelPricing
	calls      []Call
	totalCost  float64
	modelCosts map[string]float64
	usage      state.TokenUsage
	enabled    bool
}

// New returns a Tracker for executionID using the default pricing table.
func New(executionID, currency string) *Tracker {
	pricing := make(map[string]ModelPricing, len(defaultPricing))
	for k, v := range defaultPricing {
		pricing[k] = v
	}
	return &Tracker{
		ExecutionID: executionID,
		Currency:    currency,
		pricing:     pricing,
		modelCosts:  make(map[string]float64),
		enabled:     true,
	}
}

// Record prices usage against model's rate and appends the call to the
// audit trail. An unpriced model records at zero cost rather than
// failing the node — cost tracking must never block execution.
func (t *Tracker) Record(model string, usage state.TokenUsage, nodeID string) float64 {
	if !t.enabled {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	pricing := t.pricing[model]
	inputCost := (float64(usage.Input) / 1_000_000.0) * pricing.InputPer1M
	outputCost := (float64(usage.Output) / 1_000_000.0) * pricing.OutputPer1M
	callCost := inputCost + outputCost

	t.calls = append(t.calls, Call{Model: model, Usage: usage, CostUSD: callCost, Timestamp: time.Now(), NodeID: nodeID})
	t.totalCost += callCost
	t.modelCosts[model] += callCost
	t.usage = t.usage.Add(usage)
	return callCost
}

// TotalCost returns the cumulative cost across every recorded call.
func (t *Tracker) TotalCost() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalCost
}

// CostByModel returns a copy of the per-model cost breakdown.
func (t *Tracker) CostByModel() map[string]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]float64, len(t.modelCosts))
	for k, v := range t.modelCosts {
		out[k] = v
	}
	return out
}

// Calls returns a copy of the recorded call history.
func (t *Tracker) Calls() []Call {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Call, len(t.calls))
	copy(out, t.calls)
	return out
}

// Usage returns the cumulative token usage across every recorded call.
func (t *Tracker) Usage() state.TokenUsage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.usage
}

// SetCustomPricing overrides the rate for model, for deployments on
// enterprise or negotiated pricing.
func (t *Tracker) SetCustomPricing(model string, inputPer1M, outputPer1M float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pricing[model] = ModelPricing{InputPer1M: inputPer1M, OutputPer1M: outputPer1M}
}

// Disable stops Record from accumulating cost, without losing history.
func (t *Tracker) Disable() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = false
}

// Enable re-enables tracking after Disable.
func (t *Tracker) Enable() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = true
}

func (t *Tracker) String() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return fmt.Sprintf("Tracker{execution: %s, calls: %d, total: $%.4f %s}",
		t.ExecutionID, len(t.calls), t.totalCost, t.Currency)
}
