package cost_test

import (
	"strings"
	"testing"

	"github.com/dipeo/engine/cost"
	"github.com/dipeo/engine/state"
)

func TestRecordPricesKnownModel(t *testing.T) {
	tr := cost.New("e1", "USD")

	got := tr.Record("gpt-4o-mini", state.TokenUsage{Input: 1_000_000, Output: 1_000_000}, "nodeA")
	want := 0.15 + 0.60
	if got != want {
		t.Fatalf("Record = %v, want %v", got, want)
	}
	if tr.TotalCost() != want {
		t.Fatalf("TotalCost = %v, want %v", tr.TotalCost(), want)
	}
}

func TestRecordUnpricedModelIsFreeNotFatal(t *testing.T) {
	tr := cost.New("e1", "USD")
	got := tr.Record("some-unlisted-model", state.TokenUsage{Input: 1000, Output: 1000}, "nodeA")
	if got != 0 {
		t.Fatalf("Record(unpriced) = %v, want 0", got)
	}
}

func TestCostByModelAccumulatesAcrossCalls(t *testing.T) {
	tr := cost.New("e1", "USD")
	tr.Record("gpt-4o-mini", state.TokenUsage{Input: 1_000_000}, "a")
	tr.Record("gpt-4o-mini", state.TokenUsage{Input: 1_000_000}, "b")
	tr.Record("claude-3-haiku-20240307", state.TokenUsage{Output: 1_000_000}, "c")

	byModel := tr.CostByModel()
	if got := byModel["gpt-4o-mini"]; got != 0.30 {
		t.Fatalf("CostByModel[gpt-4o-mini] = %v, want 0.30", got)
	}
	if got := byModel["claude-3-haiku-20240307"]; got != 1.25 {
		t.Fatalf("CostByModel[claude-3-haiku-20240307] = %v, want 1.25", got)
	}
}

func TestUsageAggregatesTokens(t *testing.T) {
	tr := cost.New("e1", "USD")
	tr.Record("gpt-4o-mini", state.TokenUsage{Input: 10, Output: 20, Cached: 5}, "a")
	tr.Record("gpt-4o-mini", state.TokenUsage{Input: 10, Output: 20, Cached: 5}, "b")

	got := tr.Usage()
	if got.Input != 20 || got.Output != 40 || got.Cached != 10 {
		t.Fatalf("Usage = %+v, want {20 40 10}", got)
	}
}

func TestSetCustomPricingOverridesRate(t *testing.T) {
	tr := cost.New("e1", "USD")
	tr.SetCustomPricing("house-model", 1.0, 1.0)

	got := tr.Record("house-model", state.TokenUsage{Input: 1_000_000, Output: 1_000_000}, "a")
	if got != 2.0 {
		t.Fatalf("Record(custom-priced) = %v, want 2.0", got)
	}
}

func TestDisableStopsAccumulationWithoutLosingHistory(t *testing.T) {
	tr := cost.New("e1", "USD")
	tr.Record("gpt-4o-mini", state.TokenUsage{Input: 1_000_000}, "a")
	tr.Disable()

	got := tr.Record("gpt-4o-mini", state.TokenUsage{Input: 1_000_000}, "b")
	if got != 0 {
		t.Fatalf("Record after Disable = %v, want 0", got)
	}
	if tr.TotalCost() != 0.15 {
		t.Fatalf("TotalCost after Disable = %v, want 0.15 (unchanged)", tr.TotalCost())
	}
	if len(tr.Calls()) != 1 {
		t.Fatalf("Calls after Disable = %d, want 1 (disabled call not recorded)", len(tr.Calls()))
	}

	tr.Enable()
	tr.Record("gpt-4o-mini", state.TokenUsage{Input: 1_000_000}, "c")
	if tr.TotalCost() != 0.30 {
		t.Fatalf("TotalCost after Enable = %v, want 0.30", tr.TotalCost())
	}
}

func TestCallsReturnsIndependentCopy(t *testing.T) {
	tr := cost.New("e1", "USD")
	tr.Record("gpt-4o-mini", state.TokenUsage{Input: 1_000_000}, "a")

	calls := tr.Calls()
	calls[0].NodeID = "mutated"

	fresh := tr.Calls()
	if fresh[0].NodeID != "a" {
		t.Fatalf("Calls() returned an aliased slice; NodeID = %s, want a", fresh[0].NodeID)
	}
}

func TestStringIncludesExecutionAndTotal(t *testing.T) {
	tr := cost.New("e1", "USD")
	tr.Record("gpt-4o-mini", state.TokenUsage{Input: 1_000_000}, "a")

	s := tr.String()
	if !strings.Contains(s, "e1") {
		t.Fatalf("String() = %q, want it to contain execution id", s)
	}
}
