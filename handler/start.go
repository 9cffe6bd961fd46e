// Package handler provides the concrete node handler implementations the
// executor (C9) dispatches to through engine.HandlerRegistry: start,
// endpoint, code_job, condition, api_job, db, person_job, and
// user_response. Each handler implements engine.Handler and is
// deliberately narrow — it reads req.Input and req.Node.Config and
// returns a state.NodeOutput, never touching state.ExecutionState itself.
package handler

import (
	"github.com/dipeo/engine/engine"
	"github.com/dipeo/engine/state"
)

// Start produces the execution's initial variables as its default output,
// so downstream nodes that wire a "first" edge off the start node receive
// the run's seed input without a separate bootstrap step.
type Start struct{}

func (Start) Execute(req engine.ExecRequest) (state.NodeOutput, error) {
	return state.NodeOutput{
		NodeID: req.Node.ID,
		Value:  map[string]any{"default": req.Variables},
	}, nil
}
