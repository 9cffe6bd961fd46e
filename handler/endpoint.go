package handler

import (
	"github.com/dipeo/engine/engine"
	"github.com/dipeo/engine/state"
)

// Endpoint is a terminal sink: it passes its resolved input through
// unchanged as output, giving callers inspecting node_outputs[endpoint]
// the execution's final value without every diagram needing a dedicated
// pass-through code_job. No third-party surface to exercise here — see
// DESIGN.md.
type Endpoint struct{}

func (Endpoint) Execute(req engine.ExecRequest) (state.NodeOutput, error) {
	return state.NodeOutput{
		NodeID: req.Node.ID,
		Value:  map[string]any{"default": req.Input},
	}, nil
}
