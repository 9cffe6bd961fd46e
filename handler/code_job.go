package handler

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/dipeo/engine/engine"
	"github.com/dipeo/engine/state"
)

// CodeJob executes a node's "code" config field as a JavaScript function
// body, with the resolved input bundle bound as "inputs" and execution
// variables bound as "variables". Whatever the body returns becomes the
// node's default output — a plain object return, e.g. "return {x: 1}",
// produces node_outputs[n] == {default: {x: 1}}.
//
// Each call gets a fresh goja.New() VM, the same discipline
// engine/resolve.go uses for transform expressions, so concurrent
// code_job executions in the same step never share interpreter state.
type CodeJob struct{}

func (CodeJob) Execute(req engine.ExecRequest) (state.NodeOutput, error) {
	code, _ := req.Node.Config["code"].(string)

	vm := goja.New()
	if err := vm.Set("inputs", req.Input); err != nil {
		return state.NodeOutput{}, fmt.Errorf("bind code_job inputs: %w", err)
	}
	if err := vm.Set("variables", req.Variables); err != nil {
		return state.NodeOutput{}, fmt.Errorf("bind code_job variables: %w", err)
	}

	result, err := vm.RunString("(function(){\n" + code + "\n})()")
	if err != nil {
		return state.NodeOutput{}, fmt.Errorf("run code_job %s: %w", req.Node.ID, err)
	}

	return state.NodeOutput{
		NodeID: req.Node.ID,
		Value:  map[string]any{"default": result.Export()},
	}, nil
}
