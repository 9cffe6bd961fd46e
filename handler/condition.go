package handler

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/dipeo/engine/engine"
	"github.com/dipeo/engine/state"
)

// Condition evaluates a node's "expr" config field as a JavaScript
// boolean expression, with the resolved input bundle bound as "inputs",
// and tags its output under exactly one of the condtrue/condfalse output
// handles per spec.
type Condition struct{}

func (Condition) Execute(req engine.ExecRequest) (state.NodeOutput, error) {
	expr, _ := req.Node.Config["expr"].(string)

	vm := goja.New()
	if err := vm.Set("inputs", req.Input); err != nil {
		return state.NodeOutput{}, fmt.Errorf("bind condition inputs: %w", err)
	}

	result, err := vm.RunString(expr)
	if err != nil {
		return state.NodeOutput{}, fmt.Errorf("evaluate condition %s: %w", req.Node.ID, err)
	}
	branchTrue := result.ToBoolean()

	branch := "condfalse"
	if branchTrue {
		branch = "condtrue"
	}

	return state.NodeOutput{
		NodeID: req.Node.ID,
		Value:  map[string]any{branch: req.Input},
		Metadata: state.OutputMetadata{
			ConditionResult: &branchTrue,
		},
	}, nil
}
