package engine

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/dipeo/engine/diagram"
	"github.com/dipeo/engine/state"
)

// Resolver implements the Input Resolver (C7): turning a node's live
// incoming edges into the single input bundle its handler receives. It is
// pure — same diagram, same state, same node always yields the same
// bundle — and shares its edge-liveness rules with the flow controller so
// "ready" and "resolvable" never disagree about which edges count.
type Resolver struct{}

// Resolve builds the input map a handler receives for n, keyed by input
// handle name. Edges whose source is a condition node are live only on the
// branch that fired; edges through transforms are evaluated with goja.
// A node with no live incoming edges (a start node, or any node with no
// declared incoming edges at all) resolves to an empty, non-nil map.
func (r Resolver) Resolve(d *diagram.Diagram, n diagram.Node, st *state.ExecutionState) (map[string]any, error) {
	bundle := make(map[string]any)

	for _, e := range consideredEdges(d, n, st) {
		value, live, err := resolveEdgeValue(d, e, st)
		if err != nil {
			return nil, fmt.Errorf("resolve edge %s->%s: %w", e.FromNodeID, e.ToNodeID, err)
		}
		if !live {
			continue
		}
		bundle[e.TargetHandle()] = value
	}

	return bundle, nil
}

// resolveEdgeValue extracts the value an edge carries, applying its
// transform if any. live is false when the edge's source is a condition
// node whose fired branch doesn't match this edge — the edge contributes
// nothing to the bundle, same as if it were absent from the diagram.
func resolveEdgeValue(d *diagram.Diagram, e diagram.Edge, st *state.ExecutionState) (value any, live bool, err error) {
	srcNode, ok := d.GetNode(e.FromNodeID)
	if !ok {
		return nil, false, nil
	}

	out, hasOutput := st.NodeOutputs[e.FromNodeID]
	if !hasOutput {
		return nil, false, nil
	}

	if srcNode.Type == diagram.NodeCondition {
		if out.ConditionBranch() != e.SourceHandle() {
			return nil, false, nil
		}
	}

	raw, ok := out.Value[e.SourceHandle()]
	if !ok {
		raw, ok = out.Value["default"]
		if !ok {
			// Neither the named handle nor "default" is present: this edge
			// is skipped, not a failure (§4.6) — it contributes nothing to
			// the bundle, the same as if it were absent from the diagram.
			return nil, false, nil
		}
	}

	if e.Transform == nil {
		return raw, true, nil
	}

	transformed, err := evalTransform(e.Transform.Expression, raw)
	if err != nil {
		return nil, false, err
	}
	return transformed, true, nil
}

// evalTransform runs a single JavaScript expression with "value" bound to
// raw, returning the expression's result. A fresh runtime is used per call:
// transforms are short, infrequent relative to node execution, and this
// keeps the resolver free of shared mutable state.
func evalTransform(expression string, raw any) (any, error) {
	vm := goja.New()
	if err := vm.Set("value", raw); err != nil {
		return nil, fmt.Errorf("bind transform input: %w", err)
	}
	result, err := vm.RunString(expression)
	if err != nil {
		return nil, fmt.Errorf("evaluate transform: %w", err)
	}
	return result.Export(), nil
}
