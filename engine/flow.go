package engine

import (
	"sort"

	"github.com/dipeo/engine/diagram"
	"github.com/dipeo/engine/state"
)

// FlowController implements the pure readiness logic (C6): which nodes can
// run now given a diagram and an execution state, and the loop-reset pass
// that lets feedback edges re-fire. Apart from ResetForLoop, which edits the
// state passed to it, every method only reads its arguments — no field on
// FlowController itself is mutated by a run, so one
// instance is safely shared across concurrent executions of the same
// diagram shape.
type FlowController struct {
	// MaxIterations caps the number of steps the iterator will take before
	// should_continue is forced false with ErrIterationCapExceeded. Zero
	// falls back to DefaultMaxIterations.
	MaxIterations int
}

// DefaultMaxIterations matches DIPEO_MAX_ITERATIONS's documented default.
const DefaultMaxIterations = 150

func (fc FlowController) maxIterations() int {
	if fc.MaxIterations > 0 {
		return fc.MaxIterations
	}
	return DefaultMaxIterations
}

// consideredEdges returns the incoming edges that matter for this node at
// its current exec count: for a node with a reserved "first" input handle,
// only "first"-targeted edges on the first run, only non-"first" edges on
// every subsequent run. Nodes without a "first" handle consider every
// incoming edge. This is the "two views over incoming edges, selected by
// exec_counts[n] == 0" design spec.md §9 calls for.
func consideredEdges(d *diagram.Diagram, n diagram.Node, st *state.ExecutionState) []diagram.Edge {
	incoming := d.IncomingEdges(n.ID)
	if !n.HasFirstHandle() {
		return incoming
	}
	firstRun := st.ExecCounts[n.ID] == 0
	out := make([]diagram.Edge, 0, len(incoming))
	for _, e := range incoming {
		isFirstHandle := e.TargetHandle() == "first"
		if firstRun == isFirstHandle {
			out = append(out, e)
		}
	}
	return out
}

// edgeSatisfied reports whether a single considered edge's dependency is
// met: for an edge sourced from a condition node, only if the condition's
// last output branch matches this edge's source handle; otherwise only if
// the source node has COMPLETED.
func edgeSatisfied(d *diagram.Diagram, e diagram.Edge, st *state.ExecutionState) bool {
	srcNode, ok := d.GetNode(e.FromNodeID)
	if !ok {
		return false
	}
	if srcNode.Type == diagram.NodeCondition {
		out, hasOutput := st.NodeOutputs[e.FromNodeID]
		if !hasOutput {
			return false
		}
		return out.ConditionBranch() == e.SourceHandle()
	}
	return st.NodeStates[e.FromNodeID].Status == state.StatusCompleted
}

// IsNodeReady implements the three conditions spec.md §4.5 names: PENDING
// status, iteration budget remaining, and every considered dependency
// satisfied.
func (fc FlowController) IsNodeReady(d *diagram.Diagram, n diagram.Node, st *state.ExecutionState) bool {
	if st.NodeStates[n.ID].Status != state.StatusPending {
		return false
	}
	if n.HasMaxIteration() && st.ExecCounts[n.ID] >= n.MaxIteration {
		return false
	}
	if n.Type == diagram.NodeStart {
		return true
	}

	considered := consideredEdges(d, n, st)
	for _, e := range considered {
		if !edgeSatisfied(d, e, st) {
			return false
		}
	}
	return true
}

// GetReadyNodes returns every ready node, ordered so a node that feeds
// another ready node in the same batch precedes its consumer — a
// deterministic topological sort restricted to the ready set.
func (fc FlowController) GetReadyNodes(d *diagram.Diagram, st *state.ExecutionState) []diagram.Node {
	var ready []diagram.Node
	for _, n := range d.AllNodes() {
		if fc.IsNodeReady(d, n, st) {
			ready = append(ready, n)
		}
	}
	if len(ready) <= 1 {
		return ready
	}

	readySet := make(map[string]bool, len(ready))
	for _, n := range ready {
		readySet[n.ID] = true
	}

	// Kahn's algorithm restricted to edges between two ready nodes.
	indeg := make(map[string]int, len(ready))
	for _, n := range ready {
		indeg[n.ID] = 0
	}
	for _, n := range ready {
		for _, e := range d.OutgoingEdges(n.ID) {
			if readySet[e.ToNodeID] {
				indeg[e.ToNodeID]++
			}
		}
	}

	byID := make(map[string]diagram.Node, len(ready))
	for _, n := range ready {
		byID[n.ID] = n
	}

	var queue []string
	for _, n := range ready {
		if indeg[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}
	sort.Strings(queue)

	var ordered []diagram.Node
	seen := make(map[string]bool, len(ready))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		ordered = append(ordered, byID[id])

		var next []string
		for _, e := range d.OutgoingEdges(id) {
			if !readySet[e.ToNodeID] || seen[e.ToNodeID] {
				continue
			}
			indeg[e.ToNodeID]--
			if indeg[e.ToNodeID] == 0 {
				next = append(next, e.ToNodeID)
			}
		}
		sort.Strings(next)
		queue = append(queue, next...)
		sort.Strings(queue)
	}

	// Any ready node not reached by Kahn's algorithm sits on a cycle
	// entirely within the ready set; append it in deterministic id order.
	if len(ordered) < len(ready) {
		var leftover []string
		for _, n := range ready {
			if !seen[n.ID] {
				leftover = append(leftover, n.ID)
			}
		}
		sort.Strings(leftover)
		for _, id := range leftover {
			ordered = append(ordered, byID[id])
		}
	}

	return ordered
}

// ShouldContinue reports whether the iterator should keep stepping.
// running reports whether any node is currently RUNNING (the caller
// supplies this; the flow controller has no notion of in-flight work).
func (fc FlowController) ShouldContinue(d *diagram.Diagram, st *state.ExecutionState, stepsTaken int, running bool) bool {
	if stepsTaken >= fc.maxIterations() {
		return false
	}
	if fc.allEndpointsComplete(d, st) {
		return false
	}
	if !running && len(fc.GetReadyNodes(d, st)) == 0 {
		return false
	}
	return true
}

func (fc FlowController) allEndpointsComplete(d *diagram.Diagram, st *state.ExecutionState) bool {
	endpoints := d.EndpointNodes()
	if len(endpoints) == 0 {
		return false
	}
	for _, id := range endpoints {
		if st.NodeStates[id].Status != state.StatusCompleted {
			return false
		}
	}
	return true
}

// ResetForLoop implements the loop-reset pass (§4.5): downstream nodes that
// already COMPLETED and sit on a cycle reachable from the just-completed
// node return to PENDING with their output cleared, letting a feedback
// edge re-fire the loop. start/endpoint nodes and person_job nodes that
// have exhausted max_iteration are never reset. A per-call visited set
// guards against the re-entrant double-reset the Open Questions note
// flags for interleaved condition cycles.
func (fc FlowController) ResetForLoop(d *diagram.Diagram, st *state.ExecutionState, completedNodeID string) {
	reachableForward := reachableSet(d, completedNodeID, true)
	visited := make(map[string]bool)
	for candidate := range reachableForward {
		if candidate == completedNodeID || visited[candidate] {
			continue
		}
		visited[candidate] = true

		n, ok := d.GetNode(candidate)
		if !ok {
			continue
		}
		if n.Type == diagram.NodeStart || n.Type == diagram.NodeEndpoint {
			continue
		}
		if st.NodeStates[candidate].Status != state.StatusCompleted {
			continue
		}
		if n.Type == diagram.NodePersonJob && n.HasMaxIteration() && st.ExecCounts[candidate] >= n.MaxIteration {
			continue
		}

		// On a cycle only if completedNodeID is reachable back from candidate.
		if !reachableSet(d, candidate, true)[completedNodeID] {
			continue
		}
		st.ResetNode(candidate)
	}
}

// reachableSet returns every node reachable from start by following
// outgoing edges (forward=true). start itself is included.
func reachableSet(d *diagram.Diagram, start string, forward bool) map[string]bool {
	visited := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		var edges []diagram.Edge
		if forward {
			edges = d.OutgoingEdges(id)
		} else {
			edges = d.IncomingEdges(id)
		}
		for _, e := range edges {
			next := e.ToNodeID
			if !forward {
				next = e.FromNodeID
			}
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return visited
}
