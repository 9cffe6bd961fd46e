package diagram

import "sort"

// Diagram is the compiled, read-only graph an execution runs against. It is
// built once via Compile and shared (read-only) across however many
// executions run the same workflow concurrently.
type Diagram struct {
	ID string

	nodes       map[string]Node
	nodeOrder   []string // insertion order, used for deterministic iteration
	incoming    map[string][]Edge
	outgoing    map[string][]Edge
	startNodes  []string
	endpointIDs []string
}

// Compile validates and freezes a node/edge set into a Diagram.
//
// Validation enforces the invariants spec.md §3 requires:
//   - every edge endpoint exists,
//   - start nodes have no incoming edges,
//   - endpoint nodes have no outgoing edges.
//
// Cycles are permitted and are not checked for here; they express the
// iteration loops the flow controller resolves at runtime.
func Compile(id string, nodes []Node, edges []Edge) (*Diagram, error) {
	d := &Diagram{
		ID:       id,
		nodes:    make(map[string]Node, len(nodes)),
		incoming: make(map[string][]Edge),
		outgoing: make(map[string][]Edge),
	}

	var errs ValidationErrors

	for _, n := range nodes {
		if _, dup := d.nodes[n.ID]; dup {
			errs = append(errs, &ValidationError{NodeID: n.ID, Reason: "duplicate node id"})
			continue
		}
		d.nodes[n.ID] = n
		d.nodeOrder = append(d.nodeOrder, n.ID)
		if n.Type == NodeStart {
			d.startNodes = append(d.startNodes, n.ID)
		}
		if n.Type == NodeEndpoint {
			d.endpointIDs = append(d.endpointIDs, n.ID)
		}
	}

	for _, e := range edges {
		if _, ok := d.nodes[e.FromNodeID]; !ok {
			errs = append(errs, &ValidationError{EdgeID: e.ID, Reason: "source node does not exist: " + e.FromNodeID})
			continue
		}
		if _, ok := d.nodes[e.ToNodeID]; !ok {
			errs = append(errs, &ValidationError{EdgeID: e.ID, Reason: "target node does not exist: " + e.ToNodeID})
			continue
		}
		d.outgoing[e.FromNodeID] = append(d.outgoing[e.FromNodeID], e)
		d.incoming[e.ToNodeID] = append(d.incoming[e.ToNodeID], e)
	}

	for _, nodeID := range d.startNodes {
		if len(d.incoming[nodeID]) > 0 {
			errs = append(errs, &ValidationError{NodeID: nodeID, Reason: "start node has incoming edges"})
		}
	}
	for _, nodeID := range d.endpointIDs {
		if len(d.outgoing[nodeID]) > 0 {
			errs = append(errs, &ValidationError{NodeID: nodeID, Reason: "endpoint node has outgoing edges"})
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}

	sort.Strings(d.startNodes)
	sort.Strings(d.endpointIDs)
	return d, nil
}

// GetNode returns the node with the given id.
func (d *Diagram) GetNode(id string) (Node, bool) {
	n, ok := d.nodes[id]
	return n, ok
}

// IncomingEdges returns every edge targeting the given node, in declaration order.
func (d *Diagram) IncomingEdges(nodeID string) []Edge {
	return d.incoming[nodeID]
}

// OutgoingEdges returns every edge sourced from the given node, in declaration order.
func (d *Diagram) OutgoingEdges(nodeID string) []Edge {
	return d.outgoing[nodeID]
}

// NodesOfType returns every node of the given type, in diagram declaration order.
func (d *Diagram) NodesOfType(t NodeType) []Node {
	var out []Node
	for _, id := range d.nodeOrder {
		if n := d.nodes[id]; n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

// StartNodes returns the ids of every start node, sorted for determinism.
func (d *Diagram) StartNodes() []string { return d.startNodes }

// EndpointNodes returns the ids of every endpoint node, sorted for determinism.
func (d *Diagram) EndpointNodes() []string { return d.endpointIDs }

// AllNodes returns every node in declaration order.
func (d *Diagram) AllNodes() []Node {
	out := make([]Node, 0, len(d.nodeOrder))
	for _, id := range d.nodeOrder {
		out = append(out, d.nodes[id])
	}
	return out
}
