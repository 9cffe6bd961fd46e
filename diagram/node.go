// Package diagram holds the immutable, compiled representation of a
// workflow graph: nodes, edges, and the accessors the engine needs to
// drive execution. A Diagram is built once and never mutated afterward,
// so one Diagram can back many executions.
package diagram

// NodeType is a closed set of node kinds the engine understands structurally.
// Handler behavior for each type lives in the handler package; the engine
// itself only needs to know a few types by name (start, endpoint, condition,
// person_job) to apply the readiness and input-resolution rules in spec.
type NodeType string

const (
	NodeStart        NodeType = "start"
	NodePersonJob    NodeType = "person_job"
	NodeCondition    NodeType = "condition"
	NodeCodeJob      NodeType = "code_job"
	NodeAPIJob       NodeType = "api_job"
	NodeDB           NodeType = "db"
	NodeEndpoint     NodeType = "endpoint"
	NodeUserResponse NodeType = "user_response"
)

// HandleKind distinguishes the "first" input handle (used to seed iterative
// nodes separately from their feedback edge) from ordinary handles.
type HandleKind string

const (
	HandleNormal HandleKind = "normal"
	HandleFirst  HandleKind = "first"
)

// InputHandle declares one named input port on a node.
type InputHandle struct {
	Name string
	Kind HandleKind
}

// OutputHandle declares one named output port on a node. Condition nodes
// declare exactly the pair "condtrue"/"condfalse"; other nodes typically
// declare "default" plus any named outputs.
type OutputHandle struct {
	Name string
}

// Node is one unit of work in a diagram. It is immutable once the diagram
// is compiled: handlers never see a pointer they can mutate, only the
// read-only fields below plus inputs resolved fresh on every run.
type Node struct {
	ID     string
	Type   NodeType
	Label  string
	Inputs []InputHandle
	// Outputs declares the node's output handle names. Left empty, a node is
	// assumed to emit a single "default" handle.
	Outputs []OutputHandle
	// Config holds handler-specific static configuration: prompts, code
	// bodies, file paths, HTTP targets, SQL statements, etc. The engine
	// never interprets Config itself; it is opaque payload for the handler.
	Config map[string]any
	// MaxIteration bounds how many times this node may transition into
	// RUNNING. Zero means unbounded (no max_iteration field declared).
	MaxIteration int
}

// HasMaxIteration reports whether this node declares an iteration cap.
func (n Node) HasMaxIteration() bool {
	return n.MaxIteration > 0
}

// InputHandleNames returns the first-vs-normal partition of a node's declared
// input handles, used by the flow controller and input resolver to select
// the correct edge view for a given execution count.
func (n Node) InputHandleNames(kind HandleKind) []string {
	var names []string
	for _, h := range n.Inputs {
		if h.Kind == kind {
			names = append(names, h.Name)
		}
	}
	return names
}

// HasFirstHandle reports whether any declared input handle is the
// reserved "first" handle.
func (n Node) HasFirstHandle() bool {
	for _, h := range n.Inputs {
		if h.Kind == HandleFirst {
			return true
		}
	}
	return false
}
