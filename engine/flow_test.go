package engine

import (
	"testing"
	"time"

	"github.com/dipeo/engine/diagram"
	"github.com/dipeo/engine/state"
)

func linearDiagram(t *testing.T) *diagram.Diagram {
	t.Helper()
	nodes := []diagram.Node{
		{ID: "A", Type: diagram.NodeStart},
		{ID: "B", Type: diagram.NodeCodeJob},
		{ID: "C", Type: diagram.NodeEndpoint},
	}
	edges := []diagram.Edge{
		{ID: "e1", FromNodeID: "A", ToNodeID: "B"},
		{ID: "e2", FromNodeID: "B", ToNodeID: "C"},
	}
	d, err := diagram.Compile("s1", nodes, edges)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return d
}

func TestIsNodeReadyStartNode(t *testing.T) {
	d := linearDiagram(t)
	st := state.New("e1", "s1", []string{"A", "B", "C"}, nil)
	fc := FlowController{}

	a, _ := d.GetNode("A")
	if !fc.IsNodeReady(d, a, st) {
		t.Fatal("start node should be ready with no dependencies")
	}
	b, _ := d.GetNode("B")
	if fc.IsNodeReady(d, b, st) {
		t.Fatal("B should not be ready before A completes")
	}
}

func TestIsNodeReadyAfterUpstreamCompletes(t *testing.T) {
	d := linearDiagram(t)
	st := state.New("e1", "s1", []string{"A", "B", "C"}, nil)
	_ = st.StartNode("A", time.Now())
	_ = st.CompleteNode("A", time.Now(), state.NodeOutput{Value: map[string]any{"default": 1}}, false)

	fc := FlowController{}
	b, _ := d.GetNode("B")
	if !fc.IsNodeReady(d, b, st) {
		t.Fatal("B should be ready once A has COMPLETED")
	}
}

func TestIsNodeReadyRespectsMaxIteration(t *testing.T) {
	nodes := []diagram.Node{{ID: "P", Type: diagram.NodePersonJob, MaxIteration: 1}}
	d, err := diagram.Compile("d", nodes, nil)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	st := state.New("e1", "d", []string{"P"}, nil)
	st.ExecCounts["P"] = 1

	fc := FlowController{}
	p, _ := d.GetNode("P")
	if fc.IsNodeReady(d, p, st) {
		t.Fatal("a node at its max_iteration cap should never be ready again")
	}
}

func TestIsNodeReadyFirstHandleGating(t *testing.T) {
	nodes := []diagram.Node{
		{ID: "S", Type: diagram.NodeStart},
		{ID: "P", Type: diagram.NodePersonJob, Inputs: []diagram.InputHandle{
			{Name: "first", Kind: diagram.HandleFirst},
			{Name: "default", Kind: diagram.HandleNormal},
		}},
		{ID: "D", Type: diagram.NodeCodeJob},
	}
	edges := []diagram.Edge{
		{ID: "e1", FromNodeID: "S", ToNodeID: "P", ToHandle: "first"},
		{ID: "e2", FromNodeID: "D", ToNodeID: "P", ToHandle: "default"},
	}
	d, err := diagram.Compile("d", nodes, edges)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	st := state.New("e1", "d", []string{"S", "P", "D"}, nil)
	fc := FlowController{}
	p, _ := d.GetNode("P")

	// First run: only the "first" edge from S is considered, and S hasn't
	// run yet, so P is not ready.
	if fc.IsNodeReady(d, p, st) {
		t.Fatal("P should not be ready before its seed edge fires")
	}

	_ = st.StartNode("S", time.Now())
	_ = st.CompleteNode("S", time.Now(), state.NodeOutput{Value: map[string]any{"default": 1}}, false)
	if !fc.IsNodeReady(d, p, st) {
		t.Fatal("P should be ready once its first-handle edge source completed, even though D never ran")
	}

	// Second run: only the non-first edge from D matters now.
	_ = st.StartNode("P", time.Now())
	_ = st.CompleteNode("P", time.Now(), state.NodeOutput{Value: map[string]any{"default": 1}}, false)
	st.ResetNode("P")
	if fc.IsNodeReady(d, p, st) {
		t.Fatal("on the second run P should require D, not the first-handle edge, to be satisfied")
	}
}

func TestIsNodeReadyConditionBranchGating(t *testing.T) {
	nodes := []diagram.Node{
		{ID: "K", Type: diagram.NodeCondition},
		{ID: "X", Type: diagram.NodeCodeJob},
		{ID: "Y", Type: diagram.NodeCodeJob},
	}
	edges := []diagram.Edge{
		{ID: "e1", FromNodeID: "K", ToNodeID: "X", FromHandle: "condtrue"},
		{ID: "e2", FromNodeID: "K", ToNodeID: "Y", FromHandle: "condfalse"},
	}
	d, err := diagram.Compile("d", nodes, edges)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	st := state.New("e1", "d", []string{"K", "X", "Y"}, nil)
	falseVal := false
	_ = st.StartNode("K", time.Now())
	_ = st.CompleteNode("K", time.Now(), state.NodeOutput{
		Value:    map[string]any{"condfalse": nil},
		Metadata: state.OutputMetadata{ConditionResult: &falseVal},
	}, false)

	fc := FlowController{}
	x, _ := d.GetNode("X")
	y, _ := d.GetNode("Y")
	if fc.IsNodeReady(d, x, st) {
		t.Fatal("X sits behind the inactive condtrue branch and must not be ready")
	}
	if !fc.IsNodeReady(d, y, st) {
		t.Fatal("Y sits behind the active condfalse branch and should be ready")
	}
}

func TestGetReadyNodesOrdersIndependentNodesByID(t *testing.T) {
	nodes := []diagram.Node{
		{ID: "S", Type: diagram.NodeStart},
		{ID: "B", Type: diagram.NodeCodeJob},
		{ID: "C", Type: diagram.NodeCodeJob},
	}
	edges := []diagram.Edge{
		{ID: "e1", FromNodeID: "B", ToNodeID: "C"},
	}
	d, err := diagram.Compile("d", nodes, edges)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	st := state.New("e1", "d", []string{"S", "B", "C"}, nil)
	_ = st.StartNode("B", time.Now())
	_ = st.CompleteNode("B", time.Now(), state.NodeOutput{Value: map[string]any{"default": 1}}, false)

	fc := FlowController{}
	ready := fc.GetReadyNodes(d, st)
	ids := make([]string, len(ready))
	for i, n := range ready {
		ids[i] = n.ID
	}
	if len(ids) != 2 || ids[0] != "C" || ids[1] != "S" {
		// S has no dependencies at all, C depends on completed B: both ready,
		// neither one feeds the other within this batch, so the tie is broken
		// by node id (C before S).
		t.Fatalf("GetReadyNodes order = %v", ids)
	}
}

func TestShouldContinueFalseWhenAllEndpointsComplete(t *testing.T) {
	d := linearDiagram(t)
	st := state.New("e1", "s1", []string{"A", "B", "C"}, nil)
	for _, id := range []string{"A", "B", "C"} {
		_ = st.StartNode(id, time.Now())
		_ = st.CompleteNode(id, time.Now(), state.NodeOutput{Value: map[string]any{"default": 1}}, false)
	}
	fc := FlowController{}
	if fc.ShouldContinue(d, st, 1, false) {
		t.Fatal("should_continue must be false once every endpoint is COMPLETED")
	}
}

func TestShouldContinueFalseOnIterationCap(t *testing.T) {
	d := linearDiagram(t)
	st := state.New("e1", "s1", []string{"A", "B", "C"}, nil)
	fc := FlowController{MaxIterations: 5}
	if fc.ShouldContinue(d, st, 5, true) {
		t.Fatal("should_continue must respect the global iteration cap")
	}
}

func TestShouldContinueFalseOnDeadlock(t *testing.T) {
	nodes := []diagram.Node{
		{ID: "A", Type: diagram.NodeCodeJob},
		{ID: "B", Type: diagram.NodeCodeJob},
	}
	edges := []diagram.Edge{{ID: "e1", FromNodeID: "A", ToNodeID: "B"}}
	d, err := diagram.Compile("d", nodes, edges)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	// A has no incoming edges but is not a start node, so it still needs no
	// dependency to be ready (no considered edges). To force a genuine
	// deadlock we mark A FAILED, leaving B permanently blocked.
	st := state.New("e1", "d", []string{"A", "B"}, nil)
	_ = st.StartNode("A", time.Now())
	_ = st.FailNode("A", time.Now(), "boom")

	fc := FlowController{}
	if fc.ShouldContinue(d, st, 0, false) {
		t.Fatal("no ready nodes and none running with incomplete endpoints is a deadlock")
	}
}

func TestResetForLoopReopensCycleAfterCondFalse(t *testing.T) {
	// P -> D -> K -(condfalse)-> P, K -(condtrue)-> E
	nodes := []diagram.Node{
		{ID: "S", Type: diagram.NodeStart},
		{ID: "P", Type: diagram.NodePersonJob, MaxIteration: 3, Inputs: []diagram.InputHandle{
			{Name: "first", Kind: diagram.HandleFirst},
			{Name: "default", Kind: diagram.HandleNormal},
		}},
		{ID: "D", Type: diagram.NodeCodeJob},
		{ID: "K", Type: diagram.NodeCondition},
		{ID: "E", Type: diagram.NodeEndpoint},
	}
	edges := []diagram.Edge{
		{ID: "e1", FromNodeID: "S", ToNodeID: "P", ToHandle: "first"},
		{ID: "e2", FromNodeID: "P", ToNodeID: "D"},
		{ID: "e3", FromNodeID: "D", ToNodeID: "K"},
		{ID: "e4", FromNodeID: "K", ToNodeID: "P", FromHandle: "condfalse"},
		{ID: "e5", FromNodeID: "K", ToNodeID: "E", FromHandle: "condtrue"},
	}
	d, err := diagram.Compile("d", nodes, edges)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	st := state.New("e1", "d", []string{"S", "P", "D", "K", "E"}, nil)

	for _, id := range []string{"S", "P", "D"} {
		_ = st.StartNode(id, time.Now())
		_ = st.CompleteNode(id, time.Now(), state.NodeOutput{Value: map[string]any{"default": 1}}, false)
	}
	falseVal := false
	_ = st.StartNode("K", time.Now())
	_ = st.CompleteNode("K", time.Now(), state.NodeOutput{
		Value:    map[string]any{"condfalse": 1},
		Metadata: state.OutputMetadata{ConditionResult: &falseVal},
	}, false)

	fc := FlowController{}
	fc.ResetForLoop(d, st, "K")

	if st.NodeStates["P"].Status != state.StatusPending {
		t.Fatalf("P should be reset to PENDING so the feedback edge can re-fire, got %s", st.NodeStates["P"].Status)
	}
	if st.NodeStates["D"].Status != state.StatusPending {
		t.Fatalf("D sits on the same cycle and should also be reset, got %s", st.NodeStates["D"].Status)
	}
	if _, ok := st.NodeOutputs["P"]; ok {
		t.Fatal("P6: reset must clear the stored output")
	}
	if st.NodeStates["S"].Status != state.StatusCompleted {
		t.Fatal("S is not on the cycle and must stay COMPLETED")
	}
}

func TestResetForLoopNeverResetsStartOrEndpoint(t *testing.T) {
	nodes := []diagram.Node{
		{ID: "S", Type: diagram.NodeStart},
		{ID: "E", Type: diagram.NodeEndpoint},
	}
	edges := []diagram.Edge{
		{ID: "e1", FromNodeID: "S", ToNodeID: "E"},
	}
	d, err := diagram.Compile("d", nodes, edges)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	st := state.New("e1", "d", []string{"S", "E"}, nil)
	_ = st.StartNode("S", time.Now())
	_ = st.CompleteNode("S", time.Now(), state.NodeOutput{Value: map[string]any{"default": 1}}, false)
	_ = st.StartNode("E", time.Now())
	_ = st.CompleteNode("E", time.Now(), state.NodeOutput{Value: map[string]any{"default": 1}}, false)

	fc := FlowController{}
	fc.ResetForLoop(d, st, "S")

	if st.NodeStates["E"].Status != state.StatusCompleted {
		t.Fatal("endpoint nodes must never be reset by a loop-reset pass")
	}
}

func TestResetForLoopSkipsExhaustedPersonJob(t *testing.T) {
	nodes := []diagram.Node{
		{ID: "P", Type: diagram.NodePersonJob, MaxIteration: 1},
		{ID: "K", Type: diagram.NodeCondition},
	}
	edges := []diagram.Edge{
		{ID: "e1", FromNodeID: "P", ToNodeID: "K"},
		{ID: "e2", FromNodeID: "K", ToNodeID: "P", FromHandle: "condfalse"},
	}
	d, err := diagram.Compile("d", nodes, edges)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	st := state.New("e1", "d", []string{"P", "K"}, nil)
	_ = st.StartNode("P", time.Now())
	_ = st.CompleteNode("P", time.Now(), state.NodeOutput{Value: map[string]any{"default": 1}}, false)
	falseVal := false
	_ = st.StartNode("K", time.Now())
	_ = st.CompleteNode("K", time.Now(), state.NodeOutput{
		Value:    map[string]any{"condfalse": 1},
		Metadata: state.OutputMetadata{ConditionResult: &falseVal},
	}, false)

	fc := FlowController{}
	fc.ResetForLoop(d, st, "K")

	if st.NodeStates["P"].Status != state.StatusCompleted {
		t.Fatal("a person_job that exhausted max_iteration must not be reset back into the loop")
	}
}

