package diagram

import "testing"

const lightYAML = `
nodes:
  - id: S
    type: start
  - id: P
    type: person_job
    max_iteration: 3
  - id: K
    type: condition
    config:
      expr: "inputs.done == true"
  - id: E
    type: endpoint
arrows:
  - id: a1
    source: S_default_output
    target: P_first_input
  - id: a2
    source: P_default_output
    target: K_default_input
  - id: a3
    source: K_condfalse_output
    target: P_default_input
  - id: a4
    source: K_condtrue_output
    target: E_default_input
`

func TestLoadYAMLDerivesFirstHandle(t *testing.T) {
	d, err := LoadYAML("s2", []byte(lightYAML))
	if err != nil {
		t.Fatalf("LoadYAML: %v", err)
	}

	p, ok := d.GetNode("P")
	if !ok {
		t.Fatal("node P missing")
	}
	if !p.HasFirstHandle() {
		t.Fatal("HasFirstHandle() = false, want true (arrow a1 targets P_first_input)")
	}
	if p.MaxIteration != 3 {
		t.Fatalf("MaxIteration = %d, want 3", p.MaxIteration)
	}

	incoming := d.IncomingEdges("P")
	if len(incoming) != 2 {
		t.Fatalf("IncomingEdges(P) = %d edges, want 2", len(incoming))
	}
	var sawFirst, sawDefault bool
	for _, e := range incoming {
		switch e.TargetHandle() {
		case "first":
			sawFirst = true
			if e.FromNodeID != "S" {
				t.Errorf("first edge source = %s, want S", e.FromNodeID)
			}
		case "default":
			sawDefault = true
			if e.FromNodeID != "K" || e.SourceHandle() != "condfalse" {
				t.Errorf("feedback edge = %+v", e)
			}
		}
	}
	if !sawFirst || !sawDefault {
		t.Fatalf("incoming edges = %+v, missing first or default handle", incoming)
	}
}

func TestLoadJSONRejectsMissingNodes(t *testing.T) {
	_, err := LoadJSON("bad", []byte(`{"arrows": []}`))
	if err == nil {
		t.Fatal("expected error for missing top-level nodes array")
	}
}

func TestLoadJSONRoundTrip(t *testing.T) {
	payload := []byte(`{
		"nodes": [
			{"id": "A", "type": "start"},
			{"id": "B", "type": "endpoint"}
		],
		"arrows": [
			{"id": "e1", "source": "A_default_output", "target": "B_default_input"}
		]
	}`)
	d, err := LoadJSON("json1", payload)
	if err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if _, ok := d.GetNode("A"); !ok {
		t.Fatal("node A missing after JSON load")
	}
}

func TestHandleIDDecoding(t *testing.T) {
	cases := []struct {
		encoded  string
		nodeID   string
		handle   string
		direction string
	}{
		{"node1_first_input", "node1", "first", "input"},
		{"node1_default_output", "node1", "default", "output"},
		{"bareid", "bareid", "default", ""},
	}
	for _, c := range cases {
		nodeID, handle, direction := handleID(c.encoded)
		if nodeID != c.nodeID || handle != c.handle || direction != c.direction {
			t.Errorf("handleID(%q) = (%q,%q,%q), want (%q,%q,%q)",
				c.encoded, nodeID, handle, direction, c.nodeID, c.handle, c.direction)
		}
	}
}
