package diagram

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// Format names the three diagram payload shapes spec.md §6 enumerates.
// All three share the same logical schema (nodes, arrows, persons,
// metadata); "format" only changes how verbose the on-disk encoding is.
type Format string

const (
	FormatLight    Format = "light"
	FormatNative   Format = "native"
	FormatReadable Format = "readable"
)

// rawDiagram is the on-disk shape shared by all three formats.
type rawDiagram struct {
	Nodes    []rawNode              `yaml:"nodes" json:"nodes"`
	Arrows   []rawArrow             `yaml:"arrows" json:"arrows"`
	Persons  map[string]any         `yaml:"persons" json:"persons"`
	Metadata map[string]interface{} `yaml:"metadata" json:"metadata"`
}

type rawNode struct {
	ID           string         `yaml:"id" json:"id"`
	Type         string         `yaml:"type" json:"type"`
	Label        string         `yaml:"label" json:"label"`
	Config       map[string]any `yaml:"config" json:"config"`
	MaxIteration int            `yaml:"max_iteration" json:"max_iteration"`
}

type rawArrow struct {
	ID          string `yaml:"id" json:"id"`
	Source      string `yaml:"source" json:"source"` // encoded "<node_id>_<handle>_output"
	Target      string `yaml:"target" json:"target"` // encoded "<node_id>_<handle>_input"
	Label       string `yaml:"label" json:"label"`
	ContentType string `yaml:"content_type" json:"content_type"`
	Transform   string `yaml:"transform" json:"transform"`
}

// LoadYAML parses a YAML diagram payload (light/native/readable format
// share one schema) and compiles it into a Diagram.
func LoadYAML(id string, data []byte) (*Diagram, error) {
	var raw rawDiagram
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse yaml diagram: %w", err)
	}
	return compileRaw(id, raw)
}

// LoadJSON parses a JSON diagram payload. gjson first checks that a
// top-level "nodes" key is present, so a payload without it gets that
// specific error rather than a generic decode error; yaml.v3 then decodes
// the JSON.
func LoadJSON(id string, data []byte) (*Diagram, error) {
	root := gjson.ParseBytes(data)
	if !root.Get("nodes").Exists() {
		return nil, fmt.Errorf("diagram %s: missing top-level \"nodes\" array", id)
	}
	var raw rawDiagram
	if err := yaml.Unmarshal(data, &raw); err != nil { // yaml.v3 also decodes JSON
		return nil, fmt.Errorf("parse json diagram: %w", err)
	}
	return compileRaw(id, raw)
}

// handleID decodes the "<node_id>_<handle_label>_<direction>" encoding
// spec.md §6 specifies for arrow endpoints.
func handleID(encoded string) (nodeID, handle, direction string) {
	const (
		dirInput  = "_input"
		dirOutput = "_output"
	)
	switch {
	case strings.HasSuffix(encoded, dirInput):
		rest := strings.TrimSuffix(encoded, dirInput)
		nodeID, handle = splitLastUnderscore(rest)
		return nodeID, handle, "input"
	case strings.HasSuffix(encoded, dirOutput):
		rest := strings.TrimSuffix(encoded, dirOutput)
		nodeID, handle = splitLastUnderscore(rest)
		return nodeID, handle, "output"
	default:
		return encoded, "default", ""
	}
}

func splitLastUnderscore(s string) (first, last string) {
	idx := strings.LastIndex(s, "_")
	if idx < 0 {
		return s, "default"
	}
	return s[:idx], s[idx+1:]
}

func compileRaw(id string, raw rawDiagram) (*Diagram, error) {
	nodes := make([]Node, 0, len(raw.Nodes))
	order := make([]string, 0, len(raw.Nodes))
	byID := make(map[string]int, len(raw.Nodes))
	for _, rn := range raw.Nodes {
		byID[rn.ID] = len(nodes)
		order = append(order, rn.ID)
		nodes = append(nodes, Node{
			ID:           rn.ID,
			Type:         NodeType(rn.Type),
			Label:        rn.Label,
			Config:       rn.Config,
			MaxIteration: rn.MaxIteration,
		})
	}

	edges := make([]Edge, 0, len(raw.Arrows))
	seenInput := make(map[string]map[string]bool, len(raw.Nodes))
	seenOutput := make(map[string]map[string]bool, len(raw.Nodes))
	for _, ra := range raw.Arrows {
		fromNode, fromHandle, _ := handleID(ra.Source)
		toNode, toHandle, _ := handleID(ra.Target)

		var transform *Transform
		if ra.Transform != "" {
			transform = &Transform{Expression: ra.Transform}
		}

		ct := ContentType(ra.ContentType)
		if ct == "" {
			ct = ContentObject
		}

		edges = append(edges, Edge{
			ID:          ra.ID,
			FromNodeID:  fromNode,
			FromHandle:  fromHandle,
			ToNodeID:    toNode,
			ToHandle:    toHandle,
			Label:       ra.Label,
			ContentType: ct,
			Transform:   transform,
		})

		// Arrows are the only place a handle's existence and "first"-ness
		// are declared in the on-disk format, so the compiled Node's
		// Inputs/Outputs lists are derived here rather than from rawNode.
		if idx, ok := byID[toNode]; ok {
			if seenInput[toNode] == nil {
				seenInput[toNode] = make(map[string]bool)
			}
			if !seenInput[toNode][toHandle] {
				seenInput[toNode][toHandle] = true
				kind := HandleNormal
				if toHandle == "first" {
					kind = HandleFirst
				}
				nodes[idx].Inputs = append(nodes[idx].Inputs, InputHandle{Name: toHandle, Kind: kind})
			}
		}
		if idx, ok := byID[fromNode]; ok {
			if seenOutput[fromNode] == nil {
				seenOutput[fromNode] = make(map[string]bool)
			}
			if !seenOutput[fromNode][fromHandle] {
				seenOutput[fromNode][fromHandle] = true
				nodes[idx].Outputs = append(nodes[idx].Outputs, OutputHandle{Name: fromHandle})
			}
		}
	}

	return Compile(id, nodes, edges)
}
