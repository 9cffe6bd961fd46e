package diagram

import "fmt"

// ValidationError reports one structural defect found while compiling a
// diagram. Compilation collects every defect it can find rather than
// stopping at the first one, so a caller can fix a diagram in one pass.
type ValidationError struct {
	NodeID string
	EdgeID string
	Reason string
}

func (e *ValidationError) Error() string {
	switch {
	case e.EdgeID != "":
		return fmt.Sprintf("edge %s: %s", e.EdgeID, e.Reason)
	case e.NodeID != "":
		return fmt.Sprintf("node %s: %s", e.NodeID, e.Reason)
	default:
		return e.Reason
	}
}

// ValidationErrors aggregates every ValidationError found during Compile.
type ValidationErrors []*ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 1 {
		return ve[0].Error()
	}
	return fmt.Sprintf("%d diagram validation errors, first: %s", len(ve), ve[0].Error())
}
