// Package diagram turns workflow definitions into renderable graphs: states
// as nodes classified by their action, transitions as guard-labeled edges.
// An archived run's path can be overlaid to show where a run actually went.
package diagram

// NodeKind classifies a node by the action its state binds.
type NodeKind string

const (
	NodeKindShell       NodeKind = "shell"
	NodeKindPrompt      NodeKind = "prompt"
	NodeKindWait        NodeKind = "wait"
	NodeKindLog         NodeKind = "log"
	NodeKindSet         NodeKind = "set"
	NodeKindSubWorkflow NodeKind = "subworkflow"
	NodeKindAbort       NodeKind = "abort"
	NodeKindStart       NodeKind = "start"
	NodeKindUnknown     NodeKind = "unknown"
)

// Model is the renderer-independent graph of one workflow definition.
type Model struct {
	Title string
	Nodes []*Node
	Edges []Edge
}

// Node is one workflow state, plus the virtual entry marker.
type Node struct {
	ID       string
	Label    string
	Kind     NodeKind
	Terminal bool
	Visit    *VisitOverlay
}

// VisitOverlay carries what one archived run did at a state.
type VisitOverlay struct {
	Count  int
	Final  bool
	Failed bool
}

// Edge is one transition. Label holds the guard expression text; empty is
// the unconditional default.
type Edge struct {
	From  string
	To    string
	Label string
}

// RunPath summarizes one archived run for overlaying onto a model.
type RunPath struct {
	Visits     map[string]int
	FinalState string
	Failed     bool
}

// PathOf tallies a run's entered-state sequence into a RunPath. Callers
// extract the sequence from the event archive; this package stays free of
// storage concerns.
func PathOf(entered []string, finalState string, failed bool) RunPath {
	visits := make(map[string]int, len(entered))
	for _, id := range entered {
		visits[id]++
	}
	return RunPath{Visits: visits, FinalState: finalState, Failed: failed}
}

// ApplyPath marks each visited node with the run's path. The final state
// carries the failure flag so renderers can color where the run stopped.
func (m *Model) ApplyPath(p RunPath) {
	for _, n := range m.Nodes {
		count := p.Visits[n.ID]
		final := n.ID == p.FinalState && p.FinalState != ""
		if count == 0 && !final {
			continue
		}
		n.Visit = &VisitOverlay{
			Count:  count,
			Final:  final,
			Failed: final && p.Failed,
		}
	}
}
