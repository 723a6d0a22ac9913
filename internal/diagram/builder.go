package diagram

import (
	"github.com/wendlabs/wend/internal/phrase"
	"github.com/wendlabs/wend/pkg/schema"
)

// StartNodeID is the virtual entry marker's node ID.
const StartNodeID = "__start__"

// Build constructs the graph model for a definition. States keep declaration
// order behind the entry marker. A phrase that fails to parse still gets a
// node, with an unknown kind; the graph is a reading aid, not a validator.
func Build(def *schema.WorkflowDefinition) *Model {
	m := &Model{Title: def.Name}

	m.Nodes = append(m.Nodes, &Node{ID: StartNodeID, Label: "start", Kind: NodeKindStart})
	if def.Start != "" {
		m.Edges = append(m.Edges, Edge{From: StartNodeID, To: def.Start})
	}

	for i := range def.States {
		st := &def.States[i]
		m.Nodes = append(m.Nodes, &Node{
			ID:       st.ID,
			Label:    st.ID,
			Kind:     stateKind(st.Action),
			Terminal: st.Terminal(),
		})
		for _, tr := range st.Transitions {
			m.Edges = append(m.Edges, Edge{From: st.ID, To: tr.To, Label: tr.When})
		}
	}

	return m
}

// stateKind classifies a state by parsing its action phrase.
func stateKind(action string) NodeKind {
	act, err := phrase.Parse(action)
	if err != nil {
		return NodeKindUnknown
	}
	switch act.Kind() {
	case schema.KindShellExecute:
		return NodeKindShell
	case schema.KindPrompt:
		return NodeKindPrompt
	case schema.KindWait:
		return NodeKindWait
	case schema.KindLog:
		return NodeKindLog
	case schema.KindSetVariable:
		return NodeKindSet
	case schema.KindSubWorkflow:
		return NodeKindSubWorkflow
	case schema.KindAbort:
		return NodeKindAbort
	default:
		return NodeKindUnknown
	}
}
