package diagram

import (
	"fmt"
	"strings"
)

// RenderMermaid renders the model as a Mermaid flowchart string.
func RenderMermaid(m *Model) string {
	var b strings.Builder

	b.WriteString("graph TD\n")
	if m.Title != "" {
		fmt.Fprintf(&b, "    %%%% %s\n", m.Title)
	}

	for _, node := range m.Nodes {
		fmt.Fprintf(&b, "    %s\n", mermaidNodeDef(node))
	}
	for _, edge := range m.Edges {
		label := ""
		if edge.Label != "" {
			label = fmt.Sprintf("|%q|", mermaidLabel(edge.Label))
		}
		fmt.Fprintf(&b, "    %s -->%s %s\n",
			mermaidSafeID(edge.From), label, mermaidSafeID(edge.To))
	}

	b.WriteString("\n")
	b.WriteString("    classDef terminal stroke-width:3px\n")
	b.WriteString("    classDef abort stroke:#8b1a1a,stroke-width:2px\n")
	b.WriteString("    classDef visited fill:#2d6a2d,stroke:#1a4a1a,color:#fff\n")
	b.WriteString("    classDef final fill:#1a5276,stroke:#0e3a52,color:#fff\n")
	b.WriteString("    classDef failed fill:#8b1a1a,stroke:#5c0e0e,color:#fff\n")

	for _, node := range m.Nodes {
		for _, cls := range nodeClasses(node) {
			fmt.Fprintf(&b, "    class %s %s\n", mermaidSafeID(node.ID), cls)
		}
	}

	return b.String()
}

// mermaidNodeDef returns a node definition with a shape for its kind.
func mermaidNodeDef(n *Node) string {
	id := mermaidSafeID(n.ID)
	label := mermaidLabel(visitLabel(n))

	switch n.Kind {
	case NodeKindStart:
		return fmt.Sprintf("%s((%q))", id, label)
	case NodeKindWait:
		return fmt.Sprintf("%s([%q])", id, label)
	case NodeKindPrompt:
		return fmt.Sprintf("%s{{%q}}", id, label)
	case NodeKindSubWorkflow:
		return fmt.Sprintf("%s[[%q]]", id, label)
	default:
		return fmt.Sprintf("%s[%q]", id, label)
	}
}

// nodeClasses picks the style classes for a node. Path coloring is
// exclusive: failed beats final beats visited.
func nodeClasses(n *Node) []string {
	var classes []string
	if n.Terminal {
		classes = append(classes, "terminal")
	}
	if n.Kind == NodeKindAbort {
		classes = append(classes, "abort")
	}
	if n.Visit != nil {
		switch {
		case n.Visit.Failed:
			classes = append(classes, "failed")
		case n.Visit.Final:
			classes = append(classes, "final")
		default:
			classes = append(classes, "visited")
		}
	}
	return classes
}

// visitLabel appends the visit count when a state was entered more than once.
func visitLabel(n *Node) string {
	if n.Visit != nil && n.Visit.Count > 1 {
		return fmt.Sprintf("%s (x%d)", n.Label, n.Visit.Count)
	}
	return n.Label
}

// mermaidSafeID converts a state ID to a Mermaid-safe identifier.
func mermaidSafeID(id string) string {
	r := strings.NewReplacer(".", "_", "-", "_", " ", "_")
	return r.Replace(id)
}

// mermaidLabel strips the characters that break node and edge syntax; the %q
// wrapping at the call sites covers the rest.
func mermaidLabel(s string) string {
	return strings.NewReplacer("|", "/", `"`, "'").Replace(s)
}
