package diagram

import (
	"fmt"
	"strings"
)

// RenderDOT renders the model in GraphViz dot form, suitable for piping
// through `dot -Tpng` and friends.
func RenderDOT(m *Model) string {
	var b strings.Builder

	b.WriteString("digraph wend {\n")
	b.WriteString("    rankdir=TB;\n")
	if m.Title != "" {
		fmt.Fprintf(&b, "    label=%s;\n", dotQuote(m.Title))
		b.WriteString("    labelloc=t;\n")
	}
	b.WriteString("    node [fontname=\"Helvetica\"];\n\n")

	for _, node := range m.Nodes {
		fmt.Fprintf(&b, "    %s [%s];\n", dotQuote(node.ID), strings.Join(dotAttrs(node), ", "))
	}
	b.WriteString("\n")
	for _, edge := range m.Edges {
		if edge.Label != "" {
			fmt.Fprintf(&b, "    %s -> %s [label=%s];\n",
				dotQuote(edge.From), dotQuote(edge.To), dotQuote(edge.Label))
		} else {
			fmt.Fprintf(&b, "    %s -> %s;\n", dotQuote(edge.From), dotQuote(edge.To))
		}
	}
	b.WriteString("}\n")

	return b.String()
}

// dotAttrs styles a node: shape by kind, double border for terminal states
// (the automata convention), fill by path overlay.
func dotAttrs(n *Node) []string {
	attrs := []string{fmt.Sprintf("label=%s", dotQuote(visitLabel(n)))}

	switch n.Kind {
	case NodeKindStart:
		attrs = append(attrs, "shape=point", "width=0.2")
	case NodeKindWait:
		attrs = append(attrs, "shape=ellipse")
	case NodeKindPrompt:
		attrs = append(attrs, "shape=hexagon")
	case NodeKindSubWorkflow:
		attrs = append(attrs, "shape=box3d")
	case NodeKindAbort:
		attrs = append(attrs, "shape=octagon")
	default:
		attrs = append(attrs, "shape=box")
	}

	if n.Terminal {
		attrs = append(attrs, "peripheries=2")
	}

	if n.Visit != nil {
		switch {
		case n.Visit.Failed:
			attrs = append(attrs, "style=filled", `fillcolor="#8b1a1a"`, "fontcolor=white")
		case n.Visit.Final:
			attrs = append(attrs, "style=filled", `fillcolor="#1a5276"`, "fontcolor=white")
		default:
			attrs = append(attrs, "style=filled", `fillcolor="#2d6a2d"`, "fontcolor=white")
		}
	}

	return attrs
}

// dotQuote wraps a string as a DOT quoted ID.
func dotQuote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
