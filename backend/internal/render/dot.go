// Package render encodes the engine's render hand-off for external renderers.
// It never produces pixels; the DOT output pins the engine's own positions so
// graphviz (or anything that reads DOT) only has to draw.
package render

import (
	"fmt"
	"sort"
	"strings"

	"sociogram/backend/internal/social"
)

// dotScale maps normalized [-1, 1] coordinates onto graphviz inches
const dotScale = 5.0

// penwidthFor thickens edges with weight, bottoming out at a hairline
func penwidthFor(weight float64) float64 {
	w := 0.5 + weight*0.35
	if w > 4 {
		w = 4
	}
	return w
}

// DOT renders the hand-off as an undirected graph with pinned positions.
// Cluster ids become node group attributes; classifications become edge
// tooltips so renderers can surface them.
func DOT(result *social.RenderResult) string {
	var b strings.Builder

	b.WriteString("graph {\n")
	b.WriteString("    layout = \"neato\"\n")
	b.WriteString("    splines = \"true\"\n")
	b.WriteString("    outputorder = \"edgesfirst\"\n")
	b.WriteString("    overlap = \"true\"\n")

	for _, userID := range sortedNodeIDs(result) {
		pos := result.Layout.Positions[userID]
		fmt.Fprintf(&b, "    %s [ label = \"%s\", pos = \"%.3f,%.3f!\", group = \"%s\" ]\n",
			quoteID(userID),
			escapeLabel(userID),
			pos.X*dotScale,
			pos.Y*dotScale,
			escapeLabel(result.Layout.Clusters[userID]),
		)
	}

	for _, edge := range result.Edges {
		fmt.Fprintf(&b, "    %s -- %s [ penwidth = \"%.2f\", tooltip = \"%s\" ]\n",
			quoteID(edge.UserA),
			quoteID(edge.UserB),
			penwidthFor(edge.Weight),
			escapeLabel(edge.Label.String()),
		)
	}

	b.WriteString("}\n")
	return b.String()
}

func sortedNodeIDs(result *social.RenderResult) []string {
	ids := make([]string, 0, len(result.Layout.Positions))
	for id := range result.Layout.Positions {
		ids = append(ids, id)
	}
	// Positions come from a map; sort for a stable document.
	sort.Strings(ids)
	return ids
}

func quoteID(id string) string {
	return "\"" + escapeLabel(id) + "\""
}

func escapeLabel(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	return s
}
