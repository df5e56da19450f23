// Package render visualizes a resolved feature graph. The DOT export is
// the primary artifact; SVG and PNG rendering go through Graphviz for
// quick inspection of how a crate's features activate each other.
package render

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/matzehuels/debcrate/pkg/crate"
)

// Options configures feature graph rendering.
type Options struct {
	// Detailed includes version requirements on dependency edges.
	Detailed bool
}

// ToDOT converts a resolved feature table to Graphviz DOT format.
//
// Features render as rounded boxes, external dependencies as ellipses.
// Aliases collapsed into a provides map render as dashed grey boxes
// pointing at the feature that provides them. Output is deterministic:
// nodes and edges appear in sorted order.
func ToDOT(crateName string, table crate.FeatureTable, provides crate.ProvidesMap, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("digraph features {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("\n")

	for _, name := range table.SortedNames() {
		fmt.Fprintf(&buf, "  %q [label=%q];\n", nodeID(name), featureLabel(crateName, name))
	}

	depNodes := map[string]string{} // node id -> label
	var edges []string
	for _, name := range table.SortedNames() {
		entry := table[name]
		for _, ref := range entry.Features {
			if ref == crate.BaseFeature && name == crate.BaseFeature {
				continue
			}
			edges = append(edges, fmt.Sprintf("  %q -> %q;\n", nodeID(name), nodeID(ref)))
		}
		for _, d := range entry.Deps {
			id := "dep:" + d.String()
			depNodes[id] = depLabel(d, opts.Detailed)
			edges = append(edges, fmt.Sprintf("  %q -> %q;\n", nodeID(name), id))
		}
	}

	depIDs := make([]string, 0, len(depNodes))
	for id := range depNodes {
		depIDs = append(depIDs, id)
	}
	sort.Strings(depIDs)
	for _, id := range depIDs {
		fmt.Fprintf(&buf, "  %q [label=%q, shape=ellipse, style=filled];\n", id, depNodes[id])
	}

	for _, target := range sortedKeys(provides) {
		for _, alias := range provides[target] {
			id := "alias:" + alias
			fmt.Fprintf(&buf, "  %q [label=%q, style=\"rounded,filled,dashed\", fillcolor=lightgrey];\n",
				id, alias)
			edges = append(edges, fmt.Sprintf("  %q -> %q;\n", id, nodeID(target)))
		}
	}

	buf.WriteString("\n")
	sort.Strings(edges)
	for _, e := range edges {
		buf.WriteString(e)
	}

	buf.WriteString("}\n")
	return buf.String()
}

// nodeID keeps the base feature addressable in DOT.
func nodeID(feature string) string {
	if feature == crate.BaseFeature {
		return "(base)"
	}
	return feature
}

func featureLabel(crateName, feature string) string {
	if feature == crate.BaseFeature {
		return crateName
	}
	return feature
}

func depLabel(d crate.Dependency, detailed bool) string {
	if !detailed || d.Req == "" {
		return d.Name
	}
	return fmt.Sprintf("%s\n%s", d.Name, d.Req)
}

func sortedKeys(m crate.ProvidesMap) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
