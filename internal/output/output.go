// Package output writes ciltrim artifacts: trimmed images, JSON
// reports, and DOT graphs.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/zboralski/lattice"

	"ciltrim/internal/pefile"
	"ciltrim/internal/trim"
)

// WriteImage writes the trimmed image bytes.
func WriteImage(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("output: write image %s: %w", path, err)
	}
	return nil
}

// WriteScanJSON writes the parsed image structure.
func WriteScanJSON(path string, f *pefile.File) error {
	return writeJSON(path, f)
}

// WriteTrimReport writes the trim run report.
func WriteTrimReport(path string, report *trim.Report) error {
	return writeJSON(path, report)
}

// WriteGraphDOT writes the reference graph as Graphviz DOT.
func WriteGraphDOT(path string, g *lattice.Graph, title string) error {
	if err := os.WriteFile(path, []byte(GraphDOT(g, title)), 0644); err != nil {
		return fmt.Errorf("output: write %s: %w", path, err)
	}
	return nil
}

// GraphDOT renders a lattice.Graph as DOT text. Nodes are boxes keyed
// by their label; output is sorted for stable diffs.
func GraphDOT(g *lattice.Graph, title string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "digraph %q {\n", title)
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=box, fontname=\"monospace\", fontsize=10];\n")

	nodes := make([]string, len(g.Nodes))
	copy(nodes, g.Nodes)
	sort.Strings(nodes)
	for _, n := range nodes {
		fmt.Fprintf(&b, "  %q;\n", n)
	}

	edges := make([]lattice.Edge, len(g.Edges))
	copy(edges, g.Edges)
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Caller != edges[j].Caller {
			return edges[i].Caller < edges[j].Caller
		}
		return edges[i].Callee < edges[j].Callee
	})
	for _, e := range edges {
		fmt.Fprintf(&b, "  %q -> %q;\n", e.Caller, e.Callee)
	}
	b.WriteString("}\n")
	return b.String()
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output: create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("output: encode %s: %w", path, err)
	}
	return nil
}
