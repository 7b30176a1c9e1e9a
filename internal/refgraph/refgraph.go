// Package refgraph converts the deep-trim reference edges into a
// lattice graph for DOT export.
package refgraph

import (
	"fmt"

	"github.com/zboralski/lattice"

	"ciltrim/internal/metadata"
	"ciltrim/internal/trim"
)

// Build constructs a lattice.Graph from recorded reference edges.
// Each referenced entity becomes a node labelled with its table, row,
// and resolved name where one exists.
func Build(md *metadata.Meta, edges []trim.Edge) *lattice.Graph {
	g := &lattice.Graph{}
	seen := make(map[metadata.Token]bool)
	node := func(tok metadata.Token) string {
		label := Label(md, tok)
		if !seen[tok] {
			seen[tok] = true
			g.Nodes = append(g.Nodes, label)
		}
		return label
	}
	for _, e := range edges {
		caller := node(e.From)
		callee := node(e.To)
		g.Edges = append(g.Edges, lattice.Edge{
			Caller: caller,
			Callee: callee,
		})
	}
	g.Dedup()
	return g
}

// Label renders a token as "Table[row] Name", resolving names for the
// tables that carry one.
func Label(md *metadata.Meta, tok metadata.Token) string {
	if tok.IsBlobToken() {
		return fmt.Sprintf("Blob[0x%x]", tok.Row())
	}
	if tok.IsUSToken() {
		return fmt.Sprintf("US[0x%x]", tok.Row())
	}
	row0 := tok.Row() - 1
	switch tok.Table() {
	case metadata.TableTypeDef:
		if tok.Row() <= md.NumRows(metadata.TableTypeDef) {
			return fmt.Sprintf("%s %s", tok, md.TypeDefName(row0))
		}
	case metadata.TableTypeRef:
		if tok.Row() <= md.NumRows(metadata.TableTypeRef) {
			return fmt.Sprintf("%s %s", tok, md.TypeRefName(row0))
		}
	case metadata.TableMethodDef:
		if tok.Row() <= md.NumRows(metadata.TableMethodDef) {
			name := md.Strings.String(md.MethodDef(row0).Name)
			if owner, ok := md.MethodOwner(row0); ok {
				return fmt.Sprintf("%s %s.%s", tok, md.TypeDefName(owner), name)
			}
			return fmt.Sprintf("%s %s", tok, name)
		}
	case metadata.TableMemberRef:
		if tok.Row() <= md.NumRows(metadata.TableMemberRef) {
			return fmt.Sprintf("%s %s", tok, md.Strings.String(md.MemberRef(row0).Name))
		}
	case metadata.TableField:
		if tok.Row() <= md.NumRows(metadata.TableField) {
			return fmt.Sprintf("%s %s", tok, md.Strings.String(md.Field(row0).Name))
		}
	}
	return tok.String()
}
