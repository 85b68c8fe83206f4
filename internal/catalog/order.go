package catalog

import (
	"github.com/Limetric/schemacrawl/internal/graph"
)

// Ordering is a dependency order of tables: every table comes after the
// tables it references. When the foreign key graph is cyclic, mutually
// dependent tables are grouped into one component and emitted together.
type Ordering struct {
	Tables     []*Table
	Components [][]*Table
	Cyclic     bool
}

// DependencyGraph builds the foreign key graph of tables, keyed by full
// name, with an edge from each child table to each parent it references.
// Filtered and partial keys, and keys to tables outside the set, are
// skipped.
func DependencyGraph(tables []*Table) *graph.DirectedGraph[string] {
	g := graph.New[string]()
	member := make(map[*Table]bool, len(tables))
	for _, t := range tables {
		g.AddVertex(t.FullName())
		member[t] = true
	}
	for _, t := range tables {
		for _, fk := range t.ImportedForeignKeys() {
			if fk.Filtered || fk.Parent == nil || !member[fk.Parent] {
				continue
			}
			g.AddEdge(t.FullName(), fk.Parent.FullName())
		}
	}
	return g
}

// StrictOrder returns tables with parents before children, or a
// *graph.GraphCycleError when the foreign keys form a cycle.
func StrictOrder(tables []*Table) ([]*Table, error) {
	order, err := DependencyGraph(tables).Transpose().TopologicalSort()
	if err != nil {
		return nil, err
	}
	return resolve(tables, order), nil
}

// OrderTables orders tables by foreign key dependencies. It never fails:
// cycles are collapsed into strongly connected components, and the
// condensed graph is sorted instead.
func OrderTables(tables []*Table) Ordering {
	deps := DependencyGraph(tables).Transpose()
	byName := indexTables(tables)

	if order, err := deps.TopologicalSort(); err == nil {
		o := Ordering{Tables: resolve(tables, order)}
		for _, t := range o.Tables {
			o.Components = append(o.Components, []*Table{t})
		}
		return o
	}

	condensed, members := deps.Condensation()
	order, err := condensed.TopologicalSort()
	if err != nil {
		// A condensation is acyclic; fall back to name order if that ever
		// stops holding.
		order = condensed.VertexSet()
	}
	o := Ordering{Cyclic: true}
	for _, rep := range order {
		var group []*Table
		for _, name := range members[rep] {
			group = append(group, byName[name])
		}
		o.Components = append(o.Components, group)
		o.Tables = append(o.Tables, group...)
	}
	return o
}

func indexTables(tables []*Table) map[string]*Table {
	byName := make(map[string]*Table, len(tables))
	for _, t := range tables {
		byName[t.FullName()] = t
	}
	return byName
}

func resolve(tables []*Table, order []string) []*Table {
	byName := indexTables(tables)
	out := make([]*Table, 0, len(order))
	for _, name := range order {
		out = append(out, byName[name])
	}
	return out
}
