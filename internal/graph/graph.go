// Package graph implements the directed graph used to order tables by their
// foreign-key dependencies.
//
// Vertices are identified by value, so T must be totally ordered; the order is
// used to break ties and keep every traversal deterministic.
package graph

import (
	"cmp"
	"fmt"
	"slices"
)

// Edge is a directed edge between two vertex values.
type Edge[T cmp.Ordered] struct {
	From T
	To   T
}

func (e Edge[T]) String() string {
	return fmt.Sprintf("(%v --> %v)", e.From, e.To)
}

func compareEdges[T cmp.Ordered](a, b Edge[T]) int {
	if c := cmp.Compare(a.From, b.From); c != 0 {
		return c
	}
	return cmp.Compare(a.To, b.To)
}

// Vertex is a node in a DirectedGraph.
type Vertex[T cmp.Ordered] struct {
	Value T
}

func (v *Vertex[T]) String() string {
	return fmt.Sprint(v.Value)
}

// DirectedGraph holds a vertex set and an edge set. It is not safe for
// concurrent mutation.
type DirectedGraph[T cmp.Ordered] struct {
	vertices map[T]*Vertex[T]
	edges    map[Edge[T]]struct{}
	out      map[T]map[T]struct{}
}

// New returns an empty graph.
func New[T cmp.Ordered]() *DirectedGraph[T] {
	return &DirectedGraph[T]{
		vertices: make(map[T]*Vertex[T]),
		edges:    make(map[Edge[T]]struct{}),
		out:      make(map[T]map[T]struct{}),
	}
}

// AddVertex adds a vertex for value, or returns the existing one.
func (g *DirectedGraph[T]) AddVertex(value T) *Vertex[T] {
	if v, ok := g.vertices[value]; ok {
		return v
	}
	v := &Vertex[T]{Value: value}
	g.vertices[value] = v
	return v
}

// AddEdge adds both vertices and a directed edge between them. An edge from a
// value to itself is ignored, although the vertex is still added.
func (g *DirectedGraph[T]) AddEdge(from, to T) {
	g.AddVertex(from)
	if from == to {
		return
	}
	g.AddVertex(to)
	e := Edge[T]{From: from, To: to}
	if _, ok := g.edges[e]; ok {
		return
	}
	g.edges[e] = struct{}{}
	targets, ok := g.out[from]
	if !ok {
		targets = make(map[T]struct{})
		g.out[from] = targets
	}
	targets[to] = struct{}{}
}

// HasVertex reports whether value is a vertex of the graph.
func (g *DirectedGraph[T]) HasVertex(value T) bool {
	_, ok := g.vertices[value]
	return ok
}

// HasEdge reports whether the edge from -> to exists.
func (g *DirectedGraph[T]) HasEdge(from, to T) bool {
	_, ok := g.edges[Edge[T]{From: from, To: to}]
	return ok
}

// VertexSet returns all vertex values in ascending order.
func (g *DirectedGraph[T]) VertexSet() []T {
	values := make([]T, 0, len(g.vertices))
	for v := range g.vertices {
		values = append(values, v)
	}
	slices.Sort(values)
	return values
}

// EdgeSet returns all edges ordered by (from, to).
func (g *DirectedGraph[T]) EdgeSet() []Edge[T] {
	edges := make([]Edge[T], 0, len(g.edges))
	for e := range g.edges {
		edges = append(edges, e)
	}
	slices.SortFunc(edges, compareEdges[T])
	return edges
}

// OutgoingEdges returns the edges leaving value, ordered by target.
func (g *DirectedGraph[T]) OutgoingEdges(value T) []Edge[T] {
	targets := g.successors(value)
	edges := make([]Edge[T], len(targets))
	for i, to := range targets {
		edges[i] = Edge[T]{From: value, To: to}
	}
	return edges
}

// successors returns the sorted targets of value's outgoing edges.
func (g *DirectedGraph[T]) successors(value T) []T {
	targets := make([]T, 0, len(g.out[value]))
	for to := range g.out[value] {
		targets = append(targets, to)
	}
	slices.Sort(targets)
	return targets
}

// Transpose returns a new graph with every edge reversed.
func (g *DirectedGraph[T]) Transpose() *DirectedGraph[T] {
	t := New[T]()
	for v := range g.vertices {
		t.AddVertex(v)
	}
	for e := range g.edges {
		t.AddEdge(e.To, e.From)
	}
	return t
}

// SubGraph returns the part of the graph reachable from value by following
// outgoing edges at most depth hops. A negative depth is unbounded. The
// result always contains value, even when it is isolated.
func (g *DirectedGraph[T]) SubGraph(value T, depth int) *DirectedGraph[T] {
	sub := New[T]()
	if !g.HasVertex(value) {
		return sub
	}

	reached := map[T]int{value: depth}
	queue := []T{value}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		remaining := reached[v]
		if remaining == 0 {
			continue
		}
		for _, to := range g.successors(v) {
			if prev, seen := reached[to]; seen && (prev < 0 || prev >= remaining-1) {
				continue
			}
			reached[to] = remaining - 1
			queue = append(queue, to)
		}
	}

	sub.AddVertex(value)
	for e := range g.edges {
		_, fromOK := reached[e.From]
		_, toOK := reached[e.To]
		if fromOK && toOK {
			sub.AddEdge(e.From, e.To)
		}
	}
	return sub
}

func (g *DirectedGraph[T]) String() string {
	return fmt.Sprintf("DirectedGraph{vertices=%v, edges=%v}", g.VertexSet(), g.EdgeSet())
}
