package graph

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

type traversalState int

const (
	notStarted traversalState = iota
	inProgress
	complete
)

// GraphCycleError is returned when a strict topological order is requested
// for a graph that contains a cycle.
type GraphCycleError struct {
	// Cycle is one cycle found in the graph, starting and ending at the
	// same vertex.
	Cycle []string
}

func (e *GraphCycleError) Error() string {
	if len(e.Cycle) == 0 {
		return "graph contains a cycle, so cannot be topologically sorted"
	}
	return fmt.Sprintf("graph contains a cycle, so cannot be topologically sorted: %s",
		strings.Join(e.Cycle, " -> "))
}

// ContainsCycle reports whether any vertex is reachable from itself through
// a non-empty path.
func (g *DirectedGraph[T]) ContainsCycle() bool {
	return len(g.findCycle()) > 0
}

// findCycle runs a three-colour depth-first traversal and returns the first
// cycle hit by a back-edge, or nil.
func (g *DirectedGraph[T]) findCycle() []T {
	state := make(map[T]traversalState, len(g.vertices))
	var path []T
	var cycle []T

	var visit func(v T) bool
	visit = func(v T) bool {
		state[v] = inProgress
		path = append(path, v)
		for _, to := range g.successors(v) {
			switch state[to] {
			case inProgress:
				start := slices.Index(path, to)
				cycle = append(slices.Clone(path[start:]), to)
				return true
			case notStarted:
				if visit(to) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		state[v] = complete
		return false
	}

	for _, v := range g.VertexSet() {
		if state[v] == notStarted && visit(v) {
			return cycle
		}
	}
	return nil
}

// TopologicalSort orders the vertices so that for every edge u -> v, u comes
// before v. Vertices without any edges are emitted as soon as they become
// unattached; each level of vertices without incoming edges is alphabetized,
// so repeated calls return identical results.
func (g *DirectedGraph[T]) TopologicalSort() ([]T, error) {
	if cycle := g.findCycle(); len(cycle) > 0 {
		names := make([]string, len(cycle))
		for i, v := range cycle {
			names[i] = fmt.Sprint(v)
		}
		return nil, &GraphCycleError{Cycle: names}
	}

	vertices := make(map[T]struct{}, len(g.vertices))
	for v := range g.vertices {
		vertices[v] = struct{}{}
	}
	edges := make(map[Edge[T]]struct{}, len(g.edges))
	for e := range g.edges {
		edges[e] = struct{}{}
	}

	sorted := make([]T, 0, len(vertices))
	for len(vertices) > 0 {
		incoming := make(map[T]int)
		attached := make(map[T]bool)
		for e := range edges {
			incoming[e.To]++
			attached[e.From] = true
			attached[e.To] = true
		}

		var unattached []T
		for v := range vertices {
			if !attached[v] {
				unattached = append(unattached, v)
			}
		}
		slices.Sort(unattached)
		for _, v := range unattached {
			delete(vertices, v)
		}
		sorted = append(sorted, unattached...)

		var level []T
		for v := range vertices {
			if incoming[v] == 0 {
				level = append(level, v)
			}
		}
		slices.Sort(level)
		for _, v := range level {
			for e := range edges {
				if e.From == v {
					delete(edges, e)
				}
			}
			delete(vertices, v)
		}
		sorted = append(sorted, level...)
	}
	return sorted, nil
}

// StronglyConnectedComponents groups mutually reachable vertices using
// Tarjan's algorithm. Each component is sorted, and components are ordered
// by their smallest member.
func (g *DirectedGraph[T]) StronglyConnectedComponents() [][]T {
	var (
		index    int
		stack    []T
		onStack  = make(map[T]bool)
		indices  = make(map[T]int)
		lowlinks = make(map[T]int)
		result   [][]T
	)

	var strongConnect func(v T)
	strongConnect = func(v T) {
		indices[v] = index
		lowlinks[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.successors(v) {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlinks[v] = min(lowlinks[v], lowlinks[w])
			} else if onStack[w] {
				lowlinks[v] = min(lowlinks[v], indices[w])
			}
		}

		if lowlinks[v] == indices[v] {
			var component []T
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				component = append(component, w)
				if w == v {
					break
				}
			}
			slices.Sort(component)
			result = append(result, component)
		}
	}

	for _, v := range g.VertexSet() {
		if _, visited := indices[v]; !visited {
			strongConnect(v)
		}
	}

	slices.SortFunc(result, func(a, b []T) int { return cmp.Compare(a[0], b[0]) })
	return result
}

// Condensation collapses every strongly connected component into a single
// vertex, named by the component's smallest member. The returned graph is
// always acyclic; members maps each representative to its component.
func (g *DirectedGraph[T]) Condensation() (condensed *DirectedGraph[T], members map[T][]T) {
	components := g.StronglyConnectedComponents()
	representative := make(map[T]T, len(g.vertices))
	members = make(map[T][]T, len(components))
	condensed = New[T]()
	for _, component := range components {
		rep := component[0]
		members[rep] = component
		condensed.AddVertex(rep)
		for _, v := range component {
			representative[v] = rep
		}
	}
	for e := range g.edges {
		condensed.AddEdge(representative[e.From], representative[e.To])
	}
	return condensed, members
}
