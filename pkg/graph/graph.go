// Package graph maintains the directed graph of "property A depends on
// property B" edges and guarantees that update propagation order is
// well-defined. It holds pure graph state: it never touches the resolution
// cache, and is suitable for use by any property-update scheduler.
package graph

import (
	"sort"
	"sync"

	gngraph "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/multi"
	"gonum.org/v1/gonum/graph/traverse"
)

// Cycle is one circular dependency, identified by its start node. Nodes holds
// the cycle members in dependency order, starting at Start; the closing edge
// back to Start is implied.
type Cycle struct {
	Start string
	Nodes []string
}

func (c Cycle) String() string {
	out := ""
	for _, n := range c.Nodes {
		out += n + " -> "
	}
	return out + c.Start
}

// DependencyGraph is a mutable directed graph of property dependencies.
// Nodes are opaque qualified property names. All methods are safe for
// concurrent use.
type DependencyGraph struct {
	mu     sync.RWMutex
	graph  *multi.DirectedGraph
	ids    map[string]int64
	labels map[int64]string
	lines  map[[2]string]gngraph.Line

	// Self-dependencies are tracked outside the gonum graph so that a
	// degenerate A -> A edge is still reported as a cycle.
	loops map[string]bool
}

// NewDependencyGraph returns an empty graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		graph:  multi.NewDirectedGraph(),
		ids:    map[string]int64{},
		labels: map[int64]string{},
		lines:  map[[2]string]gngraph.Line{},
		loops:  map[string]bool{},
	}
}

func (g *DependencyGraph) nodeLocked(label string) gngraph.Node {
	if id, ok := g.ids[label]; ok {
		return g.graph.Node(id)
	}
	n := g.graph.NewNode()
	g.graph.AddNode(n)
	g.ids[label] = n.ID()
	g.labels[n.ID()] = label
	return n
}

// AddDependency idempotently inserts both nodes and a directed edge recording
// that from depends on to.
func (g *DependencyGraph) AddDependency(from, to string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	u := g.nodeLocked(from)
	v := g.nodeLocked(to)

	if from == to {
		g.loops[from] = true
		return
	}

	key := [2]string{from, to}
	if _, ok := g.lines[key]; ok {
		return
	}
	line := g.graph.NewLine(u, v)
	g.graph.SetLine(line)
	g.lines[key] = line
}

// RemoveDependency removes the from -> to edge if present. Nodes are kept.
func (g *DependencyGraph) RemoveDependency(from, to string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if from == to {
		delete(g.loops, from)
		return
	}

	key := [2]string{from, to}
	line, ok := g.lines[key]
	if !ok {
		return
	}
	g.graph.RemoveLine(g.ids[from], g.ids[to], line.ID())
	delete(g.lines, key)
}

// Dependencies returns the sorted direct dependencies of a node.
func (g *DependencyGraph) Dependencies(of string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.neighborsLocked(of)
}

// Nodes returns all known node labels, sorted.
func (g *DependencyGraph) Nodes() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.sortedLabelsLocked()
}

func (g *DependencyGraph) sortedLabelsLocked() []string {
	labels := make([]string, 0, len(g.ids))
	for label := range g.ids {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

func (g *DependencyGraph) neighborsLocked(label string) []string {
	id, ok := g.ids[label]
	if !ok {
		return nil
	}

	var out []string
	if g.loops[label] {
		out = append(out, label)
	}
	it := g.graph.From(id)
	for it.Next() {
		out = append(out, g.labels[it.Node().ID()])
	}
	sort.Strings(out)
	return out
}

// WouldCreateCycle answers, without mutating the graph, whether adding a
// from -> to edge would close a cycle; that is, whether a path already exists
// from to back to from. Implemented as a depth-first search from to.
func (g *DependencyGraph) WouldCreateCycle(from, to string) bool {
	if from == to {
		return true
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	fromID, ok := g.ids[from]
	if !ok {
		return false
	}
	toID, ok := g.ids[to]
	if !ok {
		return false
	}

	dfs := traverse.DepthFirst{}
	found := dfs.Walk(g.graph, g.graph.Node(toID), func(n gngraph.Node) bool {
		return n.ID() == fromID
	})
	return found != nil
}

// ValidateDependency returns a *CircularDependencyError carrying the would-be
// cycle if adding from -> to would close one. The graph is not mutated.
func (g *DependencyGraph) ValidateDependency(from, to string) error {
	if !g.WouldCreateCycle(from, to) {
		return nil
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	// Reconstruct the path to -> ... -> from; prefixed with from it is the
	// cycle the new edge would create.
	nodes := []string{from}
	if from != to {
		path := g.pathLocked(to, from)
		nodes = append(nodes, path[:len(path)-1]...)
	}

	return &CircularDependencyError{Cycle: Cycle{Start: from, Nodes: nodes}}
}

// pathLocked returns one path from src to dst including both endpoints, or nil.
func (g *DependencyGraph) pathLocked(src, dst string) []string {
	visited := map[string]bool{}

	var walk func(label string, path []string) []string
	walk = func(label string, path []string) []string {
		visited[label] = true
		path = append(path, label)
		if label == dst {
			return path
		}
		for _, next := range g.neighborsLocked(label) {
			if visited[next] {
				continue
			}
			if found := walk(next, path); found != nil {
				return found
			}
		}
		return nil
	}

	return walk(src, nil)
}

// DetectCycles runs a full-graph depth-first search with an explicit recursion
// stack. Whenever a node is revisited while still on the stack, the stack
// slice from its first occurrence to the current node is reported as one
// cycle.
func (g *DependencyGraph) DetectCycles() []Cycle {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var (
		cycles  []Cycle
		stack   []string
		onStack = map[string]int{}
		visited = map[string]bool{}
	)

	var visit func(label string)
	visit = func(label string) {
		visited[label] = true
		onStack[label] = len(stack)
		stack = append(stack, label)

		for _, next := range g.neighborsLocked(label) {
			if at, ok := onStack[next]; ok {
				nodes := append([]string(nil), stack[at:]...)
				cycles = append(cycles, Cycle{Start: next, Nodes: nodes})
				continue
			}
			if !visited[next] {
				visit(next)
			}
		}

		delete(onStack, label)
		stack = stack[:len(stack)-1]
	}

	for _, label := range g.sortedLabelsLocked() {
		if !visited[label] {
			visit(label)
		}
	}

	return cycles
}

// TopologicalSort returns the nodes ordered so that every node comes after
// all of its dependencies: a propagation scheduler can process the list front
// to back. It fails with a *CircularDependencyError carrying the first
// discovered cycle if any cycle exists.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	if cycles := g.DetectCycles(); len(cycles) > 0 {
		return nil, &CircularDependencyError{Cycle: cycles[0]}
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	var (
		order   []string
		visited = map[string]bool{}
	)

	// Post-order DFS: a node is appended only once everything it depends on
	// has been appended.
	var visit func(label string)
	visit = func(label string) {
		visited[label] = true
		for _, next := range g.neighborsLocked(label) {
			if !visited[next] {
				visit(next)
			}
		}
		order = append(order, label)
	}

	for _, label := range g.sortedLabelsLocked() {
		if !visited[label] {
			visit(label)
		}
	}

	return order, nil
}
