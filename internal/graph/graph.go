// Package graph provides a dependency graph over string ids, used for plan
// step ordering and work-item readiness.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrCycleDetected indicates a circular dependency was found.
var ErrCycleDetected = errors.New("circular dependency detected")

// DependencyGraph is a directed acyclic graph of ids. Edges point from a
// node to the ids it depends on. Insertion order is remembered so that
// ordering operations are deterministic: ties break by declaration order.
type DependencyGraph struct {
	mu sync.RWMutex
	// order lists node ids in insertion order.
	order []string
	// index maps id to its insertion position.
	index map[string]int
	// edges maps id to the ids it depends on.
	edges map[string][]string
	// completed tracks which nodes have been marked complete.
	completed map[string]bool
}

// Node is one entry to build the graph from.
type Node struct {
	// ID is the unique node id.
	ID string
	// DependsOn lists ids this node is blocked by.
	DependsOn []string
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		index:     make(map[string]int),
		edges:     make(map[string][]string),
		completed: make(map[string]bool),
	}
}

// Build constructs the graph from nodes in declaration order.
// Returns an error on duplicate ids, unknown dependency references, or cycles.
func (g *DependencyGraph) Build(nodes []Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, n := range nodes {
		if _, dup := g.index[n.ID]; dup {
			return fmt.Errorf("duplicate node id %q", n.ID)
		}
		g.index[n.ID] = len(g.order)
		g.order = append(g.order, n.ID)
		g.edges[n.ID] = nil
	}

	for _, n := range nodes {
		for _, dep := range n.DependsOn {
			if _, exists := g.index[dep]; !exists {
				return fmt.Errorf("node %q depends on unknown node %q", n.ID, dep)
			}
			if dep == n.ID {
				return fmt.Errorf("node %q depends on itself", n.ID)
			}
			g.edges[n.ID] = append(g.edges[n.ID], dep)
		}
	}

	if g.hasCycleLocked() {
		return ErrCycleDetected
	}
	return nil
}

// HasCycle returns true if the graph contains a circular dependency.
func (g *DependencyGraph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hasCycleLocked()
}

// hasCycleLocked runs DFS coloring to detect back edges. Caller holds g.mu.
func (g *DependencyGraph) hasCycleLocked() bool {
	// 0 = unvisited, 1 = in progress, 2 = done.
	colors := make(map[string]int, len(g.order))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1
		for _, dep := range g.edges[id] {
			switch colors[dep] {
			case 1:
				return true
			case 0:
				if visit(dep) {
					return true
				}
			}
		}
		colors[id] = 2
		return false
	}

	for _, id := range g.order {
		if colors[id] == 0 && visit(id) {
			return true
		}
	}
	return false
}

// TopologicalSort returns ids so that every dependency precedes its
// dependents. Among nodes whose dependencies are equally satisfied, the
// earlier-declared node comes first, so the result is stable across runs.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.hasCycleLocked() {
		return nil, ErrCycleDetected
	}

	remaining := make(map[string]int, len(g.order))
	for _, id := range g.order {
		remaining[id] = len(g.edges[id])
	}

	var ready []string
	for _, id := range g.order {
		if remaining[id] == 0 {
			ready = append(ready, id)
		}
	}

	dependents := g.dependentsIndexLocked()

	var result []string
	for len(ready) > 0 {
		// ready is kept sorted by declaration order.
		id := ready[0]
		ready = ready[1:]
		result = append(result, id)

		for _, dep := range dependents[id] {
			remaining[dep]--
			if remaining[dep] == 0 {
				ready = append(ready, dep)
			}
		}
		sort.Slice(ready, func(i, j int) bool {
			return g.index[ready[i]] < g.index[ready[j]]
		})
	}

	if len(result) != len(g.order) {
		return nil, ErrCycleDetected
	}
	return result, nil
}

// GetReady returns ids that are not complete and whose dependencies are all
// complete, in declaration order.
func (g *DependencyGraph) GetReady() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []string
	for _, id := range g.order {
		if g.completed[id] {
			continue
		}
		blocked := false
		for _, dep := range g.edges[id] {
			if !g.completed[dep] {
				blocked = true
				break
			}
		}
		if !blocked {
			ready = append(ready, id)
		}
	}
	return ready
}

// MarkComplete marks a node complete, unblocking its dependents.
func (g *DependencyGraph) MarkComplete(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completed[id] = true
}

// IsComplete reports whether the node has been marked complete.
func (g *DependencyGraph) IsComplete(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.completed[id]
}

// Size returns the number of nodes.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.order)
}

// Dependencies returns the ids the given node depends on.
func (g *DependencyGraph) Dependencies(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edges[id]
}

// Dependents returns the ids that depend on the given node, in declaration
// order.
func (g *DependencyGraph) Dependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.dependentsIndexLocked()[id]
}

// dependentsIndexLocked builds the reverse edge index. Caller holds g.mu.
func (g *DependencyGraph) dependentsIndexLocked() map[string][]string {
	out := make(map[string][]string, len(g.order))
	for _, id := range g.order {
		for _, dep := range g.edges[id] {
			out[dep] = append(out[dep], id)
		}
	}
	return out
}
