// Package dag provides the dependency graph the finished catalog is
// populated into. Vertices are resource keys; edges carry the relationship
// kind that produced them.
package dag

import (
	"fmt"
	"sort"
	"sync"
)

// Graph is a directed graph of resource keys. All operations are
// concurrency-safe; the surrounding environment may hold graphs across
// compilations.
type Graph struct {
	mutex sync.RWMutex
	nodes map[string]*node
}

type node struct {
	id string
	// deps maps predecessor id to the edge kind that created the dependency.
	deps map[string]string
	// dependents maps successor id to the edge kind.
	dependents map[string]string
}

// New creates and returns an initialized, empty Graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*node),
	}
}

// AddVertex adds a vertex with the given ID to the graph. Adding an existing
// vertex is a no-op.
func (g *Graph) AddVertex(id string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if _, ok := g.nodes[id]; ok {
		return
	}
	g.nodes[id] = &node{
		id:         id,
		deps:       make(map[string]string),
		dependents: make(map[string]string),
	}
}

// AddEdge creates a directed edge of the given kind from `fromID` to `toID`,
// meaning `toID` depends on `fromID`. An error is returned if either vertex
// does not exist or if the edge would be self-referential.
func (g *Graph) AddEdge(kind, fromID, toID string) error {
	if fromID == toID {
		return fmt.Errorf("self-referential edge not allowed: %s -> %s", fromID, fromID)
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	fromNode, ok := g.nodes[fromID]
	if !ok {
		return fmt.Errorf("source vertex not found: %s", fromID)
	}
	toNode, ok := g.nodes[toID]
	if !ok {
		return fmt.Errorf("destination vertex not found: %s", toID)
	}

	toNode.deps[fromID] = kind
	fromNode.dependents[toID] = kind
	return nil
}

// Len returns the number of vertices in the graph.
func (g *Graph) Len() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.nodes)
}

// Dependencies returns the sorted IDs the given vertex depends on.
func (g *Graph) Dependencies(id string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("vertex not found: %s", id)
	}
	return sortedKeys(n.deps), nil
}

// Dependents returns the sorted IDs that depend on the given vertex.
func (g *Graph) Dependents(id string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("vertex not found: %s", id)
	}
	return sortedKeys(n.dependents), nil
}

// DetectCycles checks the graph for cycles. It returns a non-nil error if a
// cycle is found, naming the first vertex involved in the detected cycle.
// Traversal order is deterministic so the reported vertex is stable.
func (g *Graph) DetectCycles() error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	// Classic depth-first search with permanent/temporary marks.
	permanent := make(map[string]bool)
	temporary := make(map[string]bool)

	var visit func(n *node) error
	visit = func(n *node) error {
		if permanent[n.id] {
			return nil
		}
		if temporary[n.id] {
			return fmt.Errorf("dependency cycle detected involving %s", n.id)
		}

		temporary[n.id] = true
		for _, id := range sortedKeys(n.dependents) {
			if err := visit(g.nodes[id]); err != nil {
				return err
			}
		}
		delete(temporary, n.id)
		permanent[n.id] = true
		return nil
	}

	for _, id := range sortedKeys2(g.nodes) {
		if !permanent[id] {
			if err := visit(g.nodes[id]); err != nil {
				return err
			}
		}
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeys2(m map[string]*node) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
