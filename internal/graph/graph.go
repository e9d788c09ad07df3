// Package graph provides a directed graph of entity keys.
//
// Unlike a build DAG, lineage graphs may legitimately contain cycles, so
// edges are never rejected; HasCycle reports the first cycle found.
package graph

import (
	"cmp"
	"fmt"
	"slices"
	"sort"
)

// Node represents a node in the graph.
type Node struct {
	// ID is the unique identifier ("type:id" for entities)
	ID string
	// Data holds arbitrary node data
	Data any
}

// Graph is a directed graph with optional cycles.
type Graph struct {
	nodes   map[string]*Node
	edges   map[string][]string // source -> targets
	parents map[string][]string // target -> sources
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:   make(map[string]*Node),
		edges:   make(map[string][]string),
		parents: make(map[string][]string),
	}
}

// AddNode adds a node to the graph. Adding an existing id updates its data.
func (g *Graph) AddNode(id string, data any) {
	if n, exists := g.nodes[id]; exists {
		n.Data = data
		return
	}
	g.nodes[id] = &Node{ID: id, Data: data}
	g.edges[id] = []string{}
	g.parents[id] = []string{}
}

// AddEdge adds a directed edge from -> to. Parallel edges collapse into one;
// self-loops are kept.
func (g *Graph) AddEdge(from, to string) error {
	if _, exists := g.nodes[from]; !exists {
		return fmt.Errorf("source node %q does not exist", from)
	}
	if _, exists := g.nodes[to]; !exists {
		return fmt.Errorf("target node %q does not exist", to)
	}

	if !slices.Contains(g.edges[from], to) {
		g.edges[from] = append(g.edges[from], to)
	}
	if !slices.Contains(g.parents[to], from) {
		g.parents[to] = append(g.parents[to], from)
	}
	return nil
}

// GetNode returns a node by ID.
func (g *Graph) GetNode(id string) (*Node, bool) {
	node, exists := g.nodes[id]
	return node, exists
}

// GetAllNodes returns all nodes sorted by ID.
func (g *Graph) GetAllNodes() []*Node {
	nodes := make([]*Node, 0, len(g.nodes))
	for _, node := range g.nodes {
		nodes = append(nodes, node)
	}
	slices.SortFunc(nodes, func(a, b *Node) int { return cmp.Compare(a.ID, b.ID) })
	return nodes
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of distinct edges in the graph.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, targets := range g.edges {
		count += len(targets)
	}
	return count
}

// Degree returns the number of distinct neighbours in and out of a node.
func (g *Graph) Degree(id string) (in, out int) {
	return len(g.parents[id]), len(g.edges[id])
}

// HasCycle returns true if the graph contains a cycle, along with the cycle
// path (first and last element equal). Nodes are visited in sorted order so
// the reported cycle is deterministic.
func (g *Graph) HasCycle() (bool, []string) {
	visited := make(map[string]bool)
	recStack := make(map[string]bool)
	path := make(map[string]string)

	var cyclePath []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		recStack[id] = true

		for _, next := range g.edges[id] {
			if !visited[next] {
				path[next] = id
				if dfs(next) {
					return true
				}
			} else if recStack[next] {
				cyclePath = []string{next}
				for curr := id; curr != next; curr = path[curr] {
					cyclePath = append([]string{curr}, cyclePath...)
				}
				cyclePath = append([]string{next}, cyclePath...)
				return true
			}
		}

		recStack[id] = false
		return false
	}

	for _, id := range g.sortedIDs() {
		if !visited[id] {
			if dfs(id) {
				return true, cyclePath
			}
		}
	}
	return false, nil
}

// GetRoots returns nodes with no incoming edges.
func (g *Graph) GetRoots() []string {
	var roots []string
	for id := range g.nodes {
		if len(g.parents[id]) == 0 {
			roots = append(roots, id)
		}
	}
	sort.Strings(roots)
	return roots
}

// GetLeaves returns nodes with no outgoing edges.
func (g *Graph) GetLeaves() []string {
	var leaves []string
	for id := range g.nodes {
		if len(g.edges[id]) == 0 {
			leaves = append(leaves, id)
		}
	}
	sort.Strings(leaves)
	return leaves
}

// MostConnected returns up to n node ids ordered by total degree, highest
// first, ties broken by id.
func (g *Graph) MostConnected(n int) []string {
	ids := g.sortedIDs()
	slices.SortStableFunc(ids, func(a, b string) int {
		ai, ao := g.Degree(a)
		bi, bo := g.Degree(b)
		return cmp.Compare(bi+bo, ai+ao)
	})
	if n >= 0 && len(ids) > n {
		ids = ids[:n]
	}
	return ids
}

func (g *Graph) sortedIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
