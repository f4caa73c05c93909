package dag

import (
	"fmt"
	"slices"
)

// New creates an empty Graph.
func New() *Graph {
	return &Graph{index: make(map[string]int)}
}

// AddNode adds a node. Adding an existing id is a no-op.
func (g *Graph) AddNode(id string) {
	if _, ok := g.index[id]; ok {
		return
	}
	g.index[id] = len(g.ids)
	g.ids = append(g.ids, id)
	g.deps = append(g.deps, nil)
	g.dependents = append(g.dependents, nil)
}

// AddEdge records that to depends on from. Both nodes must exist. A self
// edge is reported as a cycle; a repeated edge is a no-op.
func (g *Graph) AddEdge(from, to string) error {
	if from == to {
		return &CycleError{NodeID: from, Path: []string{from, from}}
	}
	fi, ok := g.index[from]
	if !ok {
		return fmt.Errorf("source node not found: %s", from)
	}
	ti, ok := g.index[to]
	if !ok {
		return fmt.Errorf("destination node not found: %s", to)
	}
	g.deps[ti] = insertSorted(g.deps[ti], fi)
	g.dependents[fi] = insertSorted(g.dependents[fi], ti)
	return nil
}

func insertSorted(list []int, v int) []int {
	i, found := slices.BinarySearch(list, v)
	if found {
		return list
	}
	return slices.Insert(list, i, v)
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.ids) }

// Nodes returns all ids in insertion order.
func (g *Graph) Nodes() []string { return slices.Clone(g.ids) }

// Dependencies returns the ids id depends on, in insertion order.
func (g *Graph) Dependencies(id string) ([]string, error) {
	i, ok := g.index[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	return g.names(g.deps[i]), nil
}

// Dependents returns the ids depending on id, in insertion order.
func (g *Graph) Dependents(id string) ([]string, error) {
	i, ok := g.index[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	return g.names(g.dependents[i]), nil
}

func (g *Graph) names(idx []int) []string {
	out := make([]string, len(idx))
	for k, i := range idx {
		out[k] = g.ids[i]
	}
	return out
}

// DetectCycles reports the first cycle found by a depth-first search that
// starts from nodes in insertion order.
func (g *Graph) DetectCycles() error {
	const (
		unvisited = iota
		onStack
		done
	)
	state := make([]int, len(g.ids))
	var stack []int

	var visit func(i int) *CycleError
	visit = func(i int) *CycleError {
		state[i] = onStack
		stack = append(stack, i)
		for _, next := range g.dependents[i] {
			switch state[next] {
			case onStack:
				start := slices.Index(stack, next)
				path := append(g.names(stack[start:]), g.ids[next])
				return &CycleError{NodeID: g.ids[next], Path: path}
			case unvisited:
				if err := visit(next); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[i] = done
		return nil
	}

	for i := range g.ids {
		if state[i] != unvisited {
			continue
		}
		if err := visit(i); err != nil {
			return err
		}
	}
	return nil
}
