package dag

import (
	"fmt"
	"strings"
)

// Graph is a dependency graph over string ids. Nodes are numbered in
// insertion order and edges are kept as sorted index lists, so every query
// is deterministic for a given declaration order.
//
// A Graph is built and queried by one goroutine at a time.
type Graph struct {
	ids   []string
	index map[string]int
	// deps[i] are the nodes i depends on, dependents[i] the nodes depending on i.
	deps       [][]int
	dependents [][]int
}

// CycleError reports a dependency cycle. Path lists the nodes along the
// cycle and repeats the first one at the end, for example [a b c a].
type CycleError struct {
	NodeID string
	Path   []string
}

func (e *CycleError) Error() string {
	if len(e.Path) == 0 {
		return fmt.Sprintf("cycle detected involving node '%s'", e.NodeID)
	}
	return fmt.Sprintf("cycle detected: %s", strings.Join(e.Path, " -> "))
}
