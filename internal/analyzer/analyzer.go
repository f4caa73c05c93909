package analyzer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/specialistvlad/nodegrid/internal/dag"
	"github.com/specialistvlad/nodegrid/internal/model"
)

// DefaultWeight is the weight of a leaf node that declares none.
const DefaultWeight = 1.0

var (
	// ErrCycleDetected is wrapped by every error caused by a dependency cycle.
	ErrCycleDetected = errors.New("cycle detected")
	// ErrInvalidGraph is wrapped by every other structural error.
	ErrInvalidGraph = errors.New("invalid graph")
)

// Analyze validates root and computes the execution plan of its graph level.
// A leaf root yields a single-node plan. Nested groups are analyzed too, so a
// cycle anywhere in the tree is reported before any work is scheduled.
func Analyze(root model.Node) (*model.ExecutionGraph, error) {
	if err := model.Validate(root); err != nil {
		return nil, classify(err)
	}

	switch n := root.(type) {
	case *model.Leaf:
		w := Weight(n)
		return &model.ExecutionGraph{
			Nodes:          map[string]model.Node{n.ID: n},
			ExecutionOrder: [][]string{{n.ID}},
			CriticalPath:   []string{n.ID},
			TotalWeight:    w,
			MaxParallelism: 1,
			Weights:        map[string]float64{n.ID: w},
			Dependencies:   map[string][]string{n.ID: {}},
		}, nil
	case *model.Group:
		if err := checkNested(n); err != nil {
			return nil, err
		}
		return analyzeGroup(n)
	default:
		return nil, fmt.Errorf("%w: unsupported node variant %T", ErrInvalidGraph, root)
	}
}

// Weight returns the weight of a node: its declared weight, else for a group
// the total weight of its subgraph, else DefaultWeight.
func Weight(n model.Node) float64 {
	if w := n.Base().Weight; w > 0 {
		return w
	}
	g, ok := n.(*model.Group)
	if !ok || len(g.Nodes) == 0 {
		return DefaultWeight
	}
	var total float64
	for _, child := range g.Nodes {
		total += Weight(child)
	}
	return total
}

func analyzeGroup(g *model.Group) (*model.ExecutionGraph, error) {
	d, err := build(g)
	if err != nil {
		return nil, err
	}
	if err := d.DetectCycles(); err != nil {
		return nil, cycleError(g.ID, err)
	}
	batches, err := d.Batches()
	if err != nil {
		return nil, cycleError(g.ID, err)
	}

	plan := &model.ExecutionGraph{
		Nodes:          make(map[string]model.Node, len(g.Nodes)),
		ExecutionOrder: batches,
		Weights:        make(map[string]float64, len(g.Nodes)),
		Dependencies:   make(map[string][]string, len(g.Nodes)),
	}
	if plan.ExecutionOrder == nil {
		plan.ExecutionOrder = [][]string{}
	}
	for _, child := range g.Nodes {
		id := child.NodeID()
		plan.Nodes[id] = child
		plan.Weights[id] = Weight(child)
		plan.TotalWeight += plan.Weights[id]
		deps, err := d.Dependencies(id)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidGraph, err)
		}
		plan.Dependencies[id] = deps
	}
	for _, batch := range batches {
		plan.MaxParallelism = max(plan.MaxParallelism, len(batch))
	}

	path, _, err := d.LongestPath(plan.Weight)
	if err != nil {
		return nil, cycleError(g.ID, err)
	}
	plan.CriticalPath = path
	return plan, nil
}

// build creates the dependency graph of the direct children of g. Children
// are added in declaration order.
func build(g *model.Group) (*dag.Graph, error) {
	d := dag.New()
	for _, child := range g.Nodes {
		d.AddNode(child.NodeID())
	}
	for _, e := range g.Edges {
		if err := d.AddEdge(e.Source, e.Target); err != nil {
			var cycle *dag.CycleError
			if errors.As(err, &cycle) {
				return nil, cycleError(g.ID, err)
			}
			return nil, model.Wrap(model.CodeInvalidGraph, e.Target, fmt.Errorf("%w: group '%s': %v", ErrInvalidGraph, g.ID, err))
		}
	}
	return d, nil
}

// checkNested rejects cycles in every group below g.
func checkNested(g *model.Group) error {
	for _, child := range g.Nodes {
		inner, ok := child.(*model.Group)
		if !ok {
			continue
		}
		d, err := build(inner)
		if err != nil {
			return err
		}
		if err := d.DetectCycles(); err != nil {
			return cycleError(inner.ID, err)
		}
		if err := checkNested(inner); err != nil {
			return err
		}
	}
	return nil
}

func cycleError(groupID string, err error) error {
	nodeID, path := "", ""
	var cycle *dag.CycleError
	if errors.As(err, &cycle) {
		nodeID = cycle.NodeID
		path = strings.Join(cycle.Path, " -> ")
	}
	return model.Wrap(model.CodeCycleDetected, nodeID,
		fmt.Errorf("%w in group '%s' involving node '%s': %s", ErrCycleDetected, groupID, nodeID, path))
}

// classify maps validation errors onto the package sentinels while keeping
// their model.Error code.
func classify(err error) error {
	var me *model.Error
	if !errors.As(err, &me) {
		return fmt.Errorf("%w: %v", ErrInvalidGraph, err)
	}
	sentinel := ErrInvalidGraph
	if me.Code == model.CodeCycleDetected {
		sentinel = ErrCycleDetected
	}
	out := *me
	out.Err = fmt.Errorf("%w: %s", sentinel, me.Message)
	return &out
}
