// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package model

import "fmt"

// Validate checks the structural invariants of a node tree: every graph has
// unique non-empty node ids, every edge resolves inside its own graph, no edge
// is a self loop, and leaf nodes carry a type. Cycles are the analyzer's concern.
func Validate(n Node) error {
	if n == nil {
		return NewError(CodeInvalidGraph, "", "node is nil")
	}
	switch v := n.(type) {
	case *Leaf:
		if v.ID == "" {
			return NewError(CodeInvalidGraph, "", "node id is empty")
		}
		if v.Type == "" {
			return NewError(CodeInvalidGraph, v.ID, "leaf node has no type")
		}
		return nil
	case *Group:
		return validateGroup(v)
	default:
		return NewError(CodeInvalidGraph, n.NodeID(), fmt.Sprintf("unsupported node variant %T", n))
	}
}

func validateGroup(g *Group) error {
	if g.ID == "" {
		return NewError(CodeInvalidGraph, "", "group id is empty")
	}
	seen := make(map[string]bool, len(g.Nodes))
	for _, child := range g.Nodes {
		if child == nil {
			return NewError(CodeInvalidGraph, g.ID, "group contains a nil node")
		}
		id := child.NodeID()
		if seen[id] {
			return NewError(CodeInvalidGraph, id, fmt.Sprintf("duplicate node id in group '%s'", g.ID))
		}
		seen[id] = true
		if err := Validate(child); err != nil {
			return err
		}
	}
	for _, e := range g.Edges {
		if !seen[e.Source] {
			return NewError(CodeInvalidGraph, e.Source, fmt.Sprintf("edge '%s' references unknown source node in group '%s'", e.ID, g.ID))
		}
		if !seen[e.Target] {
			return NewError(CodeInvalidGraph, e.Target, fmt.Sprintf("edge '%s' references unknown target node in group '%s'", e.ID, g.ID))
		}
		if e.Source == e.Target {
			return NewError(CodeCycleDetected, e.Source, fmt.Sprintf("edge '%s' is a self loop", e.ID))
		}
	}
	return nil
}
