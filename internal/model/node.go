// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the Node sum type. A node is either a Leaf, whose body is
// an executable looked up by type, or a Group, which owns a nested graph.

package model

import "time"

// DefaultHandle is the handle name used when an edge omits its source or
// target handle.
const DefaultHandle = "default"

// GroupType is the Type tag carried by group nodes built without an explicit type.
const GroupType = "group"

// Port declares a named input or output handle of a node.
type Port struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Meta holds the fields shared by every node variant.
type Meta struct {
	// ID is unique within the containing graph.
	ID string `json:"id"`
	// Type selects the executable for a leaf node.
	Type string `json:"type"`
	// Parameters is the node's opaque configuration.
	Parameters  map[string]any `json:"parameters,omitempty"`
	InputPorts  []Port         `json:"inputPorts,omitempty"`
	OutputPorts []Port         `json:"outputPorts,omitempty"`
	// Weight is the declared cost of the node. Zero means "use the default".
	Weight float64 `json:"weight,omitempty"`
	// Timeout bounds a single execution of the node. Zero means no node-level timeout.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// Node is a unit of work in a graph. The only implementations are *Leaf and
// *Group.
type Node interface {
	// NodeID returns the node's id within its containing graph.
	NodeID() string
	// Base returns the shared node fields.
	Base() *Meta
	isNode()
}

// Leaf is an atomic node. Its body is an opaque executable registered for Type.
type Leaf struct {
	Meta
}

// Group is a node that contains a nested graph.
type Group struct {
	Meta
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`

	// Parallel runs all nodes of a batch concurrently instead of in plan order.
	Parallel bool `json:"parallel,omitempty"`
	// ContinueOnError keeps independent branches running after a node fails.
	ContinueOnError bool `json:"continueOnError,omitempty"`
	// MaxConcurrency bounds a parallel batch. Zero defers to the executor.
	MaxConcurrency int `json:"maxConcurrency,omitempty"`
	// Variables override the inherited execution variables for this subgraph.
	Variables map[string]any `json:"variables,omitempty"`
}

func (l *Leaf) NodeID() string { return l.ID }
func (l *Leaf) Base() *Meta { return &l.Meta }
func (*Leaf) isNode() {}

func (g *Group) NodeID() string { return g.ID }
func (g *Group) Base() *Meta { return &g.Meta }
func (*Group) isNode() {}

// NewLeaf creates a leaf node of the given type.
func NewLeaf(id, nodeType string, params map[string]any) *Leaf {
	return &Leaf{Meta: Meta{ID: id, Type: nodeType, Parameters: params}}
}

// NewGroup creates a group node owning the given nodes and edges.
func NewGroup(id string, nodes []Node, edges []Edge) *Group {
	return &Group{
		Meta:  Meta{ID: id, Type: GroupType},
		Nodes: nodes,
		Edges: edges,
	}
}

// Child returns the direct child with the given id.
func (g *Group) Child(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.NodeID() == id {
			return n, true
		}
	}
	return nil, false
}

// Incoming returns the edges of g that target the node with the given id, in
// declaration order.
func (g *Group) Incoming(id string) []Edge {
	var in []Edge
	for _, e := range g.Edges {
		if e.Target == id {
			in = append(in, e)
		}
	}
	return in
}

// Sinks returns the ids of the direct children with no outgoing edge, in
// declaration order.
func (g *Group) Sinks() []string {
	hasOut := make(map[string]bool, len(g.Edges))
	for _, e := range g.Edges {
		hasOut[e.Source] = true
	}
	var sinks []string
	for _, n := range g.Nodes {
		if !hasOut[n.NodeID()] {
			sinks = append(sinks, n.NodeID())
		}
	}
	return sinks
}

// Edge is a directed data-flow link between two nodes of the same graph.
type Edge struct {
	ID           string `json:"id,omitempty"`
	Source       string `json:"source"`
	SourceHandle string `json:"sourceHandle,omitempty"`
	Target       string `json:"target"`
	TargetHandle string `json:"targetHandle,omitempty"`
}

// Connect is shorthand for an edge between the default handles of two nodes.
func Connect(source, target string) Edge {
	return Edge{
		ID:     source + "->" + target,
		Source: source,
		Target: target,
	}
}

// SourcePort returns the source handle, falling back to DefaultHandle.
func (e Edge) SourcePort() string {
	if e.SourceHandle == "" {
		return DefaultHandle
	}
	return e.SourceHandle
}

// TargetPort returns the target handle, falling back to DefaultHandle.
func (e Edge) TargetPort() string {
	if e.TargetHandle == "" {
		return DefaultHandle
	}
	return e.TargetHandle
}
