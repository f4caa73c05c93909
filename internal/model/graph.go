// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package model

// ExecutionGraph is the analyzed plan for one graph level. It is derived from
// a node tree and never mutated after analysis.
type ExecutionGraph struct {
	// Nodes holds the direct children of the analyzed group keyed by id.
	Nodes map[string]Node `json:"-"`
	// ExecutionOrder lists batches of node ids. No node in a batch depends on
	// another node of the same batch.
	ExecutionOrder [][]string `json:"executionOrder"`
	// CriticalPath is the maximum-weight dependency chain.
	CriticalPath   []string           `json:"criticalPath"`
	TotalWeight    float64            `json:"totalWeight"`
	MaxParallelism int                `json:"maxParallelism"`
	Weights        map[string]float64 `json:"weights"`
	// Dependencies maps a node id to the ids of the nodes it depends on.
	Dependencies map[string][]string `json:"dependencies"`
}

// NodeIDs returns every node id of the plan in batch order.
func (g *ExecutionGraph) NodeIDs() []string {
	var ids []string
	for _, batch := range g.ExecutionOrder {
		ids = append(ids, batch...)
	}
	return ids
}

// Weight returns the weight of a node, or 0 when the node is not in the plan.
func (g *ExecutionGraph) Weight(id string) float64 {
	return g.Weights[id]
}
