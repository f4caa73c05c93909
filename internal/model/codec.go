// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file decodes node trees from JSON. A node object with a "nodes" field,
// or with type "group", is a Group; anything else is a Leaf.

package model

import (
	"encoding/json"
	"fmt"
)

type wireNode struct {
	Meta
	Nodes           []json.RawMessage `json:"nodes"`
	Edges           []Edge            `json:"edges"`
	Parallel        bool              `json:"parallel"`
	ContinueOnError bool              `json:"continueOnError"`
	MaxConcurrency  int               `json:"maxConcurrency"`
	Variables       map[string]any    `json:"variables"`
}

// UnmarshalNode decodes a node tree.
func UnmarshalNode(data []byte) (Node, error) {
	var w wireNode
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode node: %w", err)
	}
	if w.Nodes == nil && w.Type != GroupType {
		if len(w.Edges) > 0 {
			return nil, NewError(CodeInvalidGraph, w.ID, "leaf node declares edges")
		}
		return &Leaf{Meta: w.Meta}, nil
	}

	g := &Group{
		Meta:            w.Meta,
		Nodes:           make([]Node, 0, len(w.Nodes)),
		Edges:           w.Edges,
		Parallel:        w.Parallel,
		ContinueOnError: w.ContinueOnError,
		MaxConcurrency:  w.MaxConcurrency,
		Variables:       w.Variables,
	}
	if g.Type == "" {
		g.Type = GroupType
	}
	for i, raw := range w.Nodes {
		child, err := UnmarshalNode(raw)
		if err != nil {
			return nil, fmt.Errorf("node %q child %d: %w", w.ID, i, err)
		}
		g.Nodes = append(g.Nodes, child)
	}
	return g, nil
}

// NodeJSON wraps a Node so it can be embedded in JSON documents.
type NodeJSON struct {
	Node Node
}

func (n NodeJSON) MarshalJSON() ([]byte, error) {
	if n.Node == nil {
		return []byte("null"), nil
	}
	return json.Marshal(n.Node)
}

func (n *NodeJSON) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		n.Node = nil
		return nil
	}
	node, err := UnmarshalNode(data)
	if err != nil {
		return err
	}
	n.Node = node
	return nil
}
