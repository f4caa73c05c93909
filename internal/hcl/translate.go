package hcl

import (
	"context"
	"fmt"

	"github.com/specialistvlad/nodegrid/internal/expr"
	"github.com/specialistvlad/nodegrid/internal/model"
)

// ConditionType is the node type assigned to nodes that declare a condition
// attribute without a type.
const ConditionType = "condition"

// Blueprint is a named graph loaded from a file.
type Blueprint struct {
	ID          string
	Description string
	// File is the path the blueprint was read from.
	File string
	Root *model.Group
}

// translator converts decoded blocks of one file into the model.
type translator struct {
	ctx  context.Context
	src  []byte
	file string
}

func (t *translator) blueprint(b *blueprintBlock) (*Blueprint, error) {
	root := &model.Group{Meta: model.Meta{ID: b.ID, Type: model.GroupType}}
	vars, err := decodeObject(t.ctx, "variables", b.Variables)
	if err != nil {
		return nil, fmt.Errorf("blueprint '%s': %w", b.ID, err)
	}
	root.Variables = vars
	root.Parallel = deref(b.Parallel)
	root.ContinueOnError = deref(b.ContinueOnError)
	root.MaxConcurrency = deref(b.MaxConcurrency)

	if err := t.children(root, b.Nodes, b.Edges); err != nil {
		return nil, fmt.Errorf("blueprint '%s': %w", b.ID, err)
	}
	return &Blueprint{ID: b.ID, Description: deref(b.Description), File: t.file, Root: root}, nil
}

func (t *translator) children(g *model.Group, nodes []*nodeBlock, edges []*edgeBlock) error {
	for _, nb := range nodes {
		n, err := t.node(nb)
		if err != nil {
			return err
		}
		g.Nodes = append(g.Nodes, n)
	}
	for _, eb := range edges {
		g.Edges = append(g.Edges, edge(eb))
	}
	return nil
}

func (t *translator) node(b *nodeBlock) (model.Node, error) {
	params, err := decodeObject(t.ctx, "parameters", b.Parameters)
	if err != nil {
		return nil, fmt.Errorf("node '%s': %w", b.ID, err)
	}
	timeout, err := decodeDuration(b.Timeout)
	if err != nil {
		return nil, fmt.Errorf("node '%s': timeout: %w", b.ID, err)
	}
	meta := model.Meta{
		ID:         b.ID,
		Type:       deref(b.Type),
		Parameters: params,
		Weight:     deref(b.Weight),
		Timeout:    timeout,
	}

	if present(b.Condition) {
		cond, err := expr.FromHCL(b.Condition, t.src)
		if err != nil {
			return nil, fmt.Errorf("node '%s': condition: %w", b.ID, err)
		}
		if meta.Type == "" {
			meta.Type = ConditionType
		}
		if meta.Parameters == nil {
			meta.Parameters = make(map[string]any, 1)
		}
		meta.Parameters["expression"] = cond.String()
	}

	if len(b.Nodes) == 0 && meta.Type != model.GroupType {
		if len(b.Edges) > 0 {
			return nil, model.NewError(model.CodeInvalidGraph, b.ID, "edges are only allowed inside groups")
		}
		if meta.Type == "" {
			return nil, model.NewError(model.CodeInvalidGraph, b.ID, "node has no type")
		}
		return &model.Leaf{Meta: meta}, nil
	}

	meta.Type = model.GroupType
	g := &model.Group{
		Meta:            meta,
		Parallel:        deref(b.Parallel),
		ContinueOnError: deref(b.ContinueOnError),
		MaxConcurrency:  deref(b.MaxConcurrency),
	}
	vars, err := decodeObject(t.ctx, "variables", b.Variables)
	if err != nil {
		return nil, fmt.Errorf("group '%s': %w", b.ID, err)
	}
	g.Variables = vars
	if err := t.children(g, b.Nodes, b.Edges); err != nil {
		return nil, fmt.Errorf("group '%s': %w", b.ID, err)
	}
	return g, nil
}

func edge(b *edgeBlock) model.Edge {
	e := model.Edge{
		Source:       b.Source,
		Target:       b.Target,
		SourceHandle: deref(b.SourceHandle),
		TargetHandle: deref(b.TargetHandle),
	}
	e.ID = e.Source + "->" + e.Target
	if e.SourceHandle != "" || e.TargetHandle != "" {
		e.ID = fmt.Sprintf("%s:%s->%s:%s", e.Source, e.SourcePort(), e.Target, e.TargetPort())
	}
	return e
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
