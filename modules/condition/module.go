// Package condition provides the condition node. It evaluates a predicate
// over its input, the execution variables and its own parameters.
//
// The output has a result handle holding the boolean and either a true or a
// false handle carrying the default input, so downstream nodes can be wired
// to one branch.
package condition

import (
	"context"
	"sync"

	"github.com/specialistvlad/nodegrid/internal/expr"
	"github.com/specialistvlad/nodegrid/internal/handlers"
	"github.com/specialistvlad/nodegrid/internal/model"
)

// Type is the node type this module registers.
const Type = "condition"

// Module registers the condition node. Compiled expressions are cached.
type Module struct {
	cache sync.Map // expression source -> *expr.Expr
}

// Params are the parameters of a condition node. Other parameters are
// available to the expression under params.
type Params struct {
	Expression string `json:"expression" validate:"required"`
}

func (m *Module) compile(src string) (*expr.Expr, error) {
	if x, ok := m.cache.Load(src); ok {
		return x.(*expr.Expr), nil
	}
	x, err := expr.Compile(src)
	if err != nil {
		return nil, err
	}
	m.cache.Store(src, x)
	return x, nil
}

// OnRunCondition evaluates the predicate.
func (m *Module) OnRunCondition(_ context.Context, ec *model.ExecutionContext) (any, error) {
	var p Params
	if err := handlers.DecodeParams(ec, &p); err != nil {
		return nil, err
	}
	x, err := m.compile(p.Expression)
	if err != nil {
		return nil, model.Wrap(model.CodeInvalidArgument, ec.NodeID, err)
	}
	ok, err := x.EvalBool(expr.Scope{Input: ec.Input, Variables: ec.Variables, Params: ec.Parameters})
	if err != nil {
		return nil, model.Wrap(model.CodeNodeExecution, ec.NodeID, err)
	}

	branch := "false"
	if ok {
		branch = "true"
	}
	return map[string]any{
		"result": ok,
		branch:   handlers.DefaultInput(ec),
	}, nil
}

// Register registers the node with the registry.
func (m *Module) Register(r *handlers.Registry) {
	r.RegisterHandler(Type, &handlers.RegisteredHandler{
		Description: "Evaluates a predicate and routes its input to the true or false handle.",
		InputPorts:  []model.Port{{Name: model.DefaultHandle}},
		OutputPorts: []model.Port{{Name: "result"}, {Name: "true"}, {Name: "false"}},
		Fn:          handlers.Func(m.OnRunCondition),
	})
}
