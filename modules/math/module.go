// Package math provides the math node, which applies an arithmetic operation
// to the number on its default input.
package math

import (
	"context"
	"fmt"
	stdmath "math"
	"strconv"

	"github.com/specialistvlad/nodegrid/internal/handlers"
	"github.com/specialistvlad/nodegrid/internal/model"
)

// Type is the node type this module registers.
const Type = "math"

// Module registers the math node.
type Module struct{}

// Params are the parameters of a math node.
type Params struct {
	// Operation is one of add, subtract, multiply, divide, pow, negate, abs.
	Operation string `json:"operation" validate:"required"`
	// Operand is the right-hand side of binary operations. When the node has
	// an operand input it takes precedence.
	Operand float64 `json:"operand"`
}

// OnRunMath applies the operation.
func OnRunMath(_ context.Context, ec *model.ExecutionContext) (any, error) {
	var p Params
	if err := handlers.DecodeParams(ec, &p); err != nil {
		return nil, err
	}

	x, err := number(ec.Input[model.DefaultHandle])
	if err != nil {
		return nil, model.NewError(model.CodeInvalidArgument, ec.NodeID, "input: "+err.Error())
	}
	y := p.Operand
	if v, ok := ec.Input["operand"]; ok {
		if y, err = number(v); err != nil {
			return nil, model.NewError(model.CodeInvalidArgument, ec.NodeID, "operand: "+err.Error())
		}
	}

	switch p.Operation {
	case "add":
		return x + y, nil
	case "subtract":
		return x - y, nil
	case "multiply":
		return x * y, nil
	case "divide":
		if y == 0 {
			return nil, model.NewError(model.CodeNodeExecution, ec.NodeID, "division by zero")
		}
		return x / y, nil
	case "pow":
		return stdmath.Pow(x, y), nil
	case "negate":
		return -x, nil
	case "abs":
		return stdmath.Abs(x), nil
	default:
		return nil, model.NewError(model.CodeInvalidArgument, ec.NodeID, fmt.Sprintf("unknown operation %q", p.Operation))
	}
}

// number accepts the numeric shapes that arrive from JSON, HCL and Go
// callers. A missing value counts as zero.
func number(v any) (float64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(n, 64)
	default:
		return 0, fmt.Errorf("%v (%T) is not a number", v, v)
	}
}

// Register registers the node with the registry.
func (m *Module) Register(r *handlers.Registry) {
	r.RegisterHandler(Type, &handlers.RegisteredHandler{
		Description: "Applies an arithmetic operation to its default input.",
		InputPorts:  []model.Port{{Name: model.DefaultHandle}, {Name: "operand"}},
		OutputPorts: []model.Port{{Name: model.DefaultHandle}},
		Fn:          handlers.Func(OnRunMath),
	})
}
