package expr

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"

	"github.com/specialistvlad/nodegrid/internal/model"
)

// Roots are the only variables an expression may reference.
var Roots = []string{"input", "variables", "params"}

var functions = map[string]function.Function{
	"abs":       stdlib.AbsoluteFunc,
	"ceil":      stdlib.CeilFunc,
	"coalesce":  stdlib.CoalesceFunc,
	"contains":  stdlib.ContainsFunc,
	"floor":     stdlib.FloorFunc,
	"join":      stdlib.JoinFunc,
	"length":    stdlib.LengthFunc,
	"lower":     stdlib.LowerFunc,
	"max":       stdlib.MaxFunc,
	"min":       stdlib.MinFunc,
	"strlen":    stdlib.StrlenFunc,
	"trimspace": stdlib.TrimSpaceFunc,
	"upper":     stdlib.UpperFunc,
}

// Functions lists the callable function names, sorted.
func Functions() []string {
	names := make([]string, 0, len(functions))
	for name := range functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Scope holds the values an expression is evaluated against.
type Scope struct {
	Input     map[string]any
	Variables map[string]any
	Params    map[string]any
}

// Expr is a compiled expression. It is immutable and safe for concurrent use.
type Expr struct {
	src        string
	expr       hclsyntax.Expression
	references []string
	called     []string
}

// Compile parses src and checks it against the closed grammar. Failures carry
// the INVALID_ARGUMENT code.
func Compile(src string) (*Expr, error) {
	if strings.TrimSpace(src) == "" {
		return nil, model.NewError(model.CodeInvalidArgument, "", "empty expression")
	}
	parsed, diags := hclsyntax.ParseExpression([]byte(src), "expression", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, model.NewError(model.CodeInvalidArgument, "", fmt.Sprintf("parse expression %q: %s", src, diags.Error()))
	}
	return compile(src, parsed)
}

// FromHCL checks an expression that was already parsed, for example an
// attribute of a blueprint file. file holds the bytes the expression was
// parsed from.
func FromHCL(e hcl.Expression, file []byte) (*Expr, error) {
	parsed, ok := e.(hclsyntax.Expression)
	if !ok {
		return nil, model.NewError(model.CodeInvalidArgument, "", fmt.Sprintf("unsupported expression type %T", e))
	}
	return compile(string(e.Range().SliceBytes(file)), parsed)
}

func compile(src string, parsed hclsyntax.Expression) (*Expr, error) {
	x := &Expr{src: src, expr: parsed}

	refs := make(map[string]struct{})
	for _, t := range parsed.Variables() {
		root := t.RootName()
		if !slices.Contains(Roots, root) {
			return nil, model.NewError(model.CodeInvalidArgument, "",
				fmt.Sprintf("expression %q references %q; only %s are available", src, root, strings.Join(Roots, ", ")))
		}
		refs[traversalKey(t)] = struct{}{}
	}

	called := make(map[string]struct{})
	walkForFunctions(parsed, called)
	for name := range called {
		if _, ok := functions[name]; !ok {
			return nil, model.NewError(model.CodeInvalidArgument, "",
				fmt.Sprintf("expression %q calls unknown function %q", src, name))
		}
	}

	x.references = sortedKeys(refs)
	x.called = sortedKeys(called)
	return x, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(src string) *Expr {
	x, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return x
}

func (x *Expr) String() string { return x.src }

// References returns the unique variable traversals of the expression, such
// as "input.value", sorted.
func (x *Expr) References() []string { return slices.Clone(x.references) }

// CalledFunctions returns the unique function names the expression calls,
// sorted.
func (x *Expr) CalledFunctions() []string { return slices.Clone(x.called) }

// Eval evaluates the expression and returns the result as plain Go values:
// nil, bool, float64, string, []any or map[string]any.
func (x *Expr) Eval(scope Scope) (any, error) {
	v, err := x.value(scope)
	if err != nil {
		return nil, err
	}
	return FromCty(v)
}

// EvalBool evaluates a predicate. A non-boolean or null result is an error.
func (x *Expr) EvalBool(scope Scope) (bool, error) {
	v, err := x.value(scope)
	if err != nil {
		return false, err
	}
	if v.IsNull() || !v.IsKnown() || !v.Type().Equals(cty.Bool) {
		return false, model.NewError(model.CodeInvalidArgument, "",
			fmt.Sprintf("expression %q evaluated to %s, want bool", x.src, v.Type().FriendlyName()))
	}
	return v.True(), nil
}

func (x *Expr) value(scope Scope) (cty.Value, error) {
	ctx, err := scope.evalContext()
	if err != nil {
		return cty.NilVal, err
	}
	v, diags := x.expr.Value(ctx)
	if diags.HasErrors() {
		return cty.NilVal, model.NewError(model.CodeInvalidArgument, "",
			fmt.Sprintf("evaluate %q: %s", x.src, diags.Error()))
	}
	return v, nil
}

func (s Scope) evalContext() (*hcl.EvalContext, error) {
	vars := make(map[string]cty.Value, len(Roots))
	for name, m := range map[string]map[string]any{"input": s.Input, "variables": s.Variables, "params": s.Params} {
		v, err := ToCty(m)
		if err != nil {
			return nil, model.NewError(model.CodeInvalidArgument, "", fmt.Sprintf("convert %s: %v", name, err))
		}
		if v.IsNull() {
			v = cty.EmptyObjectVal
		}
		vars[name] = v
	}
	return &hcl.EvalContext{Variables: vars, Functions: functions}, nil
}

// traversalKey renders a traversal canonically, e.g. input.items[0].name.
func traversalKey(t hcl.Traversal) string {
	return strings.TrimSpace(string(hclwrite.TokensForTraversal(t).Bytes()))
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// walkForFunctions collects the names of every function call in the tree.
func walkForFunctions(e hclsyntax.Expression, found map[string]struct{}) {
	if e == nil {
		return
	}
	switch e := e.(type) {
	case *hclsyntax.FunctionCallExpr:
		found[e.Name] = struct{}{}
		for _, arg := range e.Args {
			walkForFunctions(arg, found)
		}
	case *hclsyntax.BinaryOpExpr:
		walkForFunctions(e.LHS, found)
		walkForFunctions(e.RHS, found)
	case *hclsyntax.ConditionalExpr:
		walkForFunctions(e.Condition, found)
		walkForFunctions(e.TrueResult, found)
		walkForFunctions(e.FalseResult, found)
	case *hclsyntax.UnaryOpExpr:
		walkForFunctions(e.Val, found)
	case *hclsyntax.TemplateExpr:
		for _, part := range e.Parts {
			walkForFunctions(part, found)
		}
	case *hclsyntax.TemplateWrapExpr:
		walkForFunctions(e.Wrapped, found)
	case *hclsyntax.TupleConsExpr:
		for _, item := range e.Exprs {
			walkForFunctions(item, found)
		}
	case *hclsyntax.ObjectConsExpr:
		for _, item := range e.Items {
			walkForFunctions(item.KeyExpr, found)
			walkForFunctions(item.ValueExpr, found)
		}
	case *hclsyntax.ObjectConsKeyExpr:
		walkForFunctions(e.Wrapped, found)
	case *hclsyntax.ForExpr:
		walkForFunctions(e.CollExpr, found)
		walkForFunctions(e.KeyExpr, found)
		walkForFunctions(e.ValExpr, found)
		walkForFunctions(e.CondExpr, found)
	case *hclsyntax.IndexExpr:
		walkForFunctions(e.Collection, found)
		walkForFunctions(e.Key, found)
	case *hclsyntax.RelativeTraversalExpr:
		walkForFunctions(e.Source, found)
	case *hclsyntax.SplatExpr:
		walkForFunctions(e.Source, found)
		walkForFunctions(e.Each, found)
	case *hclsyntax.ParenthesesExpr:
		walkForFunctions(e.Expression, found)
	}
}

// EvalContext returns an evaluation context with the callable functions and
// no variables. It is used for static values such as node parameters.
func EvalContext() *hcl.EvalContext {
	return &hcl.EvalContext{Functions: maps.Clone(functions)}
}
