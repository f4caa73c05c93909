package hcl

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/specialistvlad/nodegrid/internal/ctxlog"
	"github.com/specialistvlad/nodegrid/internal/expr"
)

// present reports whether an optional attribute was written in the file.
// gohcl fills a missing hcl.Expression field with a static null expression.
func present(e hcl.Expression) bool {
	_, ok := e.(hclsyntax.Expression)
	return ok
}

// decodeObject evaluates an attribute that must hold an object, such as
// parameters or variables, into plain Go values. A missing or null
// attribute yields nil.
func decodeObject(ctx context.Context, name string, e hcl.Expression) (map[string]any, error) {
	if e == nil || !present(e) {
		return nil, nil
	}
	val, diags := e.Value(expr.EvalContext())
	if diags.HasErrors() {
		return nil, diags
	}
	if val.IsNull() {
		return nil, nil
	}
	ty := val.Type()
	if !ty.IsObjectType() && !ty.IsMapType() {
		return nil, fmt.Errorf("%s must be an object, got %s", name, ty.FriendlyName())
	}

	goVal, err := expr.FromCty(val)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", name, err)
	}
	ctxlog.FromContext(ctx).Debug("Decoded object attribute.", "attribute", name, "keys", val.LengthInt())
	return goVal.(map[string]any), nil
}

// decode converts a cty value into the Go value goVal points to, converting
// the value to the implied type of the target first.
func decode(val cty.Value, goVal any) error {
	want, err := gocty.ImpliedType(goVal)
	if err != nil {
		return gocty.FromCtyValue(val, goVal)
	}
	converted, err := convert.Convert(val, want)
	if err != nil {
		return fmt.Errorf("cannot convert %s to required type %s: %w", val.Type().FriendlyName(), want.FriendlyName(), err)
	}
	return gocty.FromCtyValue(converted, goVal)
}

// decodeDuration evaluates a timeout attribute. Strings use time.ParseDuration
// syntax; numbers are milliseconds.
func decodeDuration(e hcl.Expression) (time.Duration, error) {
	if e == nil || !present(e) {
		return 0, nil
	}
	val, diags := e.Value(expr.EvalContext())
	if diags.HasErrors() {
		return 0, diags
	}
	if val.IsNull() {
		return 0, nil
	}
	if val.Type() == cty.Number {
		var ms int64
		if err := decode(val, &ms); err != nil {
			return 0, err
		}
		return time.Duration(ms) * time.Millisecond, nil
	}
	var s string
	if err := decode(val, &s); err != nil {
		return 0, err
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}
