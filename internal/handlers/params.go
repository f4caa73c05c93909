package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/specialistvlad/nodegrid/internal/model"
)

// paramValidate checks the validate tags of parameter structs. Field names
// in its errors are the json names nodes are configured with.
var paramValidate = newParamValidator()

func newParamValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return f.Name
		}
		return name
	})
	return v
}

// DecodeParams decodes the parameters of the running node into v, which is a
// pointer to a struct with json tags. Unknown parameters are ignored. Fields
// tagged `validate:"required"` must be present and non-zero.
func DecodeParams(ec *model.ExecutionContext, v any) error {
	if len(ec.Parameters) > 0 {
		raw, err := json.Marshal(ec.Parameters)
		if err != nil {
			return model.NewError(model.CodeInvalidArgument, ec.NodeID, fmt.Sprintf("encode parameters: %v", err))
		}
		if err := json.Unmarshal(raw, v); err != nil {
			return model.NewError(model.CodeInvalidArgument, ec.NodeID, fmt.Sprintf("invalid parameters: %v", err))
		}
	}

	err := paramValidate.Struct(v)
	if err == nil {
		return nil
	}
	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		// v is not a struct, so there is nothing to check.
		return nil
	}
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) {
		return model.NewError(model.CodeInvalidArgument, ec.NodeID, fmt.Sprintf("invalid parameters: %v", err))
	}
	msgs := make([]string, 0, len(fields))
	for _, fe := range fields {
		msgs = append(msgs, paramMessage(fe))
	}
	return model.NewError(model.CodeInvalidArgument, ec.NodeID, strings.Join(msgs, "; "))
}

// MissingParam is the error for a required parameter that was not given.
func MissingParam(ec *model.ExecutionContext, name string) error {
	return model.NewError(model.CodeInvalidArgument, ec.NodeID, fmt.Sprintf("missing required parameter %q", name))
}

func paramMessage(fe validator.FieldError) string {
	if fe.Tag() == "required" {
		return fmt.Sprintf("missing required parameter %q", fe.Field())
	}
	if fe.Param() != "" {
		return fmt.Sprintf("invalid parameter %q: must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param())
	}
	return fmt.Sprintf("invalid parameter %q: must satisfy %s", fe.Field(), fe.Tag())
}

// DefaultInput returns the value on the default input handle, or the whole
// input map when nothing arrived on that handle.
func DefaultInput(ec *model.ExecutionContext) any {
	if v, ok := ec.Input[model.DefaultHandle]; ok {
		return v
	}
	if len(ec.Input) == 0 {
		return nil
	}
	return ec.Input
}
