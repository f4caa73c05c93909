// Package delay provides the delay node, which waits before passing its
// input on. It reports progress while waiting.
package delay

import (
	"context"
	"time"

	"github.com/specialistvlad/nodegrid/internal/handlers"
	"github.com/specialistvlad/nodegrid/internal/model"
)

// Type is the node type this module registers.
const Type = "delay"

// steps is how many progress reports a wait is divided into.
const steps = 10

// Module registers the delay node.
type Module struct{}

// Params are the parameters of a delay node.
type Params struct {
	// Ms is the wait in milliseconds.
	Ms int64 `json:"ms"`
}

// OnRunDelay waits, honouring cancellation.
func OnRunDelay(ctx context.Context, ec *model.ExecutionContext) (any, error) {
	var p Params
	if err := handlers.DecodeParams(ec, &p); err != nil {
		return nil, err
	}
	if p.Ms < 0 {
		return nil, model.NewError(model.CodeInvalidArgument, ec.NodeID, "ms must not be negative")
	}

	total := time.Duration(p.Ms) * time.Millisecond
	step := total / steps
	for i := 1; i <= steps && step > 0; i++ {
		t := time.NewTimer(step)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
		handlers.ReportProgress(ctx, float64(i*100/steps))
	}
	return handlers.DefaultInput(ec), nil
}

// Register registers the node with the registry.
func (m *Module) Register(r *handlers.Registry) {
	r.RegisterHandler(Type, &handlers.RegisteredHandler{
		Description: "Waits ms milliseconds, then passes its input on.",
		InputPorts:  []model.Port{{Name: model.DefaultHandle}},
		OutputPorts: []model.Port{{Name: model.DefaultHandle}},
		Fn:          handlers.Func(OnRunDelay),
	})
}
