package executor

import (
	"context"
	"maps"

	"github.com/specialistvlad/nodegrid/internal/model"
)

// buildInput resolves the incoming edges of a node into its input map. A node
// without incoming edges receives the level's input unchanged. Edges whose
// source produced no output contribute nothing. When several edges feed the
// same target handle the last declared edge wins.
func (r *graphRun) buildInput(ctx context.Context, id string) map[string]any {
	incoming := r.group.Incoming(id)
	if len(incoming) == 0 {
		return maps.Clone(r.ec.Input)
	}

	input := make(map[string]any, len(incoming))
	for _, e := range incoming {
		out, ok, err := r.store.GetOutput(ctx, e.Source)
		if err != nil || !ok {
			continue
		}
		input[e.TargetPort()] = pick(out, e.SourcePort())
	}
	return input
}

// pick selects the value of an output handle. A map output is indexed by the
// handle; the default handle falls back to the whole output.
func pick(out any, handle string) any {
	if m, ok := out.(map[string]any); ok {
		if v, ok := m[handle]; ok {
			return v
		}
	}
	if handle == model.DefaultHandle {
		return out
	}
	return nil
}
