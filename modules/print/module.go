// Package print provides the print node, which writes its input to a writer
// and passes it on unchanged.
package print

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/specialistvlad/nodegrid/internal/ctxlog"
	"github.com/specialistvlad/nodegrid/internal/handlers"
	"github.com/specialistvlad/nodegrid/internal/model"
)

// Type is the node type this module registers.
const Type = "print"

// Module registers the print node. Out defaults to os.Stdout.
type Module struct {
	Out io.Writer

	mu sync.Mutex
}

// Params are the parameters of a print node.
type Params struct {
	// Label prefixes every printed line. It defaults to the node id.
	Label string `json:"label"`
}

func (m *Module) run(ctx context.Context, ec *model.ExecutionContext) (any, error) {
	var p Params
	if err := handlers.DecodeParams(ec, &p); err != nil {
		return nil, err
	}
	if p.Label == "" {
		p.Label = ec.NodeID
	}
	ctxlog.FromContext(ctx).Info("Printing input.", "node", ec.NodeID, "keys", len(ec.Input))

	out := m.Out
	if out == nil {
		out = os.Stdout
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(ec.Input) == 0 {
		fmt.Fprintf(out, "[%s] (null)\n", p.Label)
		return nil, nil
	}

	keys := make([]string, 0, len(ec.Input))
	for k := range ec.Input {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "[%s] %s = %s\n", p.Label, k, render(ec.Input[k]))
	}
	return handlers.DefaultInput(ec), nil
}

func render(v any) string {
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// Register registers the node with the registry.
func (m *Module) Register(r *handlers.Registry) {
	r.RegisterHandler(Type, &handlers.RegisteredHandler{
		Description: "Writes its input and passes it on unchanged.",
		InputPorts:  []model.Port{{Name: model.DefaultHandle}},
		OutputPorts: []model.Port{{Name: model.DefaultHandle}},
		Fn:          handlers.Func(m.run),
	})
}
