// Package env_vars provides the env_vars node, which reads the process
// environment.
package env_vars

import (
	"context"
	"os"
	"strings"

	"github.com/specialistvlad/nodegrid/internal/handlers"
	"github.com/specialistvlad/nodegrid/internal/model"
)

// Type is the node type this module registers.
const Type = "env_vars"

// Module registers the env_vars node.
type Module struct{}

// Params are the parameters of an env_vars node. With neither set every
// variable is returned.
type Params struct {
	// Prefix keeps only variables whose name starts with it. The prefix is
	// stripped from the returned names.
	Prefix string `json:"prefix"`
	// Names keeps only the listed variables. Missing ones are reported as
	// empty strings.
	Names []string `json:"names"`
}

// OnRunEnvVars reads the environment.
func OnRunEnvVars(_ context.Context, ec *model.ExecutionContext) (any, error) {
	var p Params
	if err := handlers.DecodeParams(ec, &p); err != nil {
		return nil, err
	}

	env := make(map[string]string)
	if len(p.Names) > 0 {
		for _, name := range p.Names {
			env[name] = os.Getenv(name)
		}
		return map[string]any{"all": env}, nil
	}
	for _, e := range os.Environ() {
		name, value, ok := strings.Cut(e, "=")
		if !ok {
			continue
		}
		if p.Prefix != "" {
			if !strings.HasPrefix(name, p.Prefix) {
				continue
			}
			name = strings.TrimPrefix(name, p.Prefix)
		}
		env[name] = value
	}
	return map[string]any{"all": env}, nil
}

// Register registers the node with the registry.
func (m *Module) Register(r *handlers.Registry) {
	r.RegisterHandler(Type, &handlers.RegisteredHandler{
		Description: "Returns environment variables under the all output.",
		OutputPorts: []model.Port{{Name: "all"}},
		Fn:          handlers.Func(OnRunEnvVars),
	})
}
