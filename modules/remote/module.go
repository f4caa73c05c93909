// Package remote provides the remote_execute node, which runs a blueprint on
// another engine and returns its result. The peer is reached over a
// WebSocket, socket.io or HTTP transport.
package remote

import (
	"context"
	"fmt"
	"time"

	"github.com/specialistvlad/nodegrid/internal/ctxlog"
	"github.com/specialistvlad/nodegrid/internal/handlers"
	"github.com/specialistvlad/nodegrid/internal/model"
	"github.com/specialistvlad/nodegrid/internal/transport"
)

// Type is the node type this module registers.
const Type = "remote_execute"

// Module registers the remote_execute node. Env is the template every
// connection is detected from; the node's url parameter fills in the
// endpoint.
type Module struct {
	Env transport.Environment
}

// Params are the parameters of a remote_execute node.
type Params struct {
	// URL is a ws(s):// or socket.io http(s):// endpoint, or the base URL of
	// an HTTP API when Transport is "http".
	URL         string `json:"url" validate:"required"`
	Transport   string `json:"transport"`
	BlueprintID string `json:"blueprint_id" validate:"required"`
	// Timeout is a duration string such as "30s".
	Timeout string `json:"timeout"`
}

type executeArgs struct {
	BlueprintID string         `json:"blueprintId"`
	Input       map[string]any `json:"input,omitempty"`
	Variables   map[string]any `json:"variables,omitempty"`
	Timeout     int64          `json:"timeout,omitempty"`
}

// OnRunRemote executes the blueprint remotely. The node input becomes the
// remote input and the remote result data becomes the node output.
func (m *Module) OnRunRemote(ctx context.Context, ec *model.ExecutionContext) (any, error) {
	var p Params
	if err := handlers.DecodeParams(ec, &p); err != nil {
		return nil, err
	}
	var timeout time.Duration
	if p.Timeout != "" {
		d, err := time.ParseDuration(p.Timeout)
		if err != nil {
			return nil, model.NewError(model.CodeInvalidArgument, ec.NodeID, fmt.Sprintf("invalid timeout %q", p.Timeout))
		}
		timeout = d
	}

	env := m.Env
	switch p.Transport {
	case "", string(transport.KindSocket):
		env.SocketURL = p.URL
		env.Kind = transport.KindSocket
	case string(transport.KindHTTP):
		env.HTTPURL = p.URL
		env.Kind = transport.KindHTTP
	default:
		return nil, model.NewError(model.CodeInvalidArgument, ec.NodeID, fmt.Sprintf("unsupported transport %q", p.Transport))
	}
	if timeout > 0 {
		env.CallTimeout = timeout + time.Second
	}

	logger := ctxlog.FromContext(ctx).With("node", ec.NodeID, "url", p.URL, "blueprint", p.BlueprintID)
	t, err := transport.Detect(ctx, env)
	if err != nil {
		return nil, model.AsError(ec.NodeID, err)
	}
	defer t.Close()

	logger.Info("Executing blueprint remotely.")
	var res model.ExecutionResult
	err = t.Channel(transport.EngineChannel).Call(ctx, "execute", executeArgs{
		BlueprintID: p.BlueprintID,
		Input:       ec.Input,
		Variables:   ec.Variables,
		Timeout:     timeout.Milliseconds(),
	}, &res)
	if err != nil {
		return nil, model.AsError(ec.NodeID, err)
	}
	if !res.Success {
		if res.Error == nil {
			return nil, model.NewError(model.CodeRemote, ec.NodeID, "remote execution failed")
		}
		e := *res.Error
		e.Message = fmt.Sprintf("remote execution %s: %s", res.ExecutionID, e.Message)
		e.NodeID = ec.NodeID
		return nil, &e
	}
	logger.Debug("Remote execution finished.", "executionID", res.ExecutionID, "duration", res.Duration)
	return res.Data, nil
}

// Register registers the node with the registry.
func (m *Module) Register(r *handlers.Registry) {
	r.RegisterHandler(Type, &handlers.RegisteredHandler{
		Description: "Runs a blueprint on a remote engine and returns its result data.",
		InputPorts:  []model.Port{{Name: model.DefaultHandle}},
		OutputPorts: []model.Port{{Name: model.DefaultHandle}},
		Fn:          handlers.Func(m.OnRunRemote),
	})
}
