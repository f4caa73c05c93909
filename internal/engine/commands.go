package engine

import (
	"context"
	"encoding/json"
	"time"

	"github.com/specialistvlad/nodegrid/internal/model"
	"github.com/specialistvlad/nodegrid/internal/queue"
	"github.com/specialistvlad/nodegrid/internal/transport"
)

// executeArgs is the wire form of Request. Durations are milliseconds.
type executeArgs struct {
	Graph       *model.NodeJSON `json:"graph,omitempty"`
	BlueprintID string          `json:"blueprintId,omitempty"`
	Input       map[string]any  `json:"input,omitempty"`
	Variables   map[string]any  `json:"variables,omitempty"`
	Debug       *model.Debug    `json:"debug,omitempty"`
	SlowMo      int64           `json:"slowMo,omitempty"`
	WebhookData map[string]any  `json:"webhookData,omitempty"`
	Priority    int             `json:"priority,omitempty"`
	Attempts    int             `json:"attempts,omitempty"`
	Backoff     *struct {
		Type  queue.BackoffType `json:"type"`
		Delay int64             `json:"delay"`
	} `json:"backoff,omitempty"`
	Timeout int64 `json:"timeout,omitempty"`
}

func (a *executeArgs) request() Request {
	req := Request{
		BlueprintID: a.BlueprintID,
		Input:       a.Input,
		Variables:   a.Variables,
		Debug:       a.Debug,
		SlowMo:      time.Duration(a.SlowMo) * time.Millisecond,
		WebhookData: a.WebhookData,
		Priority:    a.Priority,
		Attempts:    a.Attempts,
		Timeout:     time.Duration(a.Timeout) * time.Millisecond,
	}
	if a.Graph != nil {
		req.Graph = a.Graph.Node
	}
	if a.Backoff != nil {
		req.Backoff = &queue.Backoff{Type: a.Backoff.Type, Delay: time.Duration(a.Backoff.Delay) * time.Millisecond}
	}
	return req
}

type executionArgs struct {
	ExecutionID string `json:"executionId"`
}

type historyArgs struct {
	Limit int `json:"limit"`
}

type webhookArgs struct {
	WebhookID string          `json:"webhookId"`
	Data      json.RawMessage `json:"data"`
}

type ack struct {
	OK bool `json:"ok"`
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return model.NewError(model.CodeInvalidArgument, "", "decode arguments: "+err.Error())
	}
	return nil
}

// registerCommands serves the engine operations on the engine channel.
func (e *Engine) registerCommands() {
	r := e.router
	ch := transport.EngineChannel

	r.Handle(ch, "execute", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args executeArgs
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		return e.Execute(ctx, args.request()), nil
	})
	r.Handle(ch, "status", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args executionArgs
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		return e.GetExecutionStatus(ctx, args.ExecutionID)
	})
	r.Handle(ch, "history", func(ctx context.Context, raw json.RawMessage) (any, error) {
		var args historyArgs
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		return e.GetExecutionHistory(ctx, args.Limit), nil
	})
	r.Handle(ch, "pause", e.executionCommand(e.Pause, e.PauseQueue))
	r.Handle(ch, "resume", e.executionCommand(e.Resume, e.ResumeQueue))
	r.Handle(ch, "cancel", e.executionCommand(e.Cancel, nil))
	r.Handle(ch, "metrics", func(context.Context, json.RawMessage) (any, error) {
		return e.GetMetrics(), nil
	})
	r.Handle(ch, "health", func(context.Context, json.RawMessage) (any, error) {
		m := e.queue.Metrics()
		return map[string]any{
			"status":     "ok",
			"transport":  e.transport.Kind(),
			"activeJobs": m.ActiveJobs,
			"queueSize":  m.QueueSize,
			"paused":     e.queue.Paused(),
			"timestamp":  time.Now().UTC(),
		}, nil
	})
	r.Handle(ch, "registerWebhook", func(_ context.Context, raw json.RawMessage) (any, error) {
		var args executionArgs
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		id, err := e.RegisterWebhook(args.ExecutionID)
		if err != nil {
			return nil, err
		}
		return map[string]string{"webhookId": id}, nil
	})
	r.Handle(ch, "webhook", func(_ context.Context, raw json.RawMessage) (any, error) {
		var args webhookArgs
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		var data any
		if len(args.Data) > 0 {
			if err := json.Unmarshal(args.Data, &data); err != nil {
				return nil, model.NewError(model.CodeInvalidArgument, "", "decode webhook data: "+err.Error())
			}
		}
		if err := e.HandleWebhook(args.WebhookID, data); err != nil {
			return nil, err
		}
		return ack{OK: true}, nil
	})
	r.Handle(ch, "blueprints", func(context.Context, json.RawMessage) (any, error) {
		return e.Blueprints(), nil
	})
}

// executionCommand adapts a per-execution operation. Without an execution id
// the queue-wide fallback runs, when there is one.
func (e *Engine) executionCommand(op func(string) error, queueWide func()) transport.HandlerFunc {
	return func(_ context.Context, raw json.RawMessage) (any, error) {
		var args executionArgs
		if err := decodeArgs(raw, &args); err != nil {
			return nil, err
		}
		if args.ExecutionID == "" {
			if queueWide == nil {
				return nil, model.NewError(model.CodeInvalidArgument, "", "executionId is required")
			}
			queueWide()
			return ack{OK: true}, nil
		}
		if err := op(args.ExecutionID); err != nil {
			return nil, err
		}
		return ack{OK: true}, nil
	}
}
