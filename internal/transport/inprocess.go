package transport

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// InProcess is a Transport that dispatches directly into a local Router.
// Arguments and results still pass through JSON so callers observe the same
// values a wire transport would deliver.
type InProcess struct {
	router *Router
	kind   Kind
}

// NewInProcess creates a transport over router.
func NewInProcess(router *Router) *InProcess {
	return &InProcess{router: router, kind: KindInProcess}
}

// NewMemory creates the in-memory stub used when no engine placement is
// available. It answers the engine channel's execute and health commands.
func NewMemory() *InProcess {
	r := NewRouter()
	r.Handle(EngineChannel, "execute", func(_ context.Context, args json.RawMessage) (any, error) {
		var req struct {
			Input map[string]any `json:"input"`
		}
		if len(args) > 0 {
			if err := json.Unmarshal(args, &req); err != nil {
				return nil, err
			}
		}
		return map[string]any{
			"executionId": uuid.NewString(),
			"success":     true,
			"data":        req.Input,
			"duration":    0,
		}, nil
	})
	r.Handle(EngineChannel, "health", func(context.Context, json.RawMessage) (any, error) {
		return map[string]any{
			"status":    "ok",
			"transport": KindMemory,
			"timestamp": time.Now().UTC(),
		}, nil
	})
	return &InProcess{router: r, kind: KindMemory}
}

func (t *InProcess) Kind() Kind { return t.kind }

func (t *InProcess) Channel(name string) Channel { return &channel{name: name, c: t} }

// Router returns the router calls are dispatched to.
func (t *InProcess) Router() *Router { return t.router }

func (t *InProcess) Close() error { return nil }

func (t *InProcess) call(ctx context.Context, channel, command string, args json.RawMessage) (json.RawMessage, error) {
	return t.router.Dispatch(ctx, channel, command, args)
}

func (t *InProcess) listen(channel, event string, fn func(json.RawMessage)) (Unsubscribe, error) {
	return t.router.Subscribe(channel, event, fn), nil
}
