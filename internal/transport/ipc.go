package transport

import (
	"context"
	"encoding/json"
	"io"
)

// Bridge is the host-process object an IPC transport talks through.
type Bridge interface {
	Call(ctx context.Context, channel, command string, args json.RawMessage) (json.RawMessage, error)
	Listen(channel, event string, fn func(json.RawMessage)) (Unsubscribe, error)
	Send(channel, event string, payload json.RawMessage) error
}

// IPC is a Transport over an injected Bridge.
type IPC struct {
	bridge Bridge
}

// NewIPC creates an IPC transport.
func NewIPC(b Bridge) *IPC {
	return &IPC{bridge: b}
}

func (t *IPC) Kind() Kind { return KindIPC }

func (t *IPC) Channel(name string) Channel { return &channel{name: name, c: t} }

// Send fires an event at the host without waiting for a reply.
func (t *IPC) Send(channel, event string, payload any) error {
	raw, err := encode(payload)
	if err != nil {
		return err
	}
	return t.bridge.Send(channel, event, raw)
}

// Close closes the bridge when it supports closing.
func (t *IPC) Close() error {
	if c, ok := t.bridge.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (t *IPC) call(ctx context.Context, channel, command string, args json.RawMessage) (json.RawMessage, error) {
	out, err := t.bridge.Call(ctx, channel, command, args)
	if err != nil {
		return nil, toError(err)
	}
	return out, nil
}

func (t *IPC) listen(channel, event string, fn func(json.RawMessage)) (Unsubscribe, error) {
	return t.bridge.Listen(channel, event, fn)
}
