package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/specialistvlad/nodegrid/internal/model"
)

// Kind names a transport implementation.
type Kind string

const (
	KindInProcess Kind = "in-process"
	KindIPC       Kind = "ipc"
	KindSocket    Kind = "socket"
	KindHTTP      Kind = "http"
	KindMemory    Kind = "memory"
	KindNone      Kind = "none"
)

// EngineChannel is the channel the engine serves its commands and events on.
const EngineChannel = "engine"

// Unsubscribe removes a listener. Calling it more than once is harmless.
type Unsubscribe func()

// Transport hands out channels to one engine placement.
type Transport interface {
	Kind() Kind
	Channel(name string) Channel
	Close() error
}

// Channel is a named request/response and publish/subscribe endpoint.
type Channel interface {
	// Call invokes command with args and decodes the result into reply,
	// which may be nil. Args are encoded as JSON; a json.RawMessage is sent
	// as is.
	Call(ctx context.Context, command string, args, reply any) error
	// Listen registers fn for event.
	Listen(event string, fn func(json.RawMessage)) (Unsubscribe, error)
}

// Error is a transport failure. Code is one of the model error codes; remote
// failures keep the code reported by the peer.
type Error struct {
	Code    model.Code `json:"code"`
	Message string     `json:"message"`
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

// ErrorCode reports the classified code of the failure.
func (e *Error) ErrorCode() model.Code { return e.Code }

// ErrNoTransport is returned by every channel method of None.
var ErrNoTransport = &Error{Code: model.CodeNoTransport, Message: "no transport configured"}

func newError(code model.Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// toError converts any error into a transport Error, keeping its code.
func toError(err error) *Error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	var me *model.Error
	if errors.As(err, &me) {
		return &Error{Code: me.Code, Message: me.Message}
	}
	return &Error{Code: model.CodeOf(err), Message: err.Error()}
}

// caller is the wire-specific half of a channel.
type caller interface {
	call(ctx context.Context, channel, command string, args json.RawMessage) (json.RawMessage, error)
	listen(channel, event string, fn func(json.RawMessage)) (Unsubscribe, error)
}

type channel struct {
	name string
	c    caller
}

func (ch *channel) Call(ctx context.Context, command string, args, reply any) error {
	raw, err := encode(args)
	if err != nil {
		return err
	}
	out, err := ch.c.call(ctx, ch.name, command, raw)
	if err != nil {
		return err
	}
	return decode(out, reply)
}

func (ch *channel) Listen(event string, fn func(json.RawMessage)) (Unsubscribe, error) {
	if fn == nil {
		return nil, newError(model.CodeInvalidArgument, "listener for %s.%s is nil", ch.name, event)
	}
	return ch.c.listen(ch.name, event, fn)
}

func encode(v any) (json.RawMessage, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, newError(model.CodeInvalidArgument, "encode arguments: %v", err)
	}
	return b, nil
}

func decode(raw json.RawMessage, reply any) error {
	if reply == nil || len(raw) == 0 {
		return nil
	}
	if rm, ok := reply.(*json.RawMessage); ok {
		*rm = append((*rm)[:0], raw...)
		return nil
	}
	if err := json.Unmarshal(raw, reply); err != nil {
		return newError(model.CodeRemote, "decode result: %v", err)
	}
	return nil
}

func noop() {}
