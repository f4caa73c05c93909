package transport

import (
	"context"
	"encoding/json"
)

// None is the transport used when nothing is configured. Every channel
// method fails with ErrNoTransport.
type None struct{}

func (None) Kind() Kind { return KindNone }

func (n None) Channel(name string) Channel { return &channel{name: name, c: n} }

func (None) Close() error { return nil }

func (None) call(context.Context, string, string, json.RawMessage) (json.RawMessage, error) {
	return nil, ErrNoTransport
}

func (None) listen(string, string, func(json.RawMessage)) (Unsubscribe, error) {
	return nil, ErrNoTransport
}
