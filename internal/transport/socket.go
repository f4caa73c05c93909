package transport

import (
	"context"
	"crypto/tls"
	"net/http"
	"time"
)

// SocketOption configures the socket dialers.
type SocketOption func(*socketOptions)

type socketOptions struct {
	callTimeout time.Duration
	header      http.Header
	tlsConfig   *tls.Config
	namespace   string
}

func newSocketOptions(opts []SocketOption) *socketOptions {
	o := &socketOptions{callTimeout: DefaultCallTimeout}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithCallTimeout overrides the 30 second per-call timeout.
func WithCallTimeout(d time.Duration) SocketOption {
	return func(o *socketOptions) { o.callTimeout = d }
}

// WithHeader adds handshake headers.
func WithHeader(h http.Header) SocketOption {
	return func(o *socketOptions) { o.header = h }
}

// WithInsecureSkipVerify disables TLS certificate verification.
func WithInsecureSkipVerify() SocketOption {
	return func(o *socketOptions) { o.tlsConfig = &tls.Config{InsecureSkipVerify: true} }
}

// WithNamespace selects the socket.io namespace. WebSocket dialing ignores it.
func WithNamespace(ns string) SocketOption {
	return func(o *socketOptions) { o.namespace = ns }
}

// Socket is a Transport over a message-oriented connection. Calls are
// correlated by generated ids and bounded by the call timeout.
type Socket struct {
	p *peer
}

// NewSocket starts a socket transport over an established connection.
func NewSocket(ctx context.Context, conn Conn, opts ...SocketOption) *Socket {
	o := newSocketOptions(opts)
	return &Socket{p: newPeer(ctx, conn, o.callTimeout)}
}

func (s *Socket) Kind() Kind { return KindSocket }

func (s *Socket) Channel(name string) Channel { return &channel{name: name, c: s.p} }

// Send publishes an event to the remote router.
func (s *Socket) Send(channel, event string, payload any) error {
	raw, err := encode(payload)
	if err != nil {
		return err
	}
	return s.p.send(channel, event, raw)
}

// Done is closed once the connection is gone.
func (s *Socket) Done() <-chan struct{} { return s.p.done }

func (s *Socket) Close() error { return s.p.close() }
