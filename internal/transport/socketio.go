package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"sync"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/specialistvlad/nodegrid/internal/ctxlog"
	"github.com/specialistvlad/nodegrid/internal/model"
)

// SocketIOEvent is the socket.io event name envelopes travel under.
const SocketIOEvent = "envelope"

// socketIOConn adapts a socket.io client socket to Conn. Envelopes are sent
// as JSON strings; received envelopes may be strings or decoded objects.
type socketIOConn struct {
	client   *socket.Socket
	incoming chan *Envelope
	closed   chan struct{}
	once     sync.Once
}

func newSocketIOConn(client *socket.Socket) *socketIOConn {
	c := &socketIOConn{
		client:   client,
		incoming: make(chan *Envelope, 64),
		closed:   make(chan struct{}),
	}
	client.On(types.EventName(SocketIOEvent), func(data ...any) {
		if len(data) == 0 {
			return
		}
		env, err := decodeSocketIOEnvelope(data[0])
		if err != nil {
			return
		}
		select {
		case c.incoming <- env:
		case <-c.closed:
		}
	})
	client.On(types.EventName("disconnect"), func(...any) {
		c.shutdown()
	})
	return c
}

func decodeSocketIOEnvelope(v any) (*Envelope, error) {
	var raw []byte
	switch v := v.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		raw = b
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

func (c *socketIOConn) shutdown() {
	c.once.Do(func() { close(c.closed) })
}

func (c *socketIOConn) ReadEnvelope() (*Envelope, error) {
	select {
	case env := <-c.incoming:
		return env, nil
	case <-c.closed:
		return nil, io.EOF
	}
}

func (c *socketIOConn) WriteEnvelope(env *Envelope) error {
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	default:
	}
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	c.client.Emit(SocketIOEvent, string(b))
	return nil
}

func (c *socketIOConn) Close() error {
	c.shutdown()
	c.client.Disconnect()
	return nil
}

// DialSocketIO connects to a socket.io server at rawURL (http:// or https://)
// and exchanges envelopes under SocketIOEvent. It waits for the connection to
// be established or for ctx to end.
func DialSocketIO(ctx context.Context, rawURL string, opts ...SocketOption) (*Socket, error) {
	o := newSocketOptions(opts)
	logger := ctxlog.FromContext(ctx).With("url", rawURL)

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, newError(model.CodeInvalidArgument, "parse socket.io url: %v", err)
	}

	sioOpts := socket.DefaultOptions()
	if parsed.Path != "" {
		sioOpts.SetPath(parsed.Path)
	}
	if o.tlsConfig != nil {
		logger.Warn("Skipping TLS certificate verification.")
		sioOpts.SetTLSClientConfig(o.tlsConfig)
	}
	sioOpts.SetTransports(types.NewSet(transports.WebSocket))

	connected := make(chan error, 1)
	manager := socket.NewManager(fmt.Sprintf("%s://%s", parsed.Scheme, parsed.Host), sioOpts)
	client := manager.Socket(o.namespace, sioOpts)
	conn := newSocketIOConn(client)

	client.Once(types.EventName("connect"), func(...any) {
		select {
		case connected <- nil:
		default:
		}
	})
	client.Once(types.EventName("connect_error"), func(errs ...any) {
		err := fmt.Errorf("connect error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		select {
		case connected <- err:
		default:
		}
	})

	logger.Debug("Connecting socket.io transport.")
	client.Connect()

	select {
	case err := <-connected:
		if err != nil {
			conn.Close()
			return nil, newError(model.CodePeerUnreachable, "socket.io connect %s: %v", rawURL, err)
		}
	case <-ctx.Done():
		conn.Close()
		return nil, newError(model.CodePeerUnreachable, "socket.io connect %s: %v", rawURL, ctx.Err())
	}

	logger.Debug("Socket.io transport connected.", "sid", client.Id())
	return NewSocket(ctx, conn, opts...), nil
}
