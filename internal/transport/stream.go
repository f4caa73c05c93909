package transport

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"
)

// streamConn carries newline-delimited JSON envelopes over a byte stream.
type streamConn struct {
	dec    *json.Decoder
	closer io.Closer

	wmu sync.Mutex
	enc *json.Encoder

	once   sync.Once
	closed chan struct{}
}

// NewStreamConn creates a Conn reading envelopes from r and writing them to
// w. Closing the Conn closes r and w when they implement io.Closer.
func NewStreamConn(r io.Reader, w io.Writer) Conn {
	c := &streamConn{
		dec:    json.NewDecoder(r),
		enc:    json.NewEncoder(w),
		closed: make(chan struct{}),
	}
	c.closer = closers{r, w}
	return c
}

type closers []any

func (cs closers) Close() error {
	var first error
	for _, c := range cs {
		if cl, ok := c.(io.Closer); ok {
			if err := cl.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

func (c *streamConn) ReadEnvelope() (*Envelope, error) {
	var env Envelope
	if err := c.dec.Decode(&env); err != nil {
		select {
		case <-c.closed:
			return nil, io.EOF
		default:
		}
		if err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, err
	}
	return &env, nil
}

func (c *streamConn) WriteEnvelope(env *Envelope) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	default:
	}
	return c.enc.Encode(env)
}

func (c *streamConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		err = c.closer.Close()
	})
	return err
}

// ServeStream serves router over a byte stream, typically the stdin and
// stdout of a host process. It returns when r is exhausted or ctx ends.
func ServeStream(ctx context.Context, router *Router, r io.Reader, w io.Writer) error {
	return ServeConn(ctx, router, NewStreamConn(r, w))
}

// StreamBridge is a Bridge to a ServeStream peer on the other end of r and w.
type StreamBridge struct {
	p *peer
}

var _ Bridge = (*StreamBridge)(nil)

// NewStreamBridge starts a bridge over r and w. Calls time out after the
// given duration; zero selects DefaultCallTimeout.
func NewStreamBridge(ctx context.Context, r io.Reader, w io.Writer, timeout time.Duration) *StreamBridge {
	return &StreamBridge{p: newPeer(ctx, NewStreamConn(r, w), timeout)}
}

func (b *StreamBridge) Call(ctx context.Context, channel, command string, args json.RawMessage) (json.RawMessage, error) {
	return b.p.call(ctx, channel, command, args)
}

func (b *StreamBridge) Listen(channel, event string, fn func(json.RawMessage)) (Unsubscribe, error) {
	return b.p.listen(channel, event, fn)
}

func (b *StreamBridge) Send(channel, event string, payload json.RawMessage) error {
	return b.p.send(channel, event, payload)
}

func (b *StreamBridge) Close() error { return b.p.close() }
