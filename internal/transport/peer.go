package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/specialistvlad/nodegrid/internal/ctxlog"
	"github.com/specialistvlad/nodegrid/internal/model"
)

// DefaultCallTimeout bounds every call made over a socket or stream peer.
const DefaultCallTimeout = 30 * time.Second

// peer is the calling side of an envelope connection. It correlates
// responses with calls by id and dispatches incoming events to listeners.
type peer struct {
	conn    Conn
	timeout time.Duration
	logger  *slog.Logger

	mu        sync.Mutex
	pending   map[string]chan *Envelope
	listeners map[string]map[int]func(json.RawMessage)
	nextID    int
	done      chan struct{}
	err       error
}

func newPeer(ctx context.Context, conn Conn, timeout time.Duration) *peer {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	p := &peer{
		conn:      conn,
		timeout:   timeout,
		logger:    ctxlog.FromContext(ctx),
		pending:   make(map[string]chan *Envelope),
		listeners: make(map[string]map[int]func(json.RawMessage)),
		done:      make(chan struct{}),
	}
	go p.readLoop()
	return p
}

func (p *peer) readLoop() {
	for {
		env, err := p.conn.ReadEnvelope()
		if err != nil {
			p.fail(err)
			return
		}
		switch env.Type {
		case EnvelopeResponse:
			p.mu.Lock()
			ch, ok := p.pending[env.ID]
			delete(p.pending, env.ID)
			p.mu.Unlock()
			if !ok {
				p.logger.Debug("Dropping response for unknown call.", "id", env.ID)
				continue
			}
			ch <- env
		case EnvelopeEvent:
			p.mu.Lock()
			ls := p.listeners[key(env.Channel, env.Event)]
			fns := make([]func(json.RawMessage), 0, len(ls))
			for _, fn := range ls {
				fns = append(fns, fn)
			}
			p.mu.Unlock()
			for _, fn := range fns {
				fn(env.Payload)
			}
		default:
			p.logger.Debug("Ignoring envelope.", "type", env.Type, "id", env.ID)
		}
	}
}

func (p *peer) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case <-p.done:
		return
	default:
	}
	if errors.Is(err, io.EOF) {
		err = newError(model.CodePeerUnreachable, "connection closed")
	} else {
		err = newError(model.CodePeerUnreachable, "connection lost: %v", err)
	}
	p.err = err
	close(p.done)
	p.logger.Debug("Transport peer disconnected.", "error", err)
}

func (p *peer) closedErr() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

func (p *peer) call(ctx context.Context, channel, command string, args json.RawMessage) (json.RawMessage, error) {
	id := uuid.NewString()
	ch := make(chan *Envelope, 1)

	p.mu.Lock()
	if err := p.closedErr(); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	p.pending[id] = ch
	p.mu.Unlock()

	forget := func() {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
	}

	env := &Envelope{Type: EnvelopeCall, ID: id, Channel: channel, Command: command, Args: args}
	if err := p.conn.WriteEnvelope(env); err != nil {
		forget()
		return nil, newError(model.CodePeerUnreachable, "send %s: %v", key(channel, command), err)
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.Error != nil {
			if resp.Error.Code == "" {
				resp.Error.Code = model.CodeRemote
			}
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-p.done:
		forget()
		return nil, p.err
	case <-timer.C:
		forget()
		return nil, newError(model.CodeTimeout, "call %s timed out after %s", key(channel, command), p.timeout)
	case <-ctx.Done():
		forget()
		return nil, newError(model.CodeOf(ctx.Err()), "call %s: %v", key(channel, command), ctx.Err())
	}
}

func (p *peer) listen(channel, event string, fn func(json.RawMessage)) (Unsubscribe, error) {
	k := key(channel, event)

	p.mu.Lock()
	if err := p.closedErr(); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	id := p.nextID
	p.nextID++
	first := len(p.listeners[k]) == 0
	if first {
		p.listeners[k] = make(map[int]func(json.RawMessage))
	}
	p.listeners[k][id] = fn
	p.mu.Unlock()

	if first {
		if err := p.conn.WriteEnvelope(&Envelope{Type: EnvelopeSubscribe, Channel: channel, Event: event}); err != nil {
			p.removeListener(k, id)
			return nil, newError(model.CodePeerUnreachable, "subscribe %s: %v", k, err)
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if p.removeListener(k, id) && p.closedErr() == nil {
				_ = p.conn.WriteEnvelope(&Envelope{Type: EnvelopeUnsubscribe, Channel: channel, Event: event})
			}
		})
	}, nil
}

// removeListener reports whether the last listener for k was removed.
func (p *peer) removeListener(k string, id int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	ls, ok := p.listeners[k]
	if !ok {
		return false
	}
	delete(ls, id)
	if len(ls) > 0 {
		return false
	}
	delete(p.listeners, k)
	return true
}

// send publishes an event to the remote router.
func (p *peer) send(channel, event string, payload json.RawMessage) error {
	if err := p.closedErr(); err != nil {
		return err
	}
	if err := p.conn.WriteEnvelope(&Envelope{Type: EnvelopeEvent, Channel: channel, Event: event, Payload: payload}); err != nil {
		return newError(model.CodePeerUnreachable, "send event %s: %v", key(channel, event), err)
	}
	return nil
}

func (p *peer) close() error {
	err := p.conn.Close()
	<-p.done
	return err
}
