package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"

	"github.com/specialistvlad/nodegrid/internal/ctxlog"
	"github.com/specialistvlad/nodegrid/internal/model"
)

// ServeConn serves router over conn until the peer disconnects or ctx ends.
// Calls run concurrently; subscriptions last until the peer unsubscribes or
// the connection ends. A clean disconnect returns nil.
func ServeConn(ctx context.Context, router *Router, conn Conn) error {
	logger := ctxlog.FromContext(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := &session{router: router, conn: conn, subs: make(map[string]Unsubscribe)}
	defer s.closeSubs()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	logger.Debug("Transport session started.")
	for {
		env, err := conn.ReadEnvelope()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				logger.Debug("Transport session ended.")
				return nil
			}
			logger.Warn("Transport session failed.", "error", err)
			return err
		}

		switch env.Type {
		case EnvelopeCall:
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.call(ctx, env)
			}()
		case EnvelopeSubscribe:
			s.subscribe(env.Channel, env.Event)
		case EnvelopeUnsubscribe:
			s.unsubscribe(env.Channel, env.Event)
		case EnvelopeEvent:
			router.publishRaw(env.Channel, env.Event, env.Payload)
		default:
			logger.Warn("Ignoring envelope of unknown type.", "type", env.Type, "id", env.ID)
			if env.ID != "" {
				s.write(ctx, &Envelope{Type: EnvelopeResponse, ID: env.ID, Error: newError(model.CodeUnknownCommand, "unknown envelope type %q", env.Type)})
			}
		}
	}
}

type session struct {
	router *Router
	conn   Conn

	mu   sync.Mutex
	subs map[string]Unsubscribe
}

func (s *session) call(ctx context.Context, env *Envelope) {
	resp := &Envelope{Type: EnvelopeResponse, ID: env.ID}
	out, err := s.router.Dispatch(ctx, env.Channel, env.Command, env.Args)
	if err != nil {
		resp.Error = toError(err)
	} else {
		resp.Result = out
	}
	s.write(ctx, resp)
}

func (s *session) subscribe(channel, event string) {
	k := key(channel, event)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[k]; ok {
		return
	}
	s.subs[k] = s.router.Subscribe(channel, event, func(payload json.RawMessage) {
		_ = s.conn.WriteEnvelope(&Envelope{Type: EnvelopeEvent, Channel: channel, Event: event, Payload: payload})
	})
}

func (s *session) unsubscribe(channel, event string) {
	k := key(channel, event)
	s.mu.Lock()
	unsub, ok := s.subs[k]
	delete(s.subs, k)
	s.mu.Unlock()
	if ok {
		unsub()
	}
}

func (s *session) closeSubs() {
	s.mu.Lock()
	subs := s.subs
	s.subs = make(map[string]Unsubscribe)
	s.mu.Unlock()
	for _, unsub := range subs {
		unsub()
	}
}

func (s *session) write(ctx context.Context, env *Envelope) {
	if err := s.conn.WriteEnvelope(env); err != nil {
		ctxlog.FromContext(ctx).Debug("Failed to write envelope.", "id", env.ID, "error", err)
	}
}
