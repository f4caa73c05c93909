package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/specialistvlad/nodegrid/internal/ctxlog"
	"github.com/specialistvlad/nodegrid/internal/model"
)

// HandlerFunc serves one command. The returned value is encoded as JSON.
type HandlerFunc func(ctx context.Context, args json.RawMessage) (any, error)

// Router maps channel/command pairs to handlers and fans published events out
// to subscribers. It is safe for concurrent use.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	subs     map[string]map[int]func(json.RawMessage)
	nextID   int
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{
		handlers: make(map[string]HandlerFunc),
		subs:     make(map[string]map[int]func(json.RawMessage)),
	}
}

func key(channel, name string) string { return channel + "." + name }

// Handle registers h for command on channel, replacing any previous handler.
func (r *Router) Handle(channel, command string, h HandlerFunc) {
	if h == nil {
		panic(fmt.Sprintf("transport: nil handler for %s", key(channel, command)))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[key(channel, command)] = h
}

// Commands lists the registered "channel.command" names in sorted order.
func (r *Router) Commands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for k := range r.handlers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Dispatch runs the handler for channel/command and returns its encoded
// result. Failures are returned as *Error.
func (r *Router) Dispatch(ctx context.Context, channel, command string, args json.RawMessage) (out json.RawMessage, err error) {
	r.mu.RLock()
	h, ok := r.handlers[key(channel, command)]
	r.mu.RUnlock()
	if !ok {
		return nil, newError(model.CodeUnknownCommand, "unknown command %s", key(channel, command))
	}

	defer func() {
		if p := recover(); p != nil {
			ctxlog.FromContext(ctx).Error("Command handler panicked.", "command", key(channel, command), "panic", p, "stack", string(debug.Stack()))
			out, err = nil, newError(model.CodeExecution, "command %s panicked: %v", key(channel, command), p)
		}
	}()

	res, err := h(ctx, args)
	if err != nil {
		return nil, toError(err)
	}
	b, err := json.Marshal(res)
	if err != nil {
		return nil, newError(model.CodeExecution, "encode result of %s: %v", key(channel, command), err)
	}
	return b, nil
}

// Subscribe registers fn for event on channel.
func (r *Router) Subscribe(channel, event string, fn func(json.RawMessage)) Unsubscribe {
	k := key(channel, event)
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	if r.subs[k] == nil {
		r.subs[k] = make(map[int]func(json.RawMessage))
	}
	r.subs[k][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.subs[k], id)
			if len(r.subs[k]) == 0 {
				delete(r.subs, k)
			}
		})
	}
}

// Publish encodes payload and delivers it to every subscriber of event on
// channel. Subscribers run synchronously on the caller's goroutine.
func (r *Router) Publish(channel, event string, payload any) error {
	raw, err := encode(payload)
	if err != nil {
		return err
	}
	r.publishRaw(channel, event, raw)
	return nil
}

func (r *Router) publishRaw(channel, event string, raw json.RawMessage) {
	r.mu.RLock()
	subs := r.subs[key(channel, event)]
	fns := make([]func(json.RawMessage), 0, len(subs))
	for _, fn := range subs {
		fns = append(fns, fn)
	}
	r.mu.RUnlock()

	for _, fn := range fns {
		fn(raw)
	}
}

// Subscribers reports how many listeners are registered for event on channel.
func (r *Router) Subscribers(channel, event string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[key(channel, event)])
}
