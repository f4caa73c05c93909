package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/specialistvlad/nodegrid/internal/model"
)

// Executable is the body of a leaf node.
type Executable interface {
	Execute(ctx context.Context, ec *model.ExecutionContext) (any, error)
}

// Func adapts a plain function to the Executable interface.
type Func func(ctx context.Context, ec *model.ExecutionContext) (any, error)

// Execute calls f.
func (f Func) Execute(ctx context.Context, ec *model.ExecutionContext) (any, error) {
	return f(ctx, ec)
}

// Module is the interface that all node modules implement to be registered.
type Module interface {
	Register(r *Registry)
}

// RegisteredHandler describes one node type.
type RegisteredHandler struct {
	Description string
	InputPorts  []model.Port
	OutputPorts []model.Port
	Fn          Executable
}

// Registry holds all the registered handlers of one engine instance.
type Registry struct {
	mu  sync.RWMutex
	all map[string]*RegisteredHandler
}

// New creates a registry and registers the given modules.
func New(modules ...Module) *Registry {
	r := &Registry{
		all: make(map[string]*RegisteredHandler),
	}
	for _, m := range modules {
		m.Register(r)
	}
	return r
}

// RegisterHandler registers the executable for a node type. Registering the
// same type twice is a programming error and panics.
func (r *Registry) RegisterHandler(nodeType string, handler *RegisteredHandler) {
	if handler == nil || handler.Fn == nil {
		panic(fmt.Sprintf("handler for node type '%s' has no executable", nodeType))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.all[nodeType]; exists {
		panic(fmt.Sprintf("handler for node type '%s' already registered", nodeType))
	}
	slog.Debug("Registering node handler.", "type", nodeType)
	r.all[nodeType] = handler
}

// RegisterFunc is shorthand for registering a plain function.
func (r *Registry) RegisterFunc(nodeType string, fn Func) {
	r.RegisterHandler(nodeType, &RegisteredHandler{Fn: fn})
}

// Lookup returns the handler for a node type.
func (r *Registry) Lookup(nodeType string) (*RegisteredHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.all[nodeType]
	return h, ok
}

// Types returns the registered node types in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.all))
	for t := range r.all {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

type progressKey struct{}

// WithProgress returns a context through which a running node can report its
// own progress.
func WithProgress(ctx context.Context, report func(pct float64)) context.Context {
	return context.WithValue(ctx, progressKey{}, report)
}

// ReportProgress reports the progress of the running node, in percent. It is
// a no-op outside of an executor run.
func ReportProgress(ctx context.Context, pct float64) {
	if report, ok := ctx.Value(progressKey{}).(func(float64)); ok {
		report(pct)
	}
}
