package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/specialistvlad/nodegrid/internal/analyzer"
	"github.com/specialistvlad/nodegrid/internal/ctxlog"
	"github.com/specialistvlad/nodegrid/internal/executor"
	"github.com/specialistvlad/nodegrid/internal/handlers"
	"github.com/specialistvlad/nodegrid/internal/model"
	"github.com/specialistvlad/nodegrid/internal/nodestore"
	"github.com/specialistvlad/nodegrid/internal/queue"
	"github.com/specialistvlad/nodegrid/internal/transport"
)

const (
	DefaultExecuteTimeout = 300 * time.Second
	DefaultHistoryLimit   = 100
)

var (
	// ErrExecutionNotFound is returned for unknown execution ids.
	ErrExecutionNotFound = model.NewError(model.CodeNotFound, "", "execution not found")
	// ErrBlueprintNotFound is returned when a request names an unknown blueprint.
	ErrBlueprintNotFound = model.NewError(model.CodeBlueprintNotFound, "", "blueprint not found")
	// ErrWebhookNotFound is returned for unknown or already used webhook ids.
	ErrWebhookNotFound = model.NewError(model.CodeNotFound, "", "webhook not found")
)

// Config configures an Engine. Zero values select the defaults.
type Config struct {
	Queue queue.ScalableConfig
	// ExecuteTimeout bounds Execute unless a request sets its own.
	ExecuteTimeout time.Duration
	// HistoryLimit is the number of finished executions kept for status and
	// history queries.
	HistoryLimit int
}

// Option configures an Engine.
type Option func(*options)

type options struct {
	execOpts []executor.Option
	router   *transport.Router
	newStore func() nodestore.Store
}

// WithExecutorOptions passes options to the graph executor.
func WithExecutorOptions(opts ...executor.Option) Option {
	return func(o *options) { o.execOpts = append(o.execOpts, opts...) }
}

// WithRouter serves the engine commands on an existing router.
func WithRouter(r *transport.Router) Option {
	return func(o *options) { o.router = r }
}

// WithStoreFactory sets the constructor of per-execution state stores.
func WithStoreFactory(fn func() nodestore.Store) Option {
	return func(o *options) { o.newStore = fn }
}

// Engine is the execution facade. Its methods are safe for concurrent use
// and never panic; every Execute failure is reported in the result.
type Engine struct {
	cfg       Config
	logger    *slog.Logger
	exec      *executor.Executor
	queue     *queue.ScalableQueue
	router    *transport.Router
	transport *transport.InProcess
	newStore  func() nodestore.Store

	mu         sync.Mutex
	blueprints map[string]model.Node
	executions map[string]*execution
	finished   []string
	webhooks   map[string]string
	closed     bool
}

// New creates an engine and starts its queue. ctx carries the logger used by
// the engine and everything it runs.
func New(ctx context.Context, cfg Config, reg *handlers.Registry, opts ...Option) (*Engine, error) {
	if cfg.ExecuteTimeout <= 0 {
		cfg.ExecuteTimeout = DefaultExecuteTimeout
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.router == nil {
		o.router = transport.NewRouter()
	}

	e := &Engine{
		cfg:        cfg,
		logger:     ctxlog.FromContext(ctx).With("component", "engine"),
		router:     o.router,
		newStore:   o.newStore,
		blueprints: make(map[string]model.Node),
		executions: make(map[string]*execution),
		webhooks:   make(map[string]string),
	}
	if o.newStore != nil {
		o.execOpts = append(o.execOpts, executor.WithStoreFactory(o.newStore))
	}
	e.exec = executor.New(reg, o.execOpts...)

	q, err := queue.NewScalable(ctxlog.WithLogger(ctx, e.logger), cfg.Queue, e.process)
	if err != nil {
		return nil, fmt.Errorf("create engine queue: %w", err)
	}
	e.queue = q
	e.transport = transport.NewInProcess(e.router)
	e.registerCommands()

	e.logger.Debug("Engine started.", "executeTimeout", cfg.ExecuteTimeout, "historyLimit", cfg.HistoryLimit)
	return e, nil
}

// Router returns the router the engine commands are served on.
func (e *Engine) Router() *transport.Router { return e.router }

// Transport returns an in-process transport to this engine.
func (e *Engine) Transport() transport.Transport { return e.transport }

// Queue returns the engine's job queue.
func (e *Engine) Queue() *queue.ScalableQueue { return e.queue }

// RegisterBlueprint stores a validated graph under id for later requests.
func (e *Engine) RegisterBlueprint(id string, root model.Node) error {
	if id == "" {
		return model.NewError(model.CodeInvalidArgument, "", "blueprint id is empty")
	}
	if root == nil {
		return model.NewError(model.CodeInvalidGraph, "", "blueprint graph is nil")
	}
	if _, err := analyzer.Analyze(root); err != nil {
		return err
	}
	e.mu.Lock()
	e.blueprints[id] = root
	e.mu.Unlock()
	e.logger.Debug("Blueprint registered.", "blueprintID", id)
	return nil
}

// Blueprints lists the registered blueprint ids in sorted order.
func (e *Engine) Blueprints() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.blueprints))
	for id := range e.blueprints {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (e *Engine) blueprint(id string) (model.Node, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.blueprints[id]
	return n, ok
}

// GracefulShutdown stops accepting executions, drains the queue and cancels
// whatever is still running when ctx ends.
func (e *Engine) GracefulShutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	e.logger.Info("Engine shutting down.")
	err := e.queue.GracefulShutdown(ctx)

	e.mu.Lock()
	var live []*execution
	for _, x := range e.executions {
		if !x.status.terminal() {
			live = append(live, x)
		}
	}
	e.mu.Unlock()
	for _, x := range live {
		x.control.Cancel()
	}

	if err != nil {
		e.logger.Warn("Engine shutdown interrupted.", "error", err, "cancelled", len(live))
		return err
	}
	e.logger.Info("Engine shut down.")
	return nil
}
