package executor

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/specialistvlad/nodegrid/internal/analyzer"
	"github.com/specialistvlad/nodegrid/internal/ctxlog"
	"github.com/specialistvlad/nodegrid/internal/handlers"
	"github.com/specialistvlad/nodegrid/internal/inmemorystore"
	"github.com/specialistvlad/nodegrid/internal/model"
	"github.com/specialistvlad/nodegrid/internal/nodestore"
)

var (
	tracer = otel.Tracer("nodegrid.executor")
	meter  = otel.Meter("nodegrid.executor")
)

// Executor runs node graphs against a handler registry. It is safe for
// concurrent use; every Run keeps its state in its own store and trace.
type Executor struct {
	registry           *handlers.Registry
	maxConcurrency     int
	defaultNodeTimeout time.Duration
	newStore           func() nodestore.Store

	metricsOnce   sync.Once
	nodeLatency   metric.Float64Histogram
	nodeSuccesses metric.Int64Counter
	nodeFailures  metric.Int64Counter
	runLatency    metric.Float64Histogram
}

// Option configures an Executor.
type Option func(*Executor)

// WithMaxConcurrency bounds the number of nodes of one parallel batch that run
// at the same time. Zero or less means unbounded. A group's own
// MaxConcurrency takes precedence.
func WithMaxConcurrency(n int) Option {
	return func(e *Executor) { e.maxConcurrency = n }
}

// WithDefaultNodeTimeout bounds nodes that declare no timeout of their own.
func WithDefaultNodeTimeout(d time.Duration) Option {
	return func(e *Executor) { e.defaultNodeTimeout = d }
}

// WithStoreFactory sets the constructor for the stores of nested groups and
// of runs started without a store.
func WithStoreFactory(fn func() nodestore.Store) Option {
	return func(e *Executor) { e.newStore = fn }
}

// New creates an executor that resolves leaf nodes through reg.
func New(reg *handlers.Registry, opts ...Option) *Executor {
	e := &Executor{
		registry: reg,
		newStore: func() nodestore.Store { return inmemorystore.New() },
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = handlers.New()
	}
	return e
}

// initMetrics lazily creates the instruments. A failing instrument only
// degrades observability.
func (e *Executor) initMetrics(logger *slog.Logger) {
	e.metricsOnce.Do(func() {
		var err error
		var failed []string

		e.nodeLatency, err = meter.Float64Histogram("nodegrid_node_duration_seconds",
			metric.WithDescription("Time spent executing each node"),
			metric.WithUnit("s"),
		)
		if err != nil {
			failed = append(failed, "node_latency: "+err.Error())
		}
		e.nodeSuccesses, err = meter.Int64Counter("nodegrid_node_success_total",
			metric.WithDescription("Number of successful node executions"),
		)
		if err != nil {
			failed = append(failed, "node_successes: "+err.Error())
		}
		e.nodeFailures, err = meter.Int64Counter("nodegrid_node_failure_total",
			metric.WithDescription("Number of failed node executions"),
		)
		if err != nil {
			failed = append(failed, "node_failures: "+err.Error())
		}
		e.runLatency, err = meter.Float64Histogram("nodegrid_run_duration_seconds",
			metric.WithDescription("Total graph execution time"),
			metric.WithUnit("s"),
		)
		if err != nil {
			failed = append(failed, "run_latency: "+err.Error())
		}

		if len(failed) > 0 {
			logger.Error("Failed to initialize some executor metrics.", "errors", failed)
		}
	})
}

// Run executes root with the given context and store. It never returns a Go
// error: structural problems are reported as an unsuccessful result before
// the store is touched. A nil store is replaced by a fresh one.
func (e *Executor) Run(ctx context.Context, root model.Node, ec *model.ExecutionContext, store nodestore.Store) *model.ExecutionResult {
	start := time.Now()
	if ec == nil {
		ec = &model.ExecutionContext{}
	}
	if ec.Control == nil {
		ec.Control = model.NewRunControl()
	}
	if store == nil {
		store = e.newStore()
	}

	logger := ctxlog.FromContext(ctx).With("executionID", ec.ExecutionID)
	ctx = ctxlog.WithLogger(ctx, logger)
	e.initMetrics(logger)

	ctx, span := tracer.Start(ctx, "executor.Run",
		trace.WithAttributes(attribute.String("nodegrid.execution_id", ec.ExecutionID)),
	)
	defer span.End()

	if root == nil {
		return model.Failed(ec.ExecutionID, model.NewError(model.CodeInvalidGraph, "", "root node is nil"), time.Since(start))
	}

	plan, err := analyzer.Analyze(root)
	if err != nil {
		logger.Warn("Graph rejected before execution.", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid graph")
		return model.Failed(ec.ExecutionID, model.AsError("", err), time.Since(start))
	}

	group := asGroup(root)
	if len(group.Variables) > 0 {
		ec = withDefaults(ec, group.Variables)
	}
	if err := store.InitializeGraph(ctx, plan); err != nil {
		return model.Failed(ec.ExecutionID, model.Wrap(model.CodeExecution, "", err), time.Since(start))
	}
	span.SetAttributes(
		attribute.Int("nodegrid.node_count", len(plan.Nodes)),
		attribute.Int("nodegrid.batches", len(plan.ExecutionOrder)),
	)

	rec := model.NewRecorder(ec.ExecutionID)
	rec.Record(model.TraceEvent{Type: model.EventExecutionStarted, Data: map[string]any{
		"nodes":          len(plan.Nodes),
		"totalWeight":    plan.TotalWeight,
		"maxParallelism": plan.MaxParallelism,
	}})
	logger.Info("Execution started.", "nodes", len(plan.Nodes), "batches", len(plan.ExecutionOrder))

	gr := &graphRun{
		exec:  e,
		rec:   rec,
		group: group,
		plan:  plan,
		store: store,
		ec:    ec,
	}
	runErr := gr.walk(ctx)

	result := &model.ExecutionResult{
		ExecutionID:   ec.ExecutionID,
		Success:       runErr == nil,
		Data:          gr.data(ctx),
		Error:         runErr,
		ExecutedNodes: gr.executedNodes(),
		Outputs:       gr.outputs(ctx),
	}
	result.Duration = time.Since(start)

	if runErr != nil {
		rec.Record(model.TraceEvent{Type: model.EventExecutionFailed, Duration: result.Duration, Error: runErr})
		span.RecordError(runErr)
		span.SetStatus(codes.Error, string(runErr.Code))
		logger.Warn("Execution failed.", "code", runErr.Code, "nodeID", runErr.NodeID, "error", runErr.Message, "duration", result.Duration)
	} else {
		rec.Record(model.TraceEvent{Type: model.EventExecutionCompleted, Duration: result.Duration})
		span.SetStatus(codes.Ok, "")
		logger.Info("Execution completed.", "executed", len(result.ExecutedNodes), "duration", result.Duration)
	}
	if e.runLatency != nil {
		e.runLatency.Record(ctx, result.Duration.Seconds(),
			metric.WithAttributes(attribute.Bool("success", result.Success)))
	}
	result.Trace = rec.Trace()
	return result
}

// asGroup runs a leaf root as a single-node graph.
func asGroup(root model.Node) *model.Group {
	if g, ok := root.(*model.Group); ok {
		return g
	}
	return &model.Group{
		Meta:  model.Meta{ID: root.NodeID(), Type: model.GroupType},
		Nodes: []model.Node{root},
	}
}

// withDefaults returns a copy of ec whose variables fall back to defaults.
// Variables supplied by the caller win.
func withDefaults(ec *model.ExecutionContext, defaults map[string]any) *model.ExecutionContext {
	vars := maps.Clone(defaults)
	maps.Copy(vars, ec.Variables)
	derived := *ec
	derived.Variables = vars
	return &derived
}
