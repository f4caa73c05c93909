package executor

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/specialistvlad/nodegrid/internal/analyzer"
	"github.com/specialistvlad/nodegrid/internal/ctxlog"
	"github.com/specialistvlad/nodegrid/internal/handlers"
	"github.com/specialistvlad/nodegrid/internal/model"
	"github.com/specialistvlad/nodegrid/internal/nodestore"
)

// debugTicks is the number of progress steps of a delayed simulated error
// when no slowMo is set.
const debugTicks = 4

// runNode executes one node and records its outcome. Failures are stored on
// the run, never returned.
func (r *graphRun) runNode(ctx context.Context, id string) {
	n := r.plan.Nodes[id]
	meta := n.Base()
	traceID := r.prefix + id
	logger := ctxlog.FromContext(ctx).With("nodeID", traceID, "type", meta.Type)
	ctx = ctxlog.WithLogger(ctx, logger)

	ctx, span := tracer.Start(ctx, "executor.Node",
		trace.WithAttributes(
			attribute.String("nodegrid.node_id", traceID),
			attribute.String("nodegrid.node_type", meta.Type),
		),
	)
	defer span.End()

	start := time.Now()
	r.setState(ctx, id, nodestore.StateExecuting)
	r.rec.Record(model.TraceEvent{Type: model.EventNodeStarted, NodeID: traceID})
	logger.Debug("Node started.")

	output, nodeErr := r.execute(ctx, n)
	duration := time.Since(start)
	attrs := metric.WithAttributes(attribute.String("node_type", meta.Type))
	if r.exec.nodeLatency != nil {
		r.exec.nodeLatency.Record(ctx, duration.Seconds(), attrs)
	}

	if nodeErr != nil {
		if err := r.store.SetError(ctx, id, nodeErr); err != nil {
			logger.Error("Failed to record node error.", "error", err)
		}
		r.setState(ctx, id, nodestore.StateError)
		r.rec.Record(model.TraceEvent{Type: model.EventNodeFailed, NodeID: traceID, Duration: duration, Error: nodeErr})
		r.fail(id, nodeErr)
		if r.exec.nodeFailures != nil {
			r.exec.nodeFailures.Add(ctx, 1, attrs)
		}
		span.RecordError(nodeErr)
		span.SetStatus(codes.Error, string(nodeErr.Code))
		logger.Warn("Node failed.", "code", nodeErr.Code, "error", nodeErr.Message, "duration", duration)
		return
	}

	if err := r.store.SetOutput(ctx, id, output); err != nil {
		logger.Error("Failed to record node output.", "error", err)
	}
	r.setState(ctx, id, nodestore.StateCompleted)
	r.rec.Record(model.TraceEvent{Type: model.EventNodeCompleted, NodeID: traceID, Duration: duration})
	r.succeeded(id)
	if r.exec.nodeSuccesses != nil {
		r.exec.nodeSuccesses.Add(ctx, 1, attrs)
	}
	logger.Debug("Node completed.", "duration", duration)
}

// execute prepares the node context, applies debug directives and slowMo,
// and invokes the node body under the node timeout.
func (r *graphRun) execute(ctx context.Context, n model.Node) (any, *model.Error) {
	meta := n.Base()
	id := meta.ID

	var overrides map[string]any
	if g, ok := n.(*model.Group); ok {
		overrides = g.Variables
	}
	nodeEC := r.ec.Derive(id, r.buildInput(ctx, id), meta.Parameters, overrides)

	timeout := meta.Timeout
	if timeout <= 0 {
		timeout = r.exec.defaultNodeTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if stall := r.ec.Debug.StallFor(id); stall != nil {
		ctxlog.FromContext(ctx).Debug("Simulating long running node.", "delayMs", stall.DelayMs)
		if err := sleep(ctx, time.Duration(stall.DelayMs)*time.Millisecond); err != nil {
			return nil, r.classify(id, err)
		}
	}

	if r.ec.SlowMo > 0 {
		if err := sleep(ctx, r.ec.SlowMo); err != nil {
			return nil, r.classify(id, err)
		}
		r.progress(ctx, id, 50)
	}

	if sim := r.ec.Debug.ErrorFor(id); sim != nil {
		return nil, r.simulateError(ctx, id, sim)
	}

	var (
		out any
		err error
	)
	switch v := n.(type) {
	case *model.Group:
		out, err = r.runGroupNode(ctx, v, nodeEC)
	case *model.Leaf:
		out, err = r.invokeLeaf(ctx, v, nodeEC)
	default:
		err = model.NewError(model.CodeInvalidGraph, id, fmt.Sprintf("unsupported node variant %T", n))
	}
	if err != nil {
		return nil, r.classify(id, err)
	}
	return out, nil
}

// invokeLeaf calls the registered executable. The call runs in its own
// goroutine so that the node timeout and run cancellation are honoured even
// when the body ignores its context; such a body is left to finish on its own.
func (r *graphRun) invokeLeaf(ctx context.Context, leaf *model.Leaf, nodeEC *model.ExecutionContext) (any, error) {
	h, ok := r.exec.registry.Lookup(leaf.Type)
	if !ok {
		return nil, model.NewError(model.CodeUnknownNodeType, leaf.ID, fmt.Sprintf("no handler registered for node type '%s'", leaf.Type))
	}

	ctx = handlers.WithProgress(ctx, func(pct float64) { r.progress(ctx, leaf.ID, pct) })

	type outcome struct {
		out any
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				ctxlog.FromContext(ctx).Error("Node panicked.", "panic", rec, "stack", string(debug.Stack()))
				done <- outcome{err: model.NewError(model.CodeNodePanic, leaf.ID, fmt.Sprintf("node panicked: %v", rec))}
			}
		}()
		out, err := h.Fn.Execute(ctx, nodeEC)
		done <- outcome{out: out, err: err}
	}()

	select {
	case res := <-done:
		return res.out, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// runGroupNode executes a nested group with its own store. The group's
// overall progress is mirrored onto the group node in the parent store.
func (r *graphRun) runGroupNode(ctx context.Context, g *model.Group, nodeEC *model.ExecutionContext) (any, error) {
	plan, err := analyzer.Analyze(g)
	if err != nil {
		return nil, err
	}
	store := r.exec.newStore()
	if err := store.InitializeGraph(ctx, plan); err != nil {
		return nil, err
	}
	unsubscribe := store.Subscribe(func(s nodestore.Snapshot) {
		r.progress(ctx, g.ID, s.OverallProgress)
	})
	defer unsubscribe()

	child := &graphRun{
		exec:   r.exec,
		rec:    r.rec,
		group:  g,
		plan:   plan,
		store:  store,
		ec:     nodeEC,
		prefix: r.prefix + g.ID + "/",
	}
	if err := child.walk(ctx); err != nil {
		return nil, err
	}
	return child.data(ctx), nil
}

// simulateError fails the node on purpose. With a delay, progress advances in
// steps of slowMo (or a quarter of the delay) until the delay has elapsed, so
// the node freezes somewhere strictly between 0 and 100.
func (r *graphRun) simulateError(ctx context.Context, id string, sim *model.SimulateError) *model.Error {
	delay := time.Duration(sim.DelayMs) * time.Millisecond
	if delay > 0 {
		step := r.ec.SlowMo
		if step <= 0 {
			step = delay / debugTicks
		}
		for elapsed := time.Duration(0); elapsed < delay; {
			wait := min(step, delay-elapsed)
			if err := sleep(ctx, wait); err != nil {
				return r.classify(id, err)
			}
			elapsed += wait
			if elapsed < delay {
				r.progress(ctx, id, float64(elapsed)/float64(delay)*100)
			}
		}
	}

	code := model.CodeNodeExecution
	if sim.ErrorType != "" {
		code = model.Code(sim.ErrorType)
	}
	msg := sim.Message
	if msg == "" {
		msg = fmt.Sprintf("simulated %s error", sim.ErrorType)
	}
	return model.NewError(code, id, msg)
}

// classify turns any node failure into a coded error attributed to the node.
func (r *graphRun) classify(id string, err error) *model.Error {
	code := model.CodeOf(err)
	if code == model.CodeExecution {
		code = model.CodeNodeExecution
	}
	return model.Wrap(code, id, err)
}

func (r *graphRun) setState(ctx context.Context, id string, s nodestore.State) {
	if err := r.store.UpdateNodeState(ctx, id, nodestore.WithState(s)); err != nil {
		ctxlog.FromContext(ctx).Error("Failed to update node state.", "nodeID", id, "state", s, "error", err)
	}
}

func (r *graphRun) progress(ctx context.Context, id string, pct float64) {
	if err := r.store.UpdateNodeState(ctx, id, nodestore.WithProgress(pct)); err != nil {
		ctxlog.FromContext(ctx).Error("Failed to update node progress.", "nodeID", id, "error", err)
		return
	}
	// The store may have ignored the update, so trace what it actually holds.
	ns, err := r.store.NodeState(ctx, id)
	if err != nil || ns.State != nodestore.StateExecuting {
		return
	}
	r.rec.Record(model.TraceEvent{Type: model.EventNodeProgress, NodeID: r.prefix + id, Progress: ns.Progress})
}

// sleep waits for d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
