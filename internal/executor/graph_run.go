package executor

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/specialistvlad/nodegrid/internal/ctxlog"
	"github.com/specialistvlad/nodegrid/internal/model"
	"github.com/specialistvlad/nodegrid/internal/nodestore"
)

// graphRun is the state of one graph level of one execution. Nested groups
// get their own graphRun and store.
type graphRun struct {
	exec  *Executor
	rec   *model.Recorder
	group *model.Group
	plan  *model.ExecutionGraph
	store nodestore.Store
	ec    *model.ExecutionContext
	// prefix qualifies node ids of nested levels in the trace, e.g. "outer/".
	prefix string

	mu       sync.Mutex
	executed []string
	failed   map[string]bool
	blocked  map[string]bool
	firstErr *model.Error
}

// walk runs the plan batch by batch and returns the first failure.
func (r *graphRun) walk(ctx context.Context) *model.Error {
	logger := ctxlog.FromContext(ctx)
	r.failed = make(map[string]bool)
	r.blocked = make(map[string]bool)

	for i, batch := range r.plan.ExecutionOrder {
		if err := r.ec.Control.Checkpoint(ctx); err != nil {
			return r.interrupted(err)
		}
		if r.stopped() {
			break
		}

		runnable := r.filterBlocked(batch)
		logger.Debug("Starting batch.", "group", r.group.ID, "batch", i, "nodes", len(runnable))

		if r.group.Parallel && len(runnable) > 1 {
			if err := r.runParallel(ctx, runnable); err != nil {
				return err
			}
		} else {
			for _, id := range runnable {
				if err := r.ec.Control.Checkpoint(ctx); err != nil {
					return r.interrupted(err)
				}
				if r.stopped() {
					break
				}
				r.runNode(ctx, id)
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.firstErr == nil {
		if err := ctx.Err(); err != nil {
			return model.AsError("", err)
		}
		if r.ec.Control.Cancelled() {
			return model.NewError(model.CodeCancelled, "", "execution cancelled")
		}
	}
	return r.firstErr
}

// runParallel runs one batch concurrently. Siblings of a failed node are not
// interrupted, but nodes that have not started yet are left pending unless
// the group continues on error.
func (r *graphRun) runParallel(ctx context.Context, ids []string) *model.Error {
	limit := r.group.MaxConcurrency
	if limit <= 0 {
		limit = r.exec.maxConcurrency
	}
	if limit <= 0 {
		limit = -1
	}

	var eg errgroup.Group
	eg.SetLimit(limit)
	for _, id := range ids {
		eg.Go(func() error {
			if err := r.ec.Control.Checkpoint(ctx); err != nil || r.stopped() {
				return nil
			}
			r.runNode(ctx, id)
			return nil
		})
	}
	_ = eg.Wait()

	if err := r.ec.Control.Checkpoint(ctx); err != nil {
		return r.interrupted(err)
	}
	return nil
}

// filterBlocked drops nodes with a failed or blocked dependency. They stay
// pending and a skip event is recorded for each.
func (r *graphRun) filterBlocked(batch []string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	runnable := make([]string, 0, len(batch))
	for _, id := range batch {
		var cause string
		for _, dep := range r.plan.Dependencies[id] {
			if r.failed[dep] || r.blocked[dep] {
				cause = dep
				break
			}
		}
		if cause == "" {
			runnable = append(runnable, id)
			continue
		}
		r.blocked[id] = true
		r.rec.Record(model.TraceEvent{
			Type:   model.EventNodeSkipped,
			NodeID: r.prefix + id,
			Data:   map[string]any{"blockedBy": r.prefix + cause},
		})
	}
	return runnable
}

// stopped reports whether a failure ends this level of the run.
func (r *graphRun) stopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.firstErr != nil && !r.group.ContinueOnError
}

func (r *graphRun) succeeded(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executed = append(r.executed, id)
}

func (r *graphRun) fail(id string, err *model.Error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[id] = true
	if r.firstErr == nil {
		r.firstErr = err
	}
}

// interrupted converts a checkpoint error into the run error. A node failure
// that happened first wins.
func (r *graphRun) interrupted(err error) *model.Error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.firstErr != nil {
		return r.firstErr
	}
	return model.AsError("", err)
}

func (r *graphRun) executedNodes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.executed))
	copy(out, r.executed)
	return out
}

// outputs collects the recorded output of every node of this level.
func (r *graphRun) outputs(ctx context.Context) map[string]any {
	out := make(map[string]any)
	for _, id := range r.plan.NodeIDs() {
		if v, ok, err := r.store.GetOutput(ctx, id); err == nil && ok {
			out[id] = v
		}
	}
	return out
}

// data is the terminal value of this level: the output of the single sink,
// or a map of sink id to output when the graph has several sinks.
func (r *graphRun) data(ctx context.Context) any {
	sinks := r.group.Sinks()
	if len(sinks) == 1 {
		v, _, _ := r.store.GetOutput(ctx, sinks[0])
		return v
	}
	out := make(map[string]any, len(sinks))
	for _, id := range sinks {
		if v, ok, err := r.store.GetOutput(ctx, id); err == nil && ok {
			out[id] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
