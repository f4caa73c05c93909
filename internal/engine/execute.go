package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/specialistvlad/nodegrid/internal/analyzer"
	"github.com/specialistvlad/nodegrid/internal/ctxlog"
	"github.com/specialistvlad/nodegrid/internal/inmemorystore"
	"github.com/specialistvlad/nodegrid/internal/model"
	"github.com/specialistvlad/nodegrid/internal/nodestore"
	"github.com/specialistvlad/nodegrid/internal/queue"
	"github.com/specialistvlad/nodegrid/internal/transport"
)

// Request describes one execution. Either Graph or BlueprintID must be set;
// Graph wins when both are.
type Request struct {
	Graph       model.Node
	BlueprintID string
	Input       map[string]any
	Variables   map[string]any
	Debug       *model.Debug
	SlowMo      time.Duration
	WebhookData map[string]any

	// Priority orders queued executions; higher runs first.
	Priority int
	// Attempts is the number of times a failing execution is run.
	Attempts int
	Backoff  *queue.Backoff
	// Timeout overrides the engine's ExecuteTimeout.
	Timeout time.Duration
}

// ProgressEvent is published on the engine channel whenever the overall
// progress of an execution changes.
type ProgressEvent struct {
	ExecutionID string                         `json:"executionId"`
	Progress    float64                        `json:"progress"`
	Nodes       map[string]nodestore.NodeState `json:"nodes"`
	Version     uint64                         `json:"version"`
}

// Execute runs a graph through the queue and waits for it to finish or for
// the timeout to expire, whichever comes first. A timeout or a cancelled ctx
// cancels the execution. Execute never returns nil.
func (e *Engine) Execute(ctx context.Context, req Request) (result *model.ExecutionResult) {
	id := uuid.NewString()
	start := time.Now()
	logger := e.logger.With("executionID", id)

	defer func() {
		if p := recover(); p != nil {
			logger.Error("Execute panicked.", "panic", p)
			result = model.Failed(id, model.NewError(model.CodeExecution, "", fmt.Sprintf("execute panicked: %v", p)), time.Since(start))
		}
	}()

	root, err := e.resolve(req)
	if err != nil {
		return model.Failed(id, model.AsError("", err), time.Since(start))
	}
	if _, err := analyzer.Analyze(root); err != nil {
		logger.Warn("Execution rejected.", "error", err)
		return model.Failed(id, model.AsError("", err), time.Since(start))
	}

	x := e.record(id, req, root)
	if x == nil {
		return model.Failed(id, model.NewError(model.CodeShuttingDown, "", "engine is shutting down"), time.Since(start))
	}

	jobID, err := e.queue.Add(queue.JobData{
		ExecutionID: id,
		BlueprintID: req.BlueprintID,
		Input:       req.Input,
		WebhookData: req.WebhookData,
	}, queue.JobOptions{
		Priority: req.Priority,
		Attempts: req.Attempts,
		Backoff:  req.Backoff,
	})
	if err != nil {
		logger.Warn("Execution not enqueued.", "error", err)
		return e.finish(x, model.Failed(id, model.AsError("", err), time.Since(start)))
	}
	e.mu.Lock()
	x.jobID = jobID
	e.mu.Unlock()
	logger.Debug("Execution enqueued.", "jobID", jobID)

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.cfg.ExecuteTimeout
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := e.queue.Wait(waitCtx, jobID)
	if err != nil {
		code := model.CodeOf(err)
		msg := fmt.Sprintf("execution timed out after %s", timeout)
		if code != model.CodeTimeout {
			msg = fmt.Sprintf("execution abandoned: %v", err)
		}
		logger.Warn("Execution did not finish in time, cancelling.", "code", code, "timeout", timeout)
		e.abort(x)
		return e.finish(x, model.Failed(id, model.NewError(code, "", msg), time.Since(start)))
	}
	return e.finish(x, e.resultOf(id, resp, start))
}

// resolve returns the graph of a request.
func (e *Engine) resolve(req Request) (model.Node, error) {
	if req.Graph != nil {
		return req.Graph, nil
	}
	if req.BlueprintID == "" {
		return nil, model.NewError(model.CodeInvalidArgument, "", "request names neither a graph nor a blueprint")
	}
	root, ok := e.blueprint(req.BlueprintID)
	if !ok {
		return nil, model.NewError(model.CodeBlueprintNotFound, "", fmt.Sprintf("blueprint %q not found", req.BlueprintID))
	}
	return root, nil
}

// record registers a new queued execution, or returns nil after shutdown.
func (e *Engine) record(id string, req Request, root model.Node) *execution {
	store := e.storeFor()
	x := &execution{
		id:          id,
		blueprintID: req.BlueprintID,
		root:        root,
		control:     model.NewRunControl(),
		store:       store,
		status:      StatusQueued,
		started:     time.Now(),
	}
	x.ec = &model.ExecutionContext{
		ExecutionID: id,
		Input:       req.Input,
		Variables:   req.Variables,
		Debug:       req.Debug,
		SlowMo:      req.SlowMo,
		Control:     x.control,
	}

	// Stores notify outside their own lock, so parallel nodes deliver
	// snapshots concurrently; publishing under mu keeps versions ordered.
	var (
		mu   sync.Mutex
		last uint64
	)
	x.unsubscribe = store.Subscribe(func(snap nodestore.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if snap.Version <= last {
			return
		}
		last = snap.Version
		_ = e.router.Publish(transport.EngineChannel, "progress", ProgressEvent{
			ExecutionID: id,
			Progress:    snap.OverallProgress,
			Nodes:       snap.Nodes,
			Version:     snap.Version,
		})
	})

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		x.unsubscribe()
		return nil
	}
	e.executions[id] = x
	return x
}

func (e *Engine) storeFor() nodestore.Store {
	if e.newStore != nil {
		return e.newStore()
	}
	return inmemorystore.New()
}

// process is the queue processor: it runs the graph of the execution the
// job belongs to.
func (e *Engine) process(ctx context.Context, job queue.Job) (any, error) {
	id := job.Data.OriginalExecutionID()
	e.mu.Lock()
	x, ok := e.executions[id]
	if ok && x.control.Cancelled() {
		e.mu.Unlock()
		return nil, queue.Permanent(model.NewError(model.CodeCancelled, "", "execution cancelled before it started"))
	}
	if ok {
		switch x.status {
		case StatusQueued:
			x.status = StatusRunning
		case StatusPaused:
			x.pausedFrom = StatusRunning
		}
	}
	e.mu.Unlock()
	if !ok {
		return nil, queue.Permanent(ErrExecutionNotFound)
	}

	logger := ctxlog.FromContext(ctx).With("executionID", id)
	ctx = ctxlog.WithLogger(ctx, logger)
	if job.Attempt > 1 {
		logger.Info("Retrying execution.", "attempt", job.Attempt)
	}

	res := e.exec.Run(ctx, x.root, x.ec, x.store)
	if res.Success {
		return res, nil
	}
	switch res.Error.Code {
	case model.CodeCancelled, model.CodeCycleDetected, model.CodeInvalidGraph:
		return res, queue.Permanent(res.Error)
	}
	return res, res.Error
}

// resultOf turns a job response into the execution result.
func (e *Engine) resultOf(id string, resp *queue.JobResponse, start time.Time) *model.ExecutionResult {
	if res, ok := resp.Result.(*model.ExecutionResult); ok && res != nil {
		out := *res
		out.ExecutionID = id
		out.Duration = time.Since(start)
		if !resp.Success && out.Error == nil {
			out.Error = resp.Error
		}
		return &out
	}
	if resp.Success {
		return &model.ExecutionResult{ExecutionID: id, Success: true, Data: resp.Result, Duration: time.Since(start), ExecutedNodes: []string{}}
	}
	return model.Failed(id, resp.Error, time.Since(start))
}

// finish stores the final result, moves the execution into history and
// publishes the completed event.
func (e *Engine) finish(x *execution, res *model.ExecutionResult) *model.ExecutionResult {
	e.mu.Lock()
	if x.status.terminal() && x.result != nil {
		res = x.result
		e.mu.Unlock()
		return res
	}
	switch {
	case res.Success:
		x.status = StatusCompleted
	case x.status == StatusCancelled || (res.Error != nil && res.Error.Code == model.CodeCancelled):
		x.status = StatusCancelled
	default:
		x.status = StatusFailed
	}
	x.result = res
	x.finished = time.Now()
	e.finished = append(e.finished, x.id)
	e.evictLocked()
	status := x.status
	e.mu.Unlock()

	if x.unsubscribe != nil {
		x.unsubscribe()
	}
	e.queue.RemoveJobResult(x.jobID)
	_ = e.router.Publish(transport.EngineChannel, "completed", res)
	e.logger.Debug("Execution finished.", "executionID", x.id, "status", status, "duration", res.Duration)
	return res
}

// evictLocked drops the oldest finished executions beyond the history limit.
func (e *Engine) evictLocked() {
	for len(e.finished) > e.cfg.HistoryLimit {
		old := e.finished[0]
		e.finished = e.finished[1:]
		delete(e.executions, old)
		for hook, execID := range e.webhooks {
			if execID == old {
				delete(e.webhooks, hook)
			}
		}
	}
}

// abort cancels a running execution and drops its queued jobs.
func (e *Engine) abort(x *execution) {
	x.control.Cancel()
	e.queue.CancelExecution(x.id)
}
