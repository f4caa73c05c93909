package engine

import (
	"context"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/specialistvlad/nodegrid/internal/queue"
)

// lookupLocked returns the execution with id. The caller holds e.mu.
func (e *Engine) lookupLocked(id string) (*execution, error) {
	x, ok := e.executions[id]
	if !ok {
		return nil, ErrExecutionNotFound
	}
	return x, nil
}

// Pause holds an execution at its next step boundary. Pausing a finished or
// already paused execution does nothing.
func (e *Engine) Pause(executionID string) error {
	e.mu.Lock()
	x, err := e.lookupLocked(executionID)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if x.status.terminal() || x.status == StatusPaused {
		e.mu.Unlock()
		return nil
	}
	x.pausedFrom = x.status
	x.status = StatusPaused
	x.control.Pause()
	e.mu.Unlock()

	e.logger.Info("Execution paused.", "executionID", executionID)
	return nil
}

// Resume releases a paused execution.
func (e *Engine) Resume(executionID string) error {
	e.mu.Lock()
	x, err := e.lookupLocked(executionID)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if x.status != StatusPaused {
		e.mu.Unlock()
		return nil
	}
	x.status = x.pausedFrom
	x.control.Resume()
	e.mu.Unlock()

	e.logger.Info("Execution resumed.", "executionID", executionID)
	return nil
}

// Cancel stops an execution: its queued jobs are dropped and no further
// nodes are scheduled. Running node bodies observe cancellation through
// their context. Cancelling a finished execution does nothing.
func (e *Engine) Cancel(executionID string) error {
	e.mu.Lock()
	x, err := e.lookupLocked(executionID)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	if x.status.terminal() {
		e.mu.Unlock()
		return nil
	}
	x.status = StatusCancelled
	e.mu.Unlock()

	e.abort(x)
	e.logger.Info("Execution cancelled.", "executionID", executionID)
	return nil
}

// PauseQueue stops the queue from starting any new execution.
func (e *Engine) PauseQueue() { e.queue.Pause() }

// ResumeQueue lets the queue start executions again.
func (e *Engine) ResumeQueue() { e.queue.Resume() }

// RegisterWebhook issues a one-shot webhook id for an execution. The payload
// later delivered to HandleWebhook is available through WaitWebhook.
func (e *Engine) RegisterWebhook(executionID string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.lookupLocked(executionID); err != nil {
		return "", err
	}
	hook := uuid.NewString()
	e.webhooks[hook] = executionID
	return hook, nil
}

// HandleWebhook delivers an external callback payload. Each webhook id is
// accepted once.
func (e *Engine) HandleWebhook(webhookID string, data any) error {
	e.mu.Lock()
	executionID, ok := e.webhooks[webhookID]
	delete(e.webhooks, webhookID)
	e.mu.Unlock()
	if !ok {
		return ErrWebhookNotFound
	}

	e.queue.AddWebhookResponse(executionID, data)
	e.logger.Debug("Webhook delivered.", "executionID", executionID, "webhookID", webhookID)
	return nil
}

// WaitWebhook blocks until a webhook payload for the execution arrives or
// ctx ends.
func (e *Engine) WaitWebhook(ctx context.Context, executionID string) (any, error) {
	return e.queue.WaitWebhook(ctx, executionID)
}

// GetExecutionStatus reports the current state of an execution.
func (e *Engine) GetExecutionStatus(ctx context.Context, executionID string) (*ExecutionStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	x, err := e.lookupLocked(executionID)
	if err != nil {
		return nil, err
	}
	st := x.snapshotLocked(ctx)
	return &st, nil
}

// GetExecutionHistory returns up to limit executions, newest first. A limit
// of zero or less returns every retained execution.
func (e *Engine) GetExecutionHistory(ctx context.Context, limit int) []ExecutionStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	all := make([]*execution, 0, len(e.executions))
	for _, x := range e.executions {
		all = append(all, x)
	}
	slices.SortFunc(all, func(a, b *execution) int {
		if c := b.started.Compare(a.started); c != 0 {
			return c
		}
		return strings.Compare(a.id, b.id)
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}

	out := make([]ExecutionStatus, 0, len(all))
	for _, x := range all {
		st := x.snapshotLocked(ctx)
		st.Nodes = nil
		out = append(out, st)
	}
	return out
}

// Metrics aggregates queue, worker and execution counters.
type Metrics struct {
	Queue      queue.Metrics         `json:"queue"`
	Workers    []queue.WorkerMetrics `json:"workers"`
	Executions map[Status]int        `json:"executions"`
	Blueprints int                   `json:"blueprints"`
}

// GetMetrics returns the current counters.
func (e *Engine) GetMetrics() Metrics {
	m := Metrics{
		Queue:      e.queue.Metrics(),
		Workers:    e.queue.WorkerMetrics(),
		Executions: make(map[Status]int),
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, x := range e.executions {
		m.Executions[x.status]++
	}
	m.Blueprints = len(e.blueprints)
	return m
}
