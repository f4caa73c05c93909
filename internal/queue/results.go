package queue

import (
	"context"
	"time"

	"github.com/specialistvlad/nodegrid/internal/ctxlog"
)

type storedResult struct {
	resp    *JobResponse
	expires time.Time
}

type storedWebhook struct {
	data    any
	expires time.Time
}

// storeLocked records the outcome of job under its own id and, for retries,
// under the id of the job that started the chain. Waiters on the chain are
// released.
func (q *Queue) storeLocked(job *Job, resp *JobResponse) {
	now := time.Now()
	resp.JobID = job.ID
	resp.ExecutionID = job.Data.ExecutionID
	resp.Attempts = job.Attempt
	resp.FinishedAt = now
	expires := now.Add(q.cfg.ResultTTL)
	q.results[job.ID] = &storedResult{resp: resp, expires: expires}

	if job.originID != job.ID {
		origin := *resp
		origin.JobID = job.originID
		origin.ExecutionID = job.Data.OriginalExecutionID()
		q.results[job.originID] = &storedResult{resp: &origin, expires: expires}
	}
	if ch, ok := q.waiters[job.originID]; ok {
		close(ch)
		delete(q.waiters, job.originID)
	}
}

// GetJobResult returns the outcome of a job without blocking. The second
// value is false until the job has finished, or after its result expired.
func (q *Queue) GetJobResult(jobID string) (*JobResponse, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	r, ok := q.results[jobID]
	if !ok || time.Now().After(r.expires) {
		return nil, false
	}
	resp := *r.resp
	return &resp, true
}

// Wait blocks until the job finishes or ctx ends.
func (q *Queue) Wait(ctx context.Context, jobID string) (*JobResponse, error) {
	q.mu.Lock()
	if r, ok := q.results[jobID]; ok {
		resp := *r.resp
		q.mu.Unlock()
		return &resp, nil
	}
	ch, ok := q.waiters[jobID]
	q.mu.Unlock()
	if !ok {
		return nil, ErrJobNotFound
	}

	select {
	case <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if resp, ok := q.GetJobResult(jobID); ok {
		return resp, nil
	}
	return nil, ErrJobNotFound
}

// RemoveJobResult deletes a stored result. It reports whether one existed.
func (q *Queue) RemoveJobResult(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.results[jobID]
	delete(q.results, jobID)
	return ok
}

// AddWebhookResponse stores an external callback payload for an execution
// and releases anyone waiting for it.
func (q *Queue) AddWebhookResponse(executionID string, data any) {
	q.mu.Lock()
	q.webhooks[executionID] = &storedWebhook{data: data, expires: time.Now().Add(q.cfg.WebhookTTL)}
	if ch, ok := q.hookWaiters[executionID]; ok {
		close(ch)
		delete(q.hookWaiters, executionID)
	}
	q.mu.Unlock()

	ctxlog.FromContext(q.ctx).Debug("Webhook response stored.", "executionID", executionID)
}

// GetWebhookResponse returns the stored payload for an execution, if any.
func (q *Queue) GetWebhookResponse(executionID string) (any, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	w, ok := q.webhooks[executionID]
	if !ok || time.Now().After(w.expires) {
		return nil, false
	}
	return w.data, true
}

// WaitWebhook blocks until a webhook response for the execution arrives or
// ctx ends.
func (q *Queue) WaitWebhook(ctx context.Context, executionID string) (any, error) {
	q.mu.Lock()
	if w, ok := q.webhooks[executionID]; ok && time.Now().Before(w.expires) {
		q.mu.Unlock()
		return w.data, nil
	}
	ch, ok := q.hookWaiters[executionID]
	if !ok {
		ch = make(chan struct{})
		q.hookWaiters[executionID] = ch
	}
	q.mu.Unlock()

	select {
	case <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if data, ok := q.GetWebhookResponse(executionID); ok {
		return data, nil
	}
	return nil, ErrShuttingDown
}

func (q *Queue) sweepLoop() {
	defer q.wg.Done()
	ticker := time.NewTicker(q.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-q.done:
			return
		case now := <-ticker.C:
			q.sweep(now)
		}
	}
}

// sweep evicts expired results and webhook responses.
func (q *Queue) sweep(now time.Time) {
	q.mu.Lock()
	var results, hooks int
	for id, r := range q.results {
		if now.After(r.expires) {
			delete(q.results, id)
			results++
		}
	}
	for id, w := range q.webhooks {
		if now.After(w.expires) {
			delete(q.webhooks, id)
			hooks++
		}
	}
	q.mu.Unlock()

	if results > 0 || hooks > 0 {
		ctxlog.FromContext(q.ctx).Debug("Expired entries swept.", "results", results, "webhooks", hooks)
	}
}
