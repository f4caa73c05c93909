package queue

import (
	"context"

	"github.com/specialistvlad/nodegrid/internal/ctxlog"
	"github.com/specialistvlad/nodegrid/internal/model"
)

// Pause stops dequeuing. Queued and running jobs are kept.
func (q *Queue) Pause() {
	q.mu.Lock()
	if q.paused {
		q.mu.Unlock()
		return
	}
	q.paused = true
	q.mu.Unlock()

	ctxlog.FromContext(q.ctx).Info("Queue paused.")
	q.events.emit(Event{Type: EventPaused})
}

// Resume restarts dequeuing.
func (q *Queue) Resume() {
	q.mu.Lock()
	if !q.paused {
		q.mu.Unlock()
		return
	}
	q.paused = false
	q.mu.Unlock()

	ctxlog.FromContext(q.ctx).Info("Queue resumed.")
	q.events.emit(Event{Type: EventResumed})
	q.signal()
}

// Paused reports whether dequeuing is stopped.
func (q *Queue) Paused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// Clear drops every queued, delayed and running job. Running jobs have their
// context cancelled; everyone waiting on a dropped job receives a CANCELLED
// response. It returns the number of dropped jobs.
func (q *Queue) Clear() int {
	n := q.drop(func(*Job) bool { return true })
	ctxlog.FromContext(q.ctx).Info("Queue cleared.", "dropped", n)
	q.events.emit(Event{Type: EventCleared})
	return n
}

// CancelExecution drops the jobs of one execution, including its retries.
// It returns the number of dropped jobs.
func (q *Queue) CancelExecution(executionID string) int {
	n := q.drop(func(j *Job) bool { return j.Data.OriginalExecutionID() == executionID })
	if n > 0 {
		ctxlog.FromContext(q.ctx).Info("Execution removed from queue.", "executionID", executionID, "dropped", n)
	}
	return n
}

func (q *Queue) drop(match func(*Job) bool) int {
	q.mu.Lock()
	var dropped []*Job

	kept := q.pending[:0]
	for _, e := range q.pending {
		if match(e.job) {
			dropped = append(dropped, e.job)
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(q.pending); i++ {
		q.pending[i] = nil
	}
	q.pending = kept
	q.reheapLocked()

	for id, d := range q.delayed {
		if match(d.job) {
			d.timer.Stop()
			delete(q.delayed, id)
			dropped = append(dropped, d.job)
		}
	}
	for id, aj := range q.active {
		if match(aj.job) {
			aj.cancel()
			delete(q.active, id)
			dropped = append(dropped, aj.job)
		}
	}

	events := make([]Event, 0, len(dropped))
	for _, job := range dropped {
		err := model.NewError(model.CodeCancelled, "", "job cancelled before completion")
		q.storeLocked(job, &JobResponse{Success: false, Error: err})
		ev := jobEvent(EventJobFailed, job)
		ev.Error = err
		events = append(events, ev)
	}
	q.checkIdleLocked()
	q.mu.Unlock()

	for _, ev := range events {
		q.events.emit(ev)
	}
	q.signal()
	return len(dropped)
}

// GracefulShutdown stops accepting jobs, waits for queued and running jobs to
// finish, emits EventShutdown and releases the pool and all stored state.
// When ctx ends first the remaining jobs are cleared and ctx's error is
// returned. Calling it again waits for the first call and returns nil.
func (q *Queue) GracefulShutdown(ctx context.Context) error {
	var err error
	q.shutdownOnce.Do(func() {
		err = q.shutdown(ctx)
	})
	return err
}

func (q *Queue) shutdown(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	q.mu.Lock()
	q.shuttingDown = true
	q.paused = false
	q.idle = make(chan struct{})
	idle := q.idle
	q.checkIdleLocked()
	q.mu.Unlock()
	q.signal()

	logger.Info("Queue draining.")
	var err error
	select {
	case <-idle:
	case <-ctx.Done():
		err = ctx.Err()
		logger.Warn("Queue drain interrupted, clearing remaining jobs.", "error", err)
		q.drop(func(*Job) bool { return true })
	}

	q.events.emit(Event{Type: EventShutdown})
	q.cancel()
	close(q.done)
	q.wg.Wait()
	q.pool.Release()

	q.mu.Lock()
	q.results = make(map[string]*storedResult)
	q.webhooks = make(map[string]*storedWebhook)
	for id, ch := range q.hookWaiters {
		close(ch)
		delete(q.hookWaiters, id)
	}
	q.mu.Unlock()

	logger.Info("Queue shut down.")
	return err
}

// checkIdleLocked releases a pending shutdown once no work is left.
func (q *Queue) checkIdleLocked() {
	if q.idle == nil {
		return
	}
	if len(q.active) == 0 && q.pending.Len() == 0 && len(q.delayed) == 0 {
		close(q.idle)
		q.idle = nil
	}
}
