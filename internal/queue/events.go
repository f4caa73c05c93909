package queue

import (
	"sync"
	"time"

	"github.com/specialistvlad/nodegrid/internal/model"
)

// EventType names a queue event.
type EventType string

const (
	EventJobAdded     EventType = "job.added"
	EventJobStarted   EventType = "job.started"
	EventJobCompleted EventType = "job.completed"
	EventJobFailed    EventType = "job.failed"
	EventJobRetrying  EventType = "job.retrying"
	EventPaused       EventType = "queue.paused"
	EventResumed      EventType = "queue.resumed"
	EventCleared      EventType = "queue.cleared"
	EventShutdown     EventType = "queue.shutdown"
)

// Event is emitted on every job and queue transition.
type Event struct {
	Type        EventType    `json:"type"`
	JobID       string       `json:"jobId,omitempty"`
	ExecutionID string       `json:"executionId,omitempty"`
	Attempt     int          `json:"attempt,omitempty"`
	Error       *model.Error `json:"error,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// emitter fans events out to subscribers. Handlers run synchronously on the
// emitting goroutine and must not call back into the queue's locked paths.
type emitter struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Event)
}

func newEmitter() *emitter {
	return &emitter{subs: make(map[int]func(Event))}
}

func (e *emitter) subscribe(fn func(Event)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.nextID
	e.nextID++
	e.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			delete(e.subs, id)
		})
	}
}

func (e *emitter) emit(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	e.mu.RLock()
	fns := make([]func(Event), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func jobEvent(t EventType, job *Job) Event {
	return Event{Type: t, JobID: job.ID, ExecutionID: job.Data.ExecutionID, Attempt: job.Attempt}
}
