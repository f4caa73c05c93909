// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package model

import (
	"sync"
	"time"
)

// EventType names a trace event.
type EventType string

const (
	EventExecutionStarted   EventType = "execution.started"
	EventExecutionCompleted EventType = "execution.completed"
	EventExecutionFailed    EventType = "execution.failed"
	EventNodeStarted        EventType = "node.started"
	EventNodeProgress       EventType = "node.progress"
	EventNodeCompleted      EventType = "node.completed"
	EventNodeFailed         EventType = "node.failed"
	EventNodeSkipped        EventType = "node.skipped"
)

// TraceEvent is one entry of an execution timeline.
type TraceEvent struct {
	Type      EventType      `json:"type"`
	NodeID    string         `json:"nodeId,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Duration  time.Duration  `json:"duration,omitempty"`
	Progress  float64        `json:"progress,omitempty"`
	Error     *Error         `json:"error,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Trace is the ordered timeline of one run.
type Trace struct {
	ExecutionID string       `json:"executionId"`
	Events      []TraceEvent `json:"events"`
}

// Recorder appends events to a trace from concurrent goroutines. Timestamps
// are assigned under the lock and clamped so that they never go backwards.
type Recorder struct {
	mu    sync.Mutex
	trace Trace
	last  time.Time
	now   func() time.Time
}

// NewRecorder creates a recorder for the given execution.
func NewRecorder(executionID string) *Recorder {
	return &Recorder{
		trace: Trace{ExecutionID: executionID},
		now:   time.Now,
	}
}

// Record stamps ev and appends it. The stamped event is returned.
func (r *Recorder) Record(ev TraceEvent) TraceEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := r.now()
	if ts.Before(r.last) {
		ts = r.last
	}
	r.last = ts
	ev.Timestamp = ts
	r.trace.Events = append(r.trace.Events, ev)
	return ev
}

// Trace returns a copy of the recorded timeline.
func (r *Recorder) Trace() *Trace {
	r.mu.Lock()
	defer r.mu.Unlock()
	events := make([]TraceEvent, len(r.trace.Events))
	copy(events, r.trace.Events)
	return &Trace{ExecutionID: r.trace.ExecutionID, Events: events}
}

// ExecutionResult is the terminal outcome of one run.
type ExecutionResult struct {
	ExecutionID   string         `json:"executionId"`
	Success       bool           `json:"success"`
	Data          any            `json:"data,omitempty"`
	Error         *Error         `json:"error,omitempty"`
	Duration      time.Duration  `json:"duration"`
	ExecutedNodes []string       `json:"executedNodes"`
	Outputs       map[string]any `json:"outputs,omitempty"`
	Trace         *Trace         `json:"trace,omitempty"`
}

// Failed builds an unsuccessful result.
func Failed(executionID string, err *Error, duration time.Duration) *ExecutionResult {
	return &ExecutionResult{
		ExecutionID:   executionID,
		Error:         err,
		Duration:      duration,
		ExecutedNodes: []string{},
	}
}
