// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev

package model

import (
	"context"
	"maps"
	"sync"
	"time"
)

// SimulateError injects a failure into the node with the given id.
type SimulateError struct {
	NodeID    string `json:"nodeId"`
	ErrorType string `json:"errorType"`
	Message   string `json:"message,omitempty"`
	DelayMs   int    `json:"delayMs,omitempty"`
}

// SimulateLongRunning stalls the node with the given id before it runs.
type SimulateLongRunning struct {
	NodeID  string `json:"nodeId"`
	DelayMs int    `json:"delayMs"`
}

// Debug holds caller-supplied fault injection directives.
type Debug struct {
	SimulateError       *SimulateError       `json:"simulateError,omitempty"`
	SimulateLongRunning *SimulateLongRunning `json:"simulateLongRunning,omitempty"`
}

// ErrorFor returns the error directive targeting nodeID, if any.
func (d *Debug) ErrorFor(nodeID string) *SimulateError {
	if d == nil || d.SimulateError == nil || d.SimulateError.NodeID != nodeID {
		return nil
	}
	return d.SimulateError
}

// StallFor returns the long-running directive targeting nodeID, if any.
func (d *Debug) StallFor(nodeID string) *SimulateLongRunning {
	if d == nil || d.SimulateLongRunning == nil || d.SimulateLongRunning.NodeID != nodeID {
		return nil
	}
	return d.SimulateLongRunning
}

// ExecutionContext is what a node body receives when it runs.
type ExecutionContext struct {
	NodeID      string         `json:"nodeId"`
	ExecutionID string         `json:"executionId"`
	Input       map[string]any `json:"input"`
	Variables   map[string]any `json:"variables,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Debug       *Debug         `json:"debug,omitempty"`
	SlowMo      time.Duration  `json:"slowMo,omitempty"`

	// Parent points at the context of the enclosing group run. It is a
	// back-reference only.
	Parent *ExecutionContext `json:"-"`
	// Control is shared by every context of one execution.
	Control *RunControl `json:"-"`
}

// Derive creates the context for a child node. Execution id, debug flags,
// slowMo and control are inherited. Variables are inherited and overridden
// key by key by overrides.
func (ec *ExecutionContext) Derive(nodeID string, input, params, overrides map[string]any) *ExecutionContext {
	vars := ec.Variables
	if len(overrides) > 0 {
		vars = make(map[string]any, len(ec.Variables)+len(overrides))
		maps.Copy(vars, ec.Variables)
		maps.Copy(vars, overrides)
	}
	return &ExecutionContext{
		NodeID:      nodeID,
		ExecutionID: ec.ExecutionID,
		Input:       input,
		Variables:   vars,
		Parameters:  params,
		Debug:       ec.Debug,
		SlowMo:      ec.SlowMo,
		Parent:      ec,
		Control:     ec.Control,
	}
}

// Param returns a parameter value, or def if it is missing.
func (ec *ExecutionContext) Param(key string, def any) any {
	if v, ok := ec.Parameters[key]; ok {
		return v
	}
	return def
}

// RunControl is the cooperative pause and cancel gate of one execution.
// Node bodies are never interrupted; the executor consults the gate between
// steps.
type RunControl struct {
	mu        sync.Mutex
	paused    bool
	resume    chan struct{}
	cancelled bool
	done      chan struct{}
}

// NewRunControl creates a running, non-cancelled control.
func NewRunControl() *RunControl {
	return &RunControl{done: make(chan struct{})}
}

// Pause stops the execution at its next checkpoint. Pausing twice is a no-op.
func (c *RunControl) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused || c.cancelled {
		return
	}
	c.paused = true
	c.resume = make(chan struct{})
}

// Resume releases a paused execution. Resuming a running one is a no-op.
func (c *RunControl) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return
	}
	c.paused = false
	close(c.resume)
}

// Cancel marks the execution cancelled and releases any paused waiter.
func (c *RunControl) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelled {
		return
	}
	c.cancelled = true
	close(c.done)
	if c.paused {
		c.paused = false
		close(c.resume)
	}
}

// Paused reports whether the execution is currently paused.
func (c *RunControl) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Cancelled reports whether Cancel has been called.
func (c *RunControl) Cancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// Done is closed once the execution is cancelled.
func (c *RunControl) Done() <-chan struct{} {
	return c.done
}

// Checkpoint blocks while the execution is paused. It returns an error when
// the execution is cancelled or ctx ends. A nil control never blocks.
func (c *RunControl) Checkpoint(ctx context.Context) error {
	if c == nil {
		return ctx.Err()
	}
	for {
		c.mu.Lock()
		cancelled, paused, resume := c.cancelled, c.paused, c.resume
		c.mu.Unlock()

		if cancelled {
			return NewError(CodeCancelled, "", "execution cancelled")
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !paused {
			return nil
		}
		select {
		case <-resume:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
