// Package nodestore defines the interface for the observable runtime state of
// one graph level during an execution.
//
// # Why Node Store Exists
//
// The store isolates **mutable execution state** (state, progress, outputs,
// errors) from the **immutable execution plan** produced by the analyzer.
//
// This separation provides several architectural benefits:
//   - **Clarity:** The executor is the only writer; progress UIs are readers
//   - **Consistency:** All mutations are serialized so the cached overall
//     progress can never be computed from a torn view of node states
//   - **Observability:** Subscribers receive a snapshot after every change
//   - **Flexibility:** Different backends can be swapped behind one interface
//
// # Lifecycle and Usage
//
// The node store is:
//  1. **Initialized** with a plan; every node starts pending at 0%
//  2. **Mutated** by the executor as nodes run
//  3. **Queried** by the executor to route outputs along edges
//  4. **Observed** by progress subscribers
//  5. **Re-initialized** at the start of the next run
//
// # State Transitions
//
// Nodes follow this lifecycle:
//
//	Pending → Executing → Completed (progress 100) OR Error (progress frozen)
//
// # Progress Rules
//
//   - A node's progress never decreases within a run.
//   - A node in Error is frozen: neither its state nor its progress changes again.
//   - Overall progress is the weighted average of node progress over the
//     plan's total weight, cached, and never decreases within a run.
package nodestore

import (
	"context"
	"errors"

	"github.com/specialistvlad/nodegrid/internal/model"
)

// ErrUnknownNode is returned for a node id that is not part of the plan.
var ErrUnknownNode = errors.New("unknown node")

// ErrNotInitialized is returned when the store is used before InitializeGraph.
var ErrNotInitialized = errors.New("store not initialized")

// State is the runtime state of one node.
type State string

const (
	StatePending   State = "pending"
	StateExecuting State = "executing"
	StateCompleted State = "completed"
	StateError     State = "error"
)

// NodeState is the runtime record of one node.
type NodeState struct {
	State    State   `json:"state"`
	Progress float64 `json:"progress"`
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	State    *State
	Progress *float64
}

// WithState builds a patch that only changes the state.
func WithState(s State) Patch { return Patch{State: &s} }

// WithProgress builds a patch that only changes the progress.
func WithProgress(p float64) Patch { return Patch{Progress: &p} }

// Snapshot is a consistent copy of the store.
type Snapshot struct {
	Nodes           map[string]NodeState `json:"nodes"`
	OverallProgress float64              `json:"overallProgress"`
	// Version increases with every change, so observers can drop stale snapshots.
	Version uint64 `json:"version"`
}

// Store is the interface for the observable runtime state of a graph level.
//
// # Thread-Safety Requirements
//
// Implementations MUST serialize all mutations, as parallel batches update
// node states concurrently while subscribers read snapshots.
//
// # Typical Implementation
//
// See internal/inmemorystore for the reference in-memory implementation.
type Store interface {
	// InitializeGraph seeds the store from a plan. Every node becomes pending
	// with progress 0, and outputs, errors and the cached overall progress are
	// discarded.
	InitializeGraph(ctx context.Context, graph *model.ExecutionGraph) error

	// UpdateNodeState applies a patch to one node and recomputes the overall
	// progress. Entering StateCompleted forces progress to 100. Patches to a
	// node in StateError are ignored.
	UpdateNodeState(ctx context.Context, id string, patch Patch) error

	// GetState returns a synchronous snapshot.
	GetState(ctx context.Context) Snapshot

	// NodeState returns the runtime record of one node.
	NodeState(ctx context.Context, id string) (NodeState, error)

	// SetOutput records the output of a completed node.
	SetOutput(ctx context.Context, id string, output any) error

	// GetOutput returns the recorded output of a node and whether one exists.
	GetOutput(ctx context.Context, id string) (any, bool, error)

	// SetError records the failure of a node.
	SetError(ctx context.Context, id string, nodeErr error) error

	// GetError returns the recorded failure of a node, or nil.
	GetError(ctx context.Context, id string) (error, error)

	// Subscribe registers fn to receive a snapshot after every change. The
	// returned function removes the subscription.
	Subscribe(fn func(Snapshot)) (unsubscribe func())
}
