package engine

import (
	"context"
	"time"

	"github.com/specialistvlad/nodegrid/internal/model"
	"github.com/specialistvlad/nodegrid/internal/nodestore"
)

// Status is the lifecycle state of an execution.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

func (s Status) terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// execution is the engine's record of one Execute call.
type execution struct {
	id          string
	blueprintID string
	jobID       string
	root        model.Node
	ec          *model.ExecutionContext
	control     *model.RunControl
	store       nodestore.Store
	unsubscribe func()

	status Status
	// pausedFrom is the status to restore on resume.
	pausedFrom Status
	started    time.Time
	finished   time.Time
	result     *model.ExecutionResult
}

// ExecutionStatus is a point-in-time view of an execution.
type ExecutionStatus struct {
	ExecutionID string                         `json:"executionId"`
	BlueprintID string                         `json:"blueprintId,omitempty"`
	JobID       string                         `json:"jobId,omitempty"`
	Status      Status                         `json:"status"`
	Progress    float64                        `json:"progress"`
	Nodes       map[string]nodestore.NodeState `json:"nodes,omitempty"`
	StartedAt   time.Time                      `json:"startedAt"`
	FinishedAt  *time.Time                     `json:"finishedAt,omitempty"`
	Result      *model.ExecutionResult         `json:"result,omitempty"`
}

// snapshotLocked builds the status view. The caller holds the engine lock.
func (x *execution) snapshotLocked(ctx context.Context) ExecutionStatus {
	st := ExecutionStatus{
		ExecutionID: x.id,
		BlueprintID: x.blueprintID,
		JobID:       x.jobID,
		Status:      x.status,
		StartedAt:   x.started,
		Result:      x.result,
	}
	if x.store != nil {
		snap := x.store.GetState(ctx)
		st.Progress = snap.OverallProgress
		st.Nodes = snap.Nodes
	}
	if !x.finished.IsZero() {
		finished := x.finished
		st.FinishedAt = &finished
	}
	return st
}
