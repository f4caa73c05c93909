package queue

import (
	"errors"
	"time"

	"github.com/specialistvlad/nodegrid/internal/model"
)

// JobData is the payload of a job.
type JobData struct {
	ExecutionID string         `json:"executionId"`
	BlueprintID string         `json:"blueprintId,omitempty"`
	Input       map[string]any `json:"input,omitempty"`
	WebhookData map[string]any `json:"webhookData,omitempty"`
	// RetryOf is the execution id of the original job when this job is a retry.
	RetryOf string `json:"retryOf,omitempty"`
}

// OriginalExecutionID returns the execution id that started the retry chain.
func (d JobData) OriginalExecutionID() string {
	if d.RetryOf != "" {
		return d.RetryOf
	}
	return d.ExecutionID
}

// BackoffType selects how the retry delay grows.
type BackoffType string

const (
	BackoffFixed       BackoffType = "fixed"
	BackoffExponential BackoffType = "exponential"
)

// Backoff is a retry delay policy.
type Backoff struct {
	Type  BackoffType   `json:"type"`
	Delay time.Duration `json:"delay"`
}

// delay returns the wait before the retry that follows the given attempt.
func (b *Backoff) delay(attempt int) time.Duration {
	if b == nil || b.Delay <= 0 {
		return 0
	}
	if b.Type == BackoffExponential && attempt > 1 {
		return b.Delay * time.Duration(1<<(attempt-1))
	}
	return b.Delay
}

// JobOptions control how a job is scheduled.
type JobOptions struct {
	// JobID overrides the generated job id.
	JobID string `json:"jobId,omitempty"`
	// Priority orders queued jobs; higher runs first.
	Priority int `json:"priority,omitempty"`
	// Delay defers the first run.
	Delay time.Duration `json:"delay,omitempty"`
	// Attempts is the total number of runs allowed. Values below 1 mean 1.
	Attempts int      `json:"attempts,omitempty"`
	Backoff  *Backoff `json:"backoff,omitempty"`
}

// Job is one queued unit of work as seen by a Processor.
type Job struct {
	ID       string
	Data     JobData
	Options  JobOptions
	Attempt  int
	Created  time.Time
	originID string
}

// JobResponse is the outcome of a job.
type JobResponse struct {
	JobID       string       `json:"jobId"`
	ExecutionID string       `json:"executionId"`
	Success     bool         `json:"success"`
	Result      any          `json:"result,omitempty"`
	Error       *model.Error `json:"error,omitempty"`
	Attempts    int          `json:"attempts"`
	FinishedAt  time.Time    `json:"finishedAt"`
}

// Error is a queue-level failure with a classified code.
type Error struct {
	Code    model.Code
	Message string
}

func (e *Error) Error() string { return e.Message }
func (e *Error) ErrorCode() model.Code { return e.Code }

var (
	// ErrRateLimitExceeded is returned by Add while the rate limit window is full.
	ErrRateLimitExceeded = &Error{Code: model.CodeRateLimitExceeded, Message: "rate limit exceeded"}
	// ErrShuttingDown is returned by Add once shutdown has started.
	ErrShuttingDown = &Error{Code: model.CodeShuttingDown, Message: "queue is shutting down"}
	// ErrJobNotFound is returned when waiting on an unknown job.
	ErrJobNotFound = &Error{Code: model.CodeNotFound, Message: "job not found"}
	// ErrDuplicateJob is returned when a job id is already queued or running.
	ErrDuplicateJob = &Error{Code: model.CodeInvalidArgument, Message: "job id already in use"}
)

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func isPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
