package queue

import "time"

// Metrics is a point-in-time view of the queue.
type Metrics struct {
	ActiveJobs    int `json:"activeJobs"`
	PendingJobs   int `json:"pendingJobs"`
	CompletedJobs int `json:"completedJobs"`
	FailedJobs    int `json:"failedJobs"`
	// QueueSize counts every job not yet finished: pending plus active.
	QueueSize int `json:"queueSize"`
	// RateLimitRemaining is set only when a rate limit is configured.
	RateLimitRemaining *int `json:"rateLimitRemaining,omitempty"`
}

// Metrics returns the current counters.
func (q *Queue) Metrics() Metrics {
	q.mu.Lock()
	defer q.mu.Unlock()

	m := Metrics{
		ActiveJobs:    len(q.active),
		PendingJobs:   q.pending.Len() + len(q.delayed),
		CompletedJobs: q.completed,
		FailedJobs:    q.failed,
	}
	m.QueueSize = m.PendingJobs + m.ActiveJobs
	if q.limiter != nil {
		remaining := q.limiter.remaining(time.Now())
		m.RateLimitRemaining = &remaining
	}
	return m
}
