package queue

import (
	"context"
	"fmt"
	"sync"
)

// WorkerStatus is the bookkeeping state of a named worker.
type WorkerStatus string

const (
	WorkerIdle WorkerStatus = "idle"
	WorkerBusy WorkerStatus = "busy"
)

// WorkerMetrics describes one named worker.
type WorkerMetrics struct {
	Name           string       `json:"name"`
	Status         WorkerStatus `json:"status"`
	ProcessedCount int          `json:"processedCount"`
	ErrorCount     int          `json:"errorCount"`
	CurrentJob     string       `json:"currentJob,omitempty"`
	running        int
}

// ScalableConfig configures a ScalableQueue.
type ScalableConfig struct {
	Config
	// Workers is the size of the named worker set. Zero means one worker
	// per concurrency slot.
	Workers int
	// NamePrefix names the workers "<prefix>-1", "<prefix>-2", ...
	NamePrefix string
}

// ScalableQueue is a Queue with a fixed set of named workers used for load
// distribution bookkeeping. Jobs are assigned round robin, preferring idle
// workers.
type ScalableQueue struct {
	*Queue

	mu      sync.Mutex
	workers []*WorkerMetrics
	next    int
}

// NewScalable creates a ScalableQueue.
func NewScalable(ctx context.Context, cfg ScalableConfig, process Processor) (*ScalableQueue, error) {
	if process == nil {
		return nil, fmt.Errorf("queue: processor is required")
	}
	cfg.Config.applyDefaults()
	if cfg.Workers <= 0 {
		cfg.Workers = cfg.Concurrency
	}
	if cfg.NamePrefix == "" {
		cfg.NamePrefix = "worker"
	}

	sq := &ScalableQueue{workers: make([]*WorkerMetrics, cfg.Workers)}
	for i := range sq.workers {
		sq.workers[i] = &WorkerMetrics{
			Name:   fmt.Sprintf("%s-%d", cfg.NamePrefix, i+1),
			Status: WorkerIdle,
		}
	}

	q, err := New(ctx, cfg.Config, func(ctx context.Context, job Job) (any, error) {
		w := sq.acquire(job.ID)
		out, err := process(ctx, job)
		sq.release(w, err)
		return out, err
	})
	if err != nil {
		return nil, err
	}
	sq.Queue = q
	return sq, nil
}

// acquire picks the next idle worker in round-robin order, or the next worker
// at all when every worker is busy.
func (sq *ScalableQueue) acquire(jobID string) *WorkerMetrics {
	sq.mu.Lock()
	defer sq.mu.Unlock()

	n := len(sq.workers)
	idx := sq.next
	for i := 0; i < n; i++ {
		if sq.workers[(sq.next+i)%n].running == 0 {
			idx = (sq.next + i) % n
			break
		}
	}
	sq.next = (idx + 1) % n

	chosen := sq.workers[idx]
	chosen.running++
	chosen.Status = WorkerBusy
	chosen.CurrentJob = jobID
	return chosen
}

func (sq *ScalableQueue) release(w *WorkerMetrics, err error) {
	sq.mu.Lock()
	defer sq.mu.Unlock()
	w.running--
	w.ProcessedCount++
	if err != nil {
		w.ErrorCount++
	}
	if w.running == 0 {
		w.Status = WorkerIdle
		w.CurrentJob = ""
	}
}

// WorkerMetrics returns a snapshot of every worker in name order.
func (sq *ScalableQueue) WorkerMetrics() []WorkerMetrics {
	sq.mu.Lock()
	defer sq.mu.Unlock()
	out := make([]WorkerMetrics, len(sq.workers))
	for i, w := range sq.workers {
		out[i] = *w
		out[i].running = 0
	}
	return out
}
