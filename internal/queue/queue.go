package queue

import (
	"container/heap"
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/specialistvlad/nodegrid/internal/ctxlog"
	"github.com/specialistvlad/nodegrid/internal/model"
)

const (
	DefaultConcurrency   = 5
	DefaultResultTTL     = time.Hour
	DefaultWebhookTTL    = 5 * time.Minute
	DefaultSweepInterval = time.Minute
)

// RateLimit admits at most Max jobs per Window.
type RateLimit struct {
	Max    int           `json:"max"`
	Window time.Duration `json:"window"`
}

// Config configures a Queue. Zero values select the defaults.
type Config struct {
	Concurrency   int
	RateLimit     *RateLimit
	ResultTTL     time.Duration
	WebhookTTL    time.Duration
	SweepInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.ResultTTL <= 0 {
		c.ResultTTL = DefaultResultTTL
	}
	if c.WebhookTTL <= 0 {
		c.WebhookTTL = DefaultWebhookTTL
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
}

// Processor runs one job. Returning an error wrapped with Permanent skips
// the remaining attempts.
type Processor func(ctx context.Context, job Job) (any, error)

type activeJob struct {
	job    *Job
	cancel context.CancelFunc
}

// Queue is a concurrency-bounded job runner. Its methods are safe for
// concurrent use.
type Queue struct {
	cfg     Config
	process Processor
	pool    *ants.Pool
	limiter *slidingWindow
	events  *emitter

	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup

	mu           sync.Mutex
	seq          uint64
	pending      jobHeap
	delayed      map[string]*delayedJob
	active       map[string]*activeJob
	results      map[string]*storedResult
	waiters      map[string]chan struct{}
	webhooks     map[string]*storedWebhook
	hookWaiters  map[string]chan struct{}
	completed    int
	failed       int
	paused       bool
	shuttingDown bool
	idle         chan struct{}
	shutdownOnce sync.Once
}

type delayedJob struct {
	job   *Job
	timer *time.Timer
}

// New creates a queue and starts its dispatcher and TTL sweeper. Jobs run
// with contexts derived from ctx, which also carries the queue's logger.
func New(ctx context.Context, cfg Config, process Processor) (*Queue, error) {
	if process == nil {
		return nil, fmt.Errorf("queue: processor is required")
	}
	cfg.applyDefaults()

	logger := ctxlog.FromContext(ctx)
	pool, err := ants.NewPool(cfg.Concurrency, ants.WithPanicHandler(func(p any) {
		logger.Error("Queue worker panicked.", "panic", p)
	}))
	if err != nil {
		return nil, fmt.Errorf("create queue pool: %w", err)
	}

	base, cancel := context.WithCancel(context.WithoutCancel(ctx))
	q := &Queue{
		cfg:         cfg,
		process:     process,
		pool:        pool,
		events:      newEmitter(),
		ctx:         base,
		cancel:      cancel,
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
		delayed:     make(map[string]*delayedJob),
		active:      make(map[string]*activeJob),
		results:     make(map[string]*storedResult),
		waiters:     make(map[string]chan struct{}),
		webhooks:    make(map[string]*storedWebhook),
		hookWaiters: make(map[string]chan struct{}),
	}
	q.limiter = newSlidingWindow(cfg.RateLimit)

	q.wg.Add(2)
	go q.dispatchLoop()
	go q.sweepLoop()

	logger.Debug("Queue started.", "concurrency", cfg.Concurrency, "rateLimited", q.limiter != nil)
	return q, nil
}

// Add enqueues a job and returns its id.
func (q *Queue) Add(data JobData, opts JobOptions) (string, error) {
	q.mu.Lock()
	if q.shuttingDown {
		q.mu.Unlock()
		return "", ErrShuttingDown
	}
	now := time.Now()
	if q.limiter != nil && q.limiter.full(now) {
		q.mu.Unlock()
		q.limiter.rejections.Do(func() {
			ctxlog.FromContext(q.ctx).Warn("Rate limit reached, rejecting jobs.", "max", q.cfg.RateLimit.Max, "window", q.cfg.RateLimit.Window)
		})
		return "", ErrRateLimitExceeded
	}

	id := opts.JobID
	if id == "" {
		id = uuid.NewString()
	}
	if q.inFlightLocked(id) {
		q.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrDuplicateJob, id)
	}
	if data.ExecutionID == "" {
		data.ExecutionID = id
	}
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	if q.limiter != nil {
		q.limiter.admit(now)
	}

	job := &Job{
		ID:       id,
		Data:     data,
		Options:  opts,
		Attempt:  1,
		Created:  now,
		originID: id,
	}
	delete(q.results, id)
	q.waiters[id] = make(chan struct{})
	q.scheduleLocked(job, opts.Delay)
	q.mu.Unlock()

	ctxlog.FromContext(q.ctx).Debug("Job added.", "jobID", id, "executionID", data.ExecutionID, "priority", opts.Priority, "delay", opts.Delay)
	q.events.emit(jobEvent(EventJobAdded, job))
	q.signal()
	return id, nil
}

// Subscribe registers fn for every queue event.
func (q *Queue) Subscribe(fn func(Event)) (unsubscribe func()) {
	return q.events.subscribe(fn)
}

func (q *Queue) inFlightLocked(id string) bool {
	if _, ok := q.active[id]; ok {
		return true
	}
	if _, ok := q.delayed[id]; ok {
		return true
	}
	for _, e := range q.pending {
		if e.job.ID == id {
			return true
		}
	}
	_, waiting := q.waiters[id]
	return waiting
}

// scheduleLocked pushes the job onto the heap, or arms a timer that will.
func (q *Queue) scheduleLocked(job *Job, delay time.Duration) {
	if delay <= 0 {
		q.seq++
		heap.Push(&q.pending, &entry{job: job, seq: q.seq})
		return
	}
	q.delayed[job.ID] = &delayedJob{
		job: job,
		timer: time.AfterFunc(delay, func() {
			q.mu.Lock()
			if _, ok := q.delayed[job.ID]; !ok {
				q.mu.Unlock()
				return
			}
			delete(q.delayed, job.ID)
			q.seq++
			heap.Push(&q.pending, &entry{job: job, seq: q.seq})
			q.mu.Unlock()
			q.signal()
		}),
	}
}

// signal wakes the dispatcher without blocking.
func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) dispatchLoop() {
	defer q.wg.Done()
	for {
		select {
		case <-q.done:
			return
		case <-q.wake:
			q.dispatch()
		}
	}
}

// dispatch starts queued jobs while there are free slots.
func (q *Queue) dispatch() {
	for {
		q.mu.Lock()
		if q.paused || len(q.active) >= q.cfg.Concurrency || q.pending.Len() == 0 {
			q.mu.Unlock()
			return
		}
		e := heap.Pop(&q.pending).(*entry)
		job := e.job
		jobCtx, cancel := context.WithCancel(q.ctx)
		q.active[job.ID] = &activeJob{job: job, cancel: cancel}
		q.mu.Unlock()

		q.events.emit(jobEvent(EventJobStarted, job))
		if err := q.pool.Submit(func() { q.run(jobCtx, job) }); err != nil {
			q.complete(job, nil, Permanent(fmt.Errorf("submit job: %w", err)))
			cancel()
		}
	}
}

// run executes one job on a pool worker.
func (q *Queue) run(ctx context.Context, job *Job) {
	logger := ctxlog.FromContext(ctx).With("jobID", job.ID, "executionID", job.Data.ExecutionID, "attempt", job.Attempt)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Job started.")

	out, err := q.safeProcess(ctx, job)
	q.complete(job, out, err)
}

func (q *Queue) safeProcess(ctx context.Context, job *Job) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			ctxlog.FromContext(ctx).Error("Job processor panicked.", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("job processor panicked: %v", r)
		}
	}()
	return q.process(ctx, *job)
}

// complete records the outcome of a run, scheduling a retry when attempts
// remain. Outcomes of jobs removed by Clear or CancelExecution are dropped.
func (q *Queue) complete(job *Job, out any, err error) {
	logger := ctxlog.FromContext(q.ctx).With("jobID", job.ID, "executionID", job.Data.ExecutionID)

	q.mu.Lock()
	aj, ok := q.active[job.ID]
	if !ok {
		q.mu.Unlock()
		logger.Debug("Discarding outcome of removed job.")
		q.signal()
		return
	}
	delete(q.active, job.ID)
	aj.cancel()

	var ev Event
	switch {
	case err == nil:
		q.completed++
		q.storeLocked(job, &JobResponse{Success: true, Result: out})
		ev = jobEvent(EventJobCompleted, job)
	case !isPermanent(err) && job.Attempt < job.Options.Attempts && !q.shuttingDownHardLocked():
		retry := q.retryLocked(job)
		ev = jobEvent(EventJobRetrying, retry)
		ev.Error = model.AsError("", err)
		logger.Info("Job failed, retrying.", "attempt", job.Attempt, "nextJobID", retry.ID, "error", err)
	default:
		q.failed++
		jobErr := model.Wrap(model.CodeExecution, "", err)
		jobErr.Code = model.CodeExecution
		q.storeLocked(job, &JobResponse{Success: false, Result: out, Error: jobErr})
		ev = jobEvent(EventJobFailed, job)
		ev.Error = jobErr
		logger.Warn("Job failed.", "attempts", job.Attempt, "error", err)
	}
	q.checkIdleLocked()
	q.mu.Unlock()

	q.events.emit(ev)
	q.signal()
}

// retryLocked schedules a fresh job for the next attempt.
func (q *Queue) retryLocked(job *Job) *Job {
	data := job.Data
	data.RetryOf = job.Data.OriginalExecutionID()
	data.ExecutionID = uuid.NewString()

	next := &Job{
		ID:       uuid.NewString(),
		Data:     data,
		Options:  job.Options,
		Attempt:  job.Attempt + 1,
		Created:  time.Now(),
		originID: job.originID,
	}
	q.scheduleLocked(next, job.Options.Backoff.delay(job.Attempt))
	return next
}

// shuttingDownHardLocked reports whether the queue is being torn down and
// retries must not be scheduled.
func (q *Queue) shuttingDownHardLocked() bool {
	return q.ctx.Err() != nil
}
