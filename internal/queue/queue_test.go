package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/specialistvlad/nodegrid/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueue(t *testing.T, cfg Config, process Processor) *Queue {
	t.Helper()
	q, err := New(context.Background(), cfg, process)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = q.GracefulShutdown(ctx)
	})
	return q
}

func waitResult(t *testing.T, q *Queue, id string) *JobResponse {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := q.Wait(ctx, id)
	require.NoError(t, err)
	return resp
}

func echo(_ context.Context, job Job) (any, error) {
	return job.Data.Input["value"], nil
}

func TestAddAndWait(t *testing.T) {
	// --- Arrange ---
	release := make(chan struct{})
	q := newQueue(t, Config{Concurrency: 1}, func(ctx context.Context, job Job) (any, error) {
		<-release
		return echo(ctx, job)
	})

	// --- Act ---
	id, err := q.Add(JobData{ExecutionID: "exec-1", Input: map[string]any{"value": 42}}, JobOptions{})
	require.NoError(t, err)

	// --- Assert ---
	_, ok := q.GetJobResult(id)
	assert.False(t, ok, "result must not exist before completion")

	close(release)
	resp := waitResult(t, q, id)
	assert.True(t, resp.Success)
	assert.Equal(t, 42, resp.Result)
	assert.Equal(t, "exec-1", resp.ExecutionID)
	assert.Equal(t, 1, resp.Attempts)

	stored, ok := q.GetJobResult(id)
	require.True(t, ok)
	assert.Equal(t, resp.Result, stored.Result)
	assert.True(t, q.RemoveJobResult(id))
	_, ok = q.GetJobResult(id)
	assert.False(t, ok)

	_, err = q.Wait(context.Background(), "unknown")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestPriorityOrdering(t *testing.T) {
	var mu sync.Mutex
	var order []string
	q := newQueue(t, Config{Concurrency: 1}, func(_ context.Context, job Job) (any, error) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, job.ID)
		return nil, nil
	})

	q.Pause()
	for _, j := range []struct {
		id       string
		priority int
	}{{"low", 1}, {"high", 10}, {"mid", 5}, {"mid-2", 5}} {
		_, err := q.Add(JobData{}, JobOptions{JobID: j.id, Priority: j.priority})
		require.NoError(t, err)
	}
	q.Resume()

	for _, id := range []string{"low", "high", "mid", "mid-2"} {
		waitResult(t, q, id)
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"high", "mid", "mid-2", "low"}, order)
}

func TestDelayedJob(t *testing.T) {
	q := newQueue(t, Config{}, echo)
	start := time.Now()

	id, err := q.Add(JobData{}, JobOptions{Delay: 50 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, 1, q.Metrics().PendingJobs)

	waitResult(t, q, id)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestRetryChain(t *testing.T) {
	// --- Arrange ---
	var calls atomic.Int32
	var mu sync.Mutex
	var seen []JobData
	q := newQueue(t, Config{}, func(_ context.Context, job Job) (any, error) {
		mu.Lock()
		seen = append(seen, job.Data)
		mu.Unlock()
		if calls.Add(1) < 3 {
			return nil, errors.New("flaky")
		}
		return "ok", nil
	})
	var retries atomic.Int32
	q.Subscribe(func(ev Event) {
		if ev.Type == EventJobRetrying {
			retries.Add(1)
		}
	})

	// --- Act ---
	id, err := q.Add(JobData{ExecutionID: "exec-retry"}, JobOptions{
		Attempts: 3,
		Backoff:  &Backoff{Type: BackoffExponential, Delay: 5 * time.Millisecond},
	})
	require.NoError(t, err)
	resp := waitResult(t, q, id)

	// --- Assert ---
	assert.True(t, resp.Success)
	assert.Equal(t, "ok", resp.Result)
	assert.Equal(t, 3, resp.Attempts)
	assert.Equal(t, id, resp.JobID)
	assert.Equal(t, "exec-retry", resp.ExecutionID)
	assert.EqualValues(t, 2, retries.Load())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 3)
	assert.Empty(t, seen[0].RetryOf)
	for _, d := range seen[1:] {
		assert.Equal(t, "exec-retry", d.RetryOf)
		assert.NotEqual(t, "exec-retry", d.ExecutionID)
	}
	assert.Equal(t, 1, q.Metrics().CompletedJobs)
}

func TestRetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	q := newQueue(t, Config{}, func(context.Context, Job) (any, error) {
		calls.Add(1)
		return "partial", errors.New("still broken")
	})

	id, err := q.Add(JobData{}, JobOptions{Attempts: 2, Backoff: &Backoff{Type: BackoffFixed, Delay: time.Millisecond}})
	require.NoError(t, err)
	resp := waitResult(t, q, id)

	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, model.CodeExecution, resp.Error.Code)
	assert.Equal(t, "still broken", resp.Error.Message)
	assert.Equal(t, "partial", resp.Result)
	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, 1, q.Metrics().FailedJobs)
}

func TestPermanentErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	q := newQueue(t, Config{}, func(context.Context, Job) (any, error) {
		calls.Add(1)
		return nil, Permanent(model.NewError(model.CodeNodeExecution, "n1", "bad input"))
	})

	id, err := q.Add(JobData{}, JobOptions{Attempts: 5})
	require.NoError(t, err)
	resp := waitResult(t, q, id)

	assert.False(t, resp.Success)
	assert.Equal(t, model.CodeExecution, resp.Error.Code)
	assert.Equal(t, "n1", resp.Error.NodeID)
	assert.EqualValues(t, 1, calls.Load())
}

func TestProcessorPanicBecomesFailure(t *testing.T) {
	q := newQueue(t, Config{}, func(context.Context, Job) (any, error) {
		panic("oops")
	})

	id, err := q.Add(JobData{}, JobOptions{})
	require.NoError(t, err)
	resp := waitResult(t, q, id)

	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error.Message, "oops")
}

func TestRateLimit(t *testing.T) {
	q := newQueue(t, Config{RateLimit: &RateLimit{Max: 2, Window: 100 * time.Millisecond}}, echo)

	_, err := q.Add(JobData{}, JobOptions{})
	require.NoError(t, err)
	_, err = q.Add(JobData{}, JobOptions{})
	require.NoError(t, err)

	_, err = q.Add(JobData{}, JobOptions{})
	require.ErrorIs(t, err, ErrRateLimitExceeded)
	assert.Equal(t, model.CodeRateLimitExceeded, model.CodeOf(err))
	require.NotNil(t, q.Metrics().RateLimitRemaining)
	assert.Equal(t, 0, *q.Metrics().RateLimitRemaining)

	time.Sleep(110 * time.Millisecond)
	_, err = q.Add(JobData{}, JobOptions{})
	assert.NoError(t, err)
}

func TestRateLimitRejectsMidWindow(t *testing.T) {
	// --- Arrange ---
	q := newQueue(t, Config{RateLimit: &RateLimit{Max: 2, Window: 400 * time.Millisecond}}, echo)
	_, err := q.Add(JobData{}, JobOptions{})
	require.NoError(t, err)
	_, err = q.Add(JobData{}, JobOptions{})
	require.NoError(t, err)

	// --- Act ---
	time.Sleep(220 * time.Millisecond)
	_, midErr := q.Add(JobData{}, JobOptions{})
	midRemaining := q.Metrics().RateLimitRemaining

	time.Sleep(220 * time.Millisecond)
	_, afterErr := q.Add(JobData{}, JobOptions{})

	// --- Assert ---
	require.ErrorIs(t, midErr, ErrRateLimitExceeded)
	require.NotNil(t, midRemaining)
	assert.Equal(t, 0, *midRemaining)
	assert.NoError(t, afterErr)
	assert.Equal(t, 1, *q.Metrics().RateLimitRemaining)
}

func TestConcurrencyIsBounded(t *testing.T) {
	var running, peak atomic.Int32
	q := newQueue(t, Config{Concurrency: 2}, func(context.Context, Job) (any, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		running.Add(-1)
		return nil, nil
	})

	var ids []string
	for i := 0; i < 6; i++ {
		id, err := q.Add(JobData{}, JobOptions{})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for _, id := range ids {
		waitResult(t, q, id)
	}

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, 6, q.Metrics().CompletedJobs)
	assert.Nil(t, q.Metrics().RateLimitRemaining)
}

func TestPauseAndResume(t *testing.T) {
	var started atomic.Bool
	q := newQueue(t, Config{}, func(context.Context, Job) (any, error) {
		started.Store(true)
		return nil, nil
	})

	q.Pause()
	assert.True(t, q.Paused())
	id, err := q.Add(JobData{}, JobOptions{})
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	assert.False(t, started.Load())
	assert.Equal(t, 1, q.Metrics().PendingJobs)

	q.Resume()
	waitResult(t, q, id)
	assert.True(t, started.Load())
}

func TestClear(t *testing.T) {
	// --- Arrange ---
	running := make(chan struct{})
	q := newQueue(t, Config{Concurrency: 1}, func(ctx context.Context, job Job) (any, error) {
		close(running)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	var cleared atomic.Bool
	q.Subscribe(func(ev Event) {
		if ev.Type == EventCleared {
			cleared.Store(true)
		}
	})

	active, err := q.Add(JobData{}, JobOptions{})
	require.NoError(t, err)
	<-running
	queued, err := q.Add(JobData{}, JobOptions{})
	require.NoError(t, err)
	delayed, err := q.Add(JobData{}, JobOptions{Delay: time.Hour})
	require.NoError(t, err)

	// --- Act ---
	n := q.Clear()

	// --- Assert ---
	assert.Equal(t, 3, n)
	assert.True(t, cleared.Load())
	for _, id := range []string{active, queued, delayed} {
		resp := waitResult(t, q, id)
		assert.False(t, resp.Success)
		assert.Equal(t, model.CodeCancelled, resp.Error.Code)
	}
	m := q.Metrics()
	assert.Zero(t, m.ActiveJobs)
	assert.Zero(t, m.PendingJobs)
}

func TestCancelExecution(t *testing.T) {
	q := newQueue(t, Config{}, echo)
	q.Pause()

	keep, err := q.Add(JobData{ExecutionID: "keep"}, JobOptions{})
	require.NoError(t, err)
	drop, err := q.Add(JobData{ExecutionID: "drop"}, JobOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, q.CancelExecution("drop"))
	assert.Zero(t, q.CancelExecution("drop"))

	resp := waitResult(t, q, drop)
	assert.Equal(t, model.CodeCancelled, resp.Error.Code)

	q.Resume()
	resp = waitResult(t, q, keep)
	assert.True(t, resp.Success)
}

func TestDuplicateJobID(t *testing.T) {
	q := newQueue(t, Config{}, echo)
	q.Pause()

	_, err := q.Add(JobData{}, JobOptions{JobID: "same"})
	require.NoError(t, err)
	_, err = q.Add(JobData{}, JobOptions{JobID: "same"})
	assert.ErrorIs(t, err, ErrDuplicateJob)
}

func TestGracefulShutdown(t *testing.T) {
	// --- Arrange ---
	q, err := New(context.Background(), Config{Concurrency: 1}, func(context.Context, Job) (any, error) {
		time.Sleep(30 * time.Millisecond)
		return "done", nil
	})
	require.NoError(t, err)
	var shutdownEvents, completedEvents atomic.Int32
	q.Subscribe(func(ev Event) {
		switch ev.Type {
		case EventShutdown:
			shutdownEvents.Add(1)
		case EventJobCompleted:
			completedEvents.Add(1)
		}
	})
	for i := 0; i < 2; i++ {
		_, err := q.Add(JobData{}, JobOptions{})
		require.NoError(t, err)
	}

	// --- Act ---
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, q.GracefulShutdown(ctx))

	// --- Assert ---
	assert.EqualValues(t, 1, shutdownEvents.Load())
	assert.Eventually(t, func() bool { return completedEvents.Load() == 2 }, time.Second, time.Millisecond)
	m := q.Metrics()
	assert.Zero(t, m.ActiveJobs)
	assert.Zero(t, m.PendingJobs)
	assert.Equal(t, 2, m.CompletedJobs)

	_, err = q.Add(JobData{}, JobOptions{})
	assert.ErrorIs(t, err, ErrShuttingDown)
	assert.NoError(t, q.GracefulShutdown(ctx))
}

func TestGracefulShutdownDeadlineClearsWork(t *testing.T) {
	q, err := New(context.Background(), Config{Concurrency: 1}, func(ctx context.Context, _ Job) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, err)
	id, err := q.Add(JobData{}, JobOptions{})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return q.Metrics().ActiveJobs == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = q.GracefulShutdown(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, q.Metrics().ActiveJobs)
	_, ok := q.GetJobResult(id)
	assert.False(t, ok, "state is released after shutdown")
}

func TestWebhooks(t *testing.T) {
	q := newQueue(t, Config{WebhookTTL: 50 * time.Millisecond}, echo)

	got := make(chan any, 1)
	go func() {
		data, err := q.WaitWebhook(context.Background(), "exec-1")
		if err == nil {
			got <- data
		}
	}()

	_, ok := q.GetWebhookResponse("exec-1")
	assert.False(t, ok)

	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		_, waiting := q.hookWaiters["exec-1"]
		return waiting
	}, time.Second, time.Millisecond)
	q.AddWebhookResponse("exec-1", map[string]any{"status": 200})

	select {
	case data := <-got:
		assert.Equal(t, map[string]any{"status": 200}, data)
	case <-time.After(time.Second):
		t.Fatal("webhook waiter was not released")
	}
	data, ok := q.GetWebhookResponse("exec-1")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"status": 200}, data)

	time.Sleep(60 * time.Millisecond)
	_, ok = q.GetWebhookResponse("exec-1")
	assert.False(t, ok, "webhook responses expire")
}

func TestSweepEvictsExpiredResults(t *testing.T) {
	q := newQueue(t, Config{ResultTTL: time.Minute}, echo)
	id, err := q.Add(JobData{}, JobOptions{})
	require.NoError(t, err)
	waitResult(t, q, id)
	q.AddWebhookResponse("exec", "payload")

	q.sweep(time.Now())
	_, ok := q.GetJobResult(id)
	assert.True(t, ok)

	q.sweep(time.Now().Add(2 * time.Hour))
	_, ok = q.GetJobResult(id)
	assert.False(t, ok)
	_, ok = q.GetWebhookResponse("exec")
	assert.False(t, ok)
}

func TestBackoffDelay(t *testing.T) {
	var none *Backoff
	assert.Zero(t, none.delay(1))

	fixed := &Backoff{Type: BackoffFixed, Delay: 10 * time.Millisecond}
	assert.Equal(t, 10*time.Millisecond, fixed.delay(1))
	assert.Equal(t, 10*time.Millisecond, fixed.delay(3))

	exp := &Backoff{Type: BackoffExponential, Delay: 10 * time.Millisecond}
	assert.Equal(t, 10*time.Millisecond, exp.delay(1))
	assert.Equal(t, 20*time.Millisecond, exp.delay(2))
	assert.Equal(t, 40*time.Millisecond, exp.delay(3))
}
