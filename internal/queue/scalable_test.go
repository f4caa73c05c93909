package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScalable(t *testing.T, cfg ScalableConfig, process Processor) *ScalableQueue {
	t.Helper()
	sq, err := NewScalable(context.Background(), cfg, process)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = sq.GracefulShutdown(ctx)
	})
	return sq
}

func TestScalableDistributesAcrossWorkers(t *testing.T) {
	// --- Arrange ---
	sq := newScalable(t, ScalableConfig{Config: Config{Concurrency: 1}, Workers: 3, NamePrefix: "w"}, func(_ context.Context, job Job) (any, error) {
		if job.Data.Input["fail"] == true {
			return nil, errors.New("boom")
		}
		return nil, nil
	})

	// --- Act ---
	for i := 0; i < 6; i++ {
		id, err := sq.Add(JobData{Input: map[string]any{"fail": i == 0}}, JobOptions{})
		require.NoError(t, err)
		waitResult(t, sq.Queue, id)
	}

	// --- Assert ---
	workers := sq.WorkerMetrics()
	require.Len(t, workers, 3)
	errorsTotal := 0
	for i, w := range workers {
		assert.Equal(t, []string{"w-1", "w-2", "w-3"}[i], w.Name)
		assert.Equal(t, 2, w.ProcessedCount, "round robin assigns evenly when workers are idle")
		assert.Equal(t, WorkerIdle, w.Status)
		assert.Empty(t, w.CurrentJob)
		errorsTotal += w.ErrorCount
	}
	assert.Equal(t, 1, errorsTotal)
	assert.Equal(t, 1, workers[0].ErrorCount)
}

func TestScalableDefaultsWorkersToConcurrency(t *testing.T) {
	sq := newScalable(t, ScalableConfig{Config: Config{Concurrency: 4}}, echo)

	workers := sq.WorkerMetrics()
	require.Len(t, workers, 4)
	assert.Equal(t, "worker-1", workers[0].Name)
	assert.Equal(t, "worker-4", workers[3].Name)
}

func TestScalableMarksBusyWorkers(t *testing.T) {
	release := make(chan struct{})
	sq := newScalable(t, ScalableConfig{Config: Config{Concurrency: 2}, Workers: 2}, func(ctx context.Context, _ Job) (any, error) {
		<-release
		return nil, nil
	})

	id, err := sq.Add(JobData{}, JobOptions{JobID: "busy-job"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return sq.WorkerMetrics()[0].Status == WorkerBusy
	}, time.Second, time.Millisecond)
	assert.Equal(t, "busy-job", sq.WorkerMetrics()[0].CurrentJob)
	assert.Equal(t, WorkerIdle, sq.WorkerMetrics()[1].Status)

	close(release)
	waitResult(t, sq.Queue, id)
	assert.Equal(t, WorkerIdle, sq.WorkerMetrics()[0].Status)
}

func TestCollector(t *testing.T) {
	// --- Arrange ---
	sq := newScalable(t, ScalableConfig{
		Config:  Config{Concurrency: 1, RateLimit: &RateLimit{Max: 10, Window: time.Minute}},
		Workers: 2,
	}, echo)
	id, err := sq.Add(JobData{}, JobOptions{})
	require.NoError(t, err)
	waitResult(t, sq.Queue, id)

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(NewCollector(sq)))

	// --- Act ---
	families, err := reg.Gather()
	require.NoError(t, err)

	// --- Assert ---
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"nodegrid_queue_active_jobs",
		"nodegrid_queue_completed_jobs_total",
		"nodegrid_queue_rate_limit_remaining",
		"nodegrid_worker_processed_total",
	} {
		assert.True(t, names[want], "missing metric %s", want)
	}

	for _, f := range families {
		if f.GetName() == "nodegrid_queue_completed_jobs_total" {
			require.Len(t, f.GetMetric(), 1)
			assert.Equal(t, 1.0, f.GetMetric()[0].GetCounter().GetValue())
		}
		if f.GetName() == "nodegrid_worker_processed_total" {
			assert.Len(t, f.GetMetric(), 2)
		}
	}
}

func TestCollectorWithoutWorkers(t *testing.T) {
	q := newQueue(t, Config{}, echo)
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(NewCollector(q)))

	families, err := reg.Gather()
	require.NoError(t, err)

	assert.Len(t, families, 5)
	for _, f := range families {
		assert.NotContains(t, f.GetName(), "worker")
	}
}
