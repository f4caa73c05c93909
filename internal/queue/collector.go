package queue

import "github.com/prometheus/client_golang/prometheus"

const namespace = "nodegrid"

var (
	activeDesc    = prometheus.NewDesc(namespace+"_queue_active_jobs", "Jobs currently running.", nil, nil)
	pendingDesc   = prometheus.NewDesc(namespace+"_queue_pending_jobs", "Jobs waiting to run, including delayed ones.", nil, nil)
	completedDesc = prometheus.NewDesc(namespace+"_queue_completed_jobs_total", "Jobs that finished successfully.", nil, nil)
	failedDesc    = prometheus.NewDesc(namespace+"_queue_failed_jobs_total", "Jobs that failed after exhausting their attempts.", nil, nil)
	sizeDesc      = prometheus.NewDesc(namespace+"_queue_size", "Jobs not yet finished.", nil, nil)
	rateDesc      = prometheus.NewDesc(namespace+"_queue_rate_limit_remaining", "Jobs that may still be added in the current rate window.", nil, nil)
	workerBusy    = prometheus.NewDesc(namespace+"_worker_busy", "Whether the worker is processing a job.", []string{"worker"}, nil)
	workerDone    = prometheus.NewDesc(namespace+"_worker_processed_total", "Jobs processed by the worker.", []string{"worker"}, nil)
	workerErrors  = prometheus.NewDesc(namespace+"_worker_errors_total", "Jobs that failed on the worker.", []string{"worker"}, nil)
)

// MetricsSource is implemented by Queue and ScalableQueue.
type MetricsSource interface {
	Metrics() Metrics
}

type workerSource interface {
	WorkerMetrics() []WorkerMetrics
}

// Collector exposes queue metrics to Prometheus. Per-worker series are added
// when the source is a ScalableQueue.
type Collector struct {
	src MetricsSource
}

// NewCollector creates a collector reading from src on every scrape.
func NewCollector(src MetricsSource) *Collector {
	return &Collector{src: src}
}

var _ prometheus.Collector = (*Collector)(nil)

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- activeDesc
	ch <- pendingDesc
	ch <- completedDesc
	ch <- failedDesc
	ch <- sizeDesc
	ch <- rateDesc
	if _, ok := c.src.(workerSource); ok {
		ch <- workerBusy
		ch <- workerDone
		ch <- workerErrors
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	m := c.src.Metrics()
	ch <- prometheus.MustNewConstMetric(activeDesc, prometheus.GaugeValue, float64(m.ActiveJobs))
	ch <- prometheus.MustNewConstMetric(pendingDesc, prometheus.GaugeValue, float64(m.PendingJobs))
	ch <- prometheus.MustNewConstMetric(completedDesc, prometheus.CounterValue, float64(m.CompletedJobs))
	ch <- prometheus.MustNewConstMetric(failedDesc, prometheus.CounterValue, float64(m.FailedJobs))
	ch <- prometheus.MustNewConstMetric(sizeDesc, prometheus.GaugeValue, float64(m.QueueSize))
	if m.RateLimitRemaining != nil {
		ch <- prometheus.MustNewConstMetric(rateDesc, prometheus.GaugeValue, float64(*m.RateLimitRemaining))
	}

	ws, ok := c.src.(workerSource)
	if !ok {
		return
	}
	for _, w := range ws.WorkerMetrics() {
		busy := 0.0
		if w.Status == WorkerBusy {
			busy = 1
		}
		ch <- prometheus.MustNewConstMetric(workerBusy, prometheus.GaugeValue, busy, w.Name)
		ch <- prometheus.MustNewConstMetric(workerDone, prometheus.CounterValue, float64(w.ProcessedCount), w.Name)
		ch <- prometheus.MustNewConstMetric(workerErrors, prometheus.CounterValue, float64(w.ErrorCount), w.Name)
	}
}
