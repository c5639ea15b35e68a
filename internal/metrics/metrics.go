// Package metrics holds the Prometheus collectors of the lifecycle core.
// Methods are safe on a nil *Metrics so components can run without metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	OutboxDispatched    *prometheus.CounterVec
	OutboxRetryCeiling  *prometheus.CounterVec
	OutboxPending       prometheus.Gauge
	OutboxBatchDuration prometheus.Histogram
	HandlerDuration     *prometheus.HistogramVec
	WorkflowResults     *prometheus.CounterVec
	RateLookups         *prometheus.CounterVec
	JobRuns             *prometheus.CounterVec
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer in
// production and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		OutboxDispatched: f.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_outbox_dispatched_total",
			Help: "Outbox records dispatched, by event type and result",
		}, []string{"event_type", "result"}),
		OutboxRetryCeiling: f.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_outbox_retry_ceiling_reached_total",
			Help: "Failed deliveries of records that reached the retry ceiling and need attention",
		}, []string{"event_type"}),
		OutboxPending: f.NewGauge(prometheus.GaugeOpts{
			Name: "billing_outbox_pending",
			Help: "Outbox records not yet processed",
		}),
		OutboxBatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "billing_outbox_batch_duration_seconds",
			Help:    "Time spent dispatching one outbox batch",
			Buckets: prometheus.DefBuckets,
		}),
		HandlerDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "billing_event_handler_duration_seconds",
			Help:    "Event handler latency by handler name",
			Buckets: prometheus.DefBuckets,
		}, []string{"handler"}),
		WorkflowResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_workflow_results_total",
			Help: "Workflow invocations by workflow and outcome",
		}, []string{"workflow", "outcome"}),
		RateLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_rate_lookups_total",
			Help: "Exchange rate lookups by source",
		}, []string{"source"}),
		JobRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_job_runs_total",
			Help: "Scheduled job runs by job and result",
		}, []string{"job", "result"}),
	}
}

func (m *Metrics) ObserveDispatch(eventType string, ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.OutboxDispatched.WithLabelValues(eventType, result).Inc()
}

func (m *Metrics) IncRetryCeiling(eventType string) {
	if m == nil {
		return
	}
	m.OutboxRetryCeiling.WithLabelValues(eventType).Inc()
}

func (m *Metrics) SetPending(n int64) {
	if m == nil {
		return
	}
	m.OutboxPending.Set(float64(n))
}

func (m *Metrics) ObserveBatch(d time.Duration) {
	if m == nil {
		return
	}
	m.OutboxBatchDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveHandler(name string, d time.Duration) {
	if m == nil {
		return
	}
	m.HandlerDuration.WithLabelValues(name).Observe(d.Seconds())
}

func (m *Metrics) IncWorkflow(workflow, outcome string) {
	if m == nil {
		return
	}
	m.WorkflowResults.WithLabelValues(workflow, outcome).Inc()
}

func (m *Metrics) IncRateLookup(source string) {
	if m == nil {
		return
	}
	m.RateLookups.WithLabelValues(source).Inc()
}

func (m *Metrics) IncJob(job string, ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.JobRuns.WithLabelValues(job, result).Inc()
}
