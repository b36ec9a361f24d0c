// Package jobmetrics instruments the feedback worker.
package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts task runs and oracle feedback deliveries.
type Metrics struct {
	runs      *prometheus.CounterVec
	failures  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	delivered *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the collectors on registerer, or once on the default
// registerer when it is nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = build(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return build(registerer)
}

// Tracker times one task run.
type Tracker struct {
	metrics *Metrics
	task    string
	start   time.Time
}

// Track starts timing a run of task. A nil Metrics yields a no-op tracker.
func (m *Metrics) Track(task string) *Tracker {
	return &Tracker{metrics: m, task: task, start: time.Now()}
}

// End records the run and hands err back unchanged.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.task == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.task).Inc()
	}
	t.metrics.runs.WithLabelValues(t.task, status).Inc()
	t.metrics.duration.WithLabelValues(t.task).Observe(time.Since(t.start).Seconds())
	return err
}

// Delivered counts one feedback payload accepted by the oracle.
func (m *Metrics) Delivered(outcome string) {
	if m == nil {
		return
	}
	m.delivered.WithLabelValues(outcome).Inc()
}

func build(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_jobs_total",
			Help: "Worker task runs by task type and status.",
		}, []string{"job", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_jobs_failures_total",
			Help: "Worker task runs that returned an error.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "portal_job_duration_seconds",
			Help:    "Worker task run time.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_feedback_delivered_total",
			Help: "Feedback payloads accepted by the risk oracle, by outcome.",
		}, []string{"outcome"}),
	}
	registerer.MustRegister(m.runs, m.failures, m.duration, m.delivered)
	return m
}
