// Package jobmetrics instruments background job runs.
package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Run statuses recorded by a Tracker.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusSkipped = "skipped"
)

// Metrics holds the job collectors of one registry.
type Metrics struct {
	runs     *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job collectors on registerer, or once on the
// default Prometheus registerer when registerer is nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer != nil {
		return register(registerer)
	}
	defaultOnce.Do(func() {
		defaultMetrics = register(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

func register(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accounts_jobs_total",
			Help: "Job runs by job name and status (success, failure, skipped).",
		}, []string{"job", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accounts_jobs_failures_total",
			Help: "Job runs that returned an error and will be retried.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "accounts_job_duration_seconds",
			Help:    "Job run duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
	}
	registerer.MustRegister(m.runs, m.failures, m.duration)
	return m
}

// Tracker times a single job run. The zero value and trackers of nil
// Metrics record nothing.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts timing a run of job.
func (m *Metrics) Track(job string) *Tracker {
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End records the run as a success or failure and returns err unchanged.
func (t *Tracker) End(err error) error {
	if err != nil {
		t.record(StatusFailure)
		return err
	}
	t.record(StatusSuccess)
	return nil
}

// Skip records a run that was dropped without doing any work.
func (t *Tracker) Skip() {
	t.record(StatusSkipped)
}

func (t *Tracker) record(status string) {
	if t == nil || t.metrics == nil || t.job == "" {
		return
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	if status == StatusFailure {
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	if status != StatusSkipped {
		t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	}
}
