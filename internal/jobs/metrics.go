// Package jobmetrics instruments background task runs.
package jobmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	statusSuccess = "success"
	statusFailure = "failure"
	statusSkipped = "skipped"
)

// Metrics holds the job collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	now         func() time.Time
}

// NewMetrics builds the collectors and registers them when registerer is non-nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_jobs_total",
			Help: "Job executions by job name and status.",
		}, []string{"job", "status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "backoffice_jobs_failures_total",
			Help: "Failed job executions.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "backoffice_job_duration_seconds",
			Help:    "Job execution time in seconds.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "backoffice_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per job.",
		}, []string{"job"}),
		now: time.Now,
	}
	if registerer != nil {
		registerer.MustRegister(m.runs, m.failures, m.duration, m.lastSuccess)
	}
	return m
}

// Tracker times a single run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts timing a run of job.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job}
	}
	return &Tracker{metrics: m, job: job, start: m.now()}
}

// End records the outcome and returns err unchanged so handlers can `return tracker.End(err)`.
func (t *Tracker) End(err error) error {
	if !t.active() {
		return err
	}
	m := t.metrics
	now := m.now()
	m.duration.WithLabelValues(t.job).Observe(now.Sub(t.start).Seconds())
	if err != nil {
		m.failures.WithLabelValues(t.job).Inc()
		m.runs.WithLabelValues(t.job, statusFailure).Inc()
		return err
	}
	m.runs.WithLabelValues(t.job, statusSuccess).Inc()
	m.lastSuccess.WithLabelValues(t.job).Set(float64(now.Unix()))
	return nil
}

// Skip records a run that did no work, such as a batch tick while another worker held the lock.
func (t *Tracker) Skip() {
	if !t.active() {
		return
	}
	t.metrics.runs.WithLabelValues(t.job, statusSkipped).Inc()
}

func (t *Tracker) active() bool {
	return t != nil && t.metrics != nil && t.job != ""
}
