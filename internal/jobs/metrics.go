// Package jobmetrics instruments the background ledger jobs.
package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Anomaly kinds reported by the integrity jobs.
const (
	AnomalyUnbalancedEntry = "unbalanced_entry"
	AnomalyStockDrift      = "stock_drift"
)

// Metrics holds the job collectors. A nil *Metrics records nothing.
type Metrics struct {
	runs        *prometheus.CounterVec
	skipped     *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	anomalies   *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the collectors on registerer. A nil registerer means
// the process-wide default, registered once.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer != nil {
		return register(registerer)
	}
	defaultOnce.Do(func() { defaultMetrics = register(prometheus.DefaultRegisterer) })
	return defaultMetrics
}

func register(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgercore_jobs_total",
			Help: "Job runs by job and status.",
		}, []string{"job", "status"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgercore_jobs_skipped_total",
			Help: "Job runs skipped because another worker held the lock.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledgercore_job_duration_seconds",
			Help:    "Job run duration.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ledgercore_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run.",
		}, []string{"job"}),
		anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledgercore_ledger_anomalies_total",
			Help: "Integrity anomalies found by background jobs, by kind.",
		}, []string{"kind"}),
	}
	registerer.MustRegister(m.runs, m.skipped, m.duration, m.lastSuccess, m.anomalies)
	return m
}

// Run times one execution of a job.
type Run struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts timing job.
func (m *Metrics) Track(job string) *Run {
	return &Run{metrics: m, job: job, start: time.Now()}
}

// End records the outcome and hands err back so callers can
// `return run.End(err)`.
func (r *Run) End(err error) error {
	if r == nil || r.metrics == nil {
		return err
	}
	m := r.metrics
	m.duration.WithLabelValues(r.job).Observe(time.Since(r.start).Seconds())
	if err != nil {
		m.runs.WithLabelValues(r.job, "failure").Inc()
		return err
	}
	m.runs.WithLabelValues(r.job, "success").Inc()
	m.lastSuccess.WithLabelValues(r.job).SetToCurrentTime()
	return nil
}

// Skipped counts a run that found another worker holding the job lock.
func (m *Metrics) Skipped(job string) {
	if m != nil {
		m.skipped.WithLabelValues(job).Inc()
	}
}

// AddAnomalies adds count findings of kind. Non-positive counts are ignored.
func (m *Metrics) AddAnomalies(kind string, count int) {
	if m != nil && count > 0 {
		m.anomalies.WithLabelValues(kind).Add(float64(count))
	}
}
