// Package metrics defines the Prometheus collectors exported by the service binaries.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CronJobMetrics records outcomes for scheduled jobs.
type CronJobMetrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
}

// NewCronJobMetrics registers the cron job metrics on reg. A nil reg yields a no-op recorder.
func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cron_job_runs_total",
		Help: "Cron job executions by outcome.",
	}, []string{"job", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cron_job_duration_seconds",
		Help:    "Duration of cron jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	lastSuccess := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "cron_job_last_success_timestamp_seconds",
		Help: "Unix time of the last successful run.",
	}, []string{"job"})
	reg.MustRegister(runs, duration, lastSuccess)
	return &CronJobMetrics{runs: runs, duration: duration, lastSuccess: lastSuccess}
}

// Observe records one run. skipped marks a run that did not acquire the leader lock.
func (c *CronJobMetrics) Observe(job string, elapsed time.Duration, err error, skipped bool) {
	if c == nil || c.runs == nil {
		return
	}
	job = normalizeLabel(job)
	switch {
	case skipped:
		c.runs.WithLabelValues(job, "skipped").Inc()
		return
	case err != nil:
		c.runs.WithLabelValues(job, "failure").Inc()
	default:
		c.runs.WithLabelValues(job, "success").Inc()
		c.lastSuccess.WithLabelValues(job).Set(float64(time.Now().Unix()))
	}
	c.duration.WithLabelValues(job).Observe(elapsed.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
