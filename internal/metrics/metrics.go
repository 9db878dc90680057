// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LinksSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scholarship_links_submitted_total",
			Help: "Link submissions by result (stored, duplicate, invalid_url, error).",
		},
		[]string{"result"},
	)
	BatchLinks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scholarship_batch_links_total",
			Help: "Links processed by batch runs, labeled by terminal outcome.",
		},
		[]string{"outcome"},
	)
	CatalogUpserts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scholarship_catalog_upserts_total",
			Help: "Catalog upserts by status.",
		},
		[]string{"status"},
	)
	SweepRemoved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scholarship_sweep_removed_total",
			Help: "Expired scholarships removed by sweeps.",
		},
	)
	JobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scholarship_job_runs_total",
			Help: "Background job runs by job and result (ok, error, skipped).",
		},
		[]string{"job", "result"},
	)
	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scholarship_job_duration_seconds",
			Help:    "Duration of background job runs in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)
)

func init() {
	prometheus.MustRegister(LinksSubmitted)
	prometheus.MustRegister(BatchLinks)
	prometheus.MustRegister(CatalogUpserts)
	prometheus.MustRegister(SweepRemoved)
	prometheus.MustRegister(JobRuns)
	prometheus.MustRegister(JobDuration)
}

// ObserveJob records one job run.
func ObserveJob(job, result string, started time.Time) {
	JobRuns.WithLabelValues(job, result).Inc()
	JobDuration.WithLabelValues(job).Observe(time.Since(started).Seconds())
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
