package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docshrink",
			Name:      "jobs_total",
			Help:      "Finished jobs by media kind and terminal status",
		},
		[]string{"kind", "status"},
	)

	bytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docshrink",
			Name:      "bytes_total",
			Help:      "Bytes read, written and saved by media kind",
		},
		[]string{"kind", "direction"},
	)

	pageRoutes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docshrink",
			Name:      "page_routes_total",
			Help:      "Pages emitted per route (vector, mrc, raster, blank, fallback)",
		},
		[]string{"route"},
	)

	retriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "docshrink",
			Name:      "retries_total",
			Help:      "Escalated retries by media kind",
		},
		[]string{"kind"},
	)

	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "docshrink",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	activeJobs = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "docshrink",
			Name:      "active_jobs",
			Help:      "Jobs currently running by media kind",
		},
		[]string{"kind"},
	)

	once sync.Once
)

// Init registers collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(jobsTotal, bytesTotal, pageRoutes, retriesTotal, stageDuration, activeJobs)
	})
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

// ObserveJob records a finished job.
func ObserveJob(kind, status string, in, out int64) {
	jobsTotal.WithLabelValues(kind, status).Inc()
	bytesTotal.WithLabelValues(kind, "in").Add(float64(in))
	if status == "success" {
		bytesTotal.WithLabelValues(kind, "out").Add(float64(out))
		if in > out {
			bytesTotal.WithLabelValues(kind, "saved").Add(float64(in - out))
		}
	}
}

func IncRoute(route string) { pageRoutes.WithLabelValues(route).Inc() }
func IncRetry(kind string)  { retriesTotal.WithLabelValues(kind).Inc() }

func ObserveStage(stage string, d time.Duration) {
	stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// TrackActive bumps the active gauge and returns the matching decrement.
func TrackActive(kind string) func() {
	g := activeJobs.WithLabelValues(kind)
	g.Inc()
	return g.Dec
}

// StageTimer starts timing stage; calling the result records the duration.
func StageTimer(stage string) func() {
	start := time.Now()
	return func() { ObserveStage(stage, time.Since(start)) }
}
