// Package metrics exposes Prometheus collectors for downloads, store
// operations and HTTP traffic.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tubevault"

// Metrics holds every collector the service records into.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	downloadsTotal   *prometheus.CounterVec
	downloadDuration *prometheus.HistogramVec
	inProgress       prometheus.Gauge
	artifactBytes    prometheus.Histogram
	storeErrors      *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
// It panics if a collector is already registered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		downloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "downloads_total",
				Help:      "Download-and-upload orchestrations by outcome.",
			},
			[]string{"outcome"},
		),
		downloadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "download_duration_seconds",
				Help:      "Wall time of download-and-upload orchestrations.",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
			[]string{"outcome"},
		),
		inProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "downloads_in_progress",
			Help:      "Orchestrations currently running.",
		}),
		artifactBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "artifact_size_bytes",
			Help:      "Size of uploaded artifacts.",
			Buckets:   prometheus.ExponentialBuckets(1<<20, 4, 8),
		}),
		storeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_errors_total",
				Help:      "Object store failures by operation.",
			},
			[]string{"operation"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method, route and status.",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency by route.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
	}

	reg.MustRegister(
		m.downloadsTotal,
		m.downloadDuration,
		m.inProgress,
		m.artifactBytes,
		m.storeErrors,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// DownloadStarted marks an orchestration as running and returns a func that
// records its outcome and duration.
func (m *Metrics) DownloadStarted() func(outcome string) {
	if m == nil {
		return func(string) {}
	}
	start := time.Now()
	m.inProgress.Inc()
	return func(outcome string) {
		m.inProgress.Dec()
		m.downloadsTotal.WithLabelValues(outcome).Inc()
		m.downloadDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}
}

// ArtifactUploaded records the size of an uploaded artifact.
func (m *Metrics) ArtifactUploaded(size int64) {
	if m == nil {
		return
	}
	m.artifactBytes.Observe(float64(size))
}

// StoreError counts a failed store operation.
func (m *Metrics) StoreError(operation string) {
	if m == nil {
		return
	}
	m.storeErrors.WithLabelValues(operation).Inc()
}

// HTTPRequest records one served request.
func (m *Metrics) HTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, statusClass(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
