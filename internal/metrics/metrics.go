package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Metrics holds the engine and HTTP collectors on a private registry so
// several databases can live in one process.
type Metrics struct {
	Registry *prometheus.Registry

	featuresRead      *prometheus.CounterVec
	commitsTotal      *prometheus.CounterVec
	commitDuration    *prometheus.HistogramVec
	recoveriesTotal   *prometheus.CounterVec
	indexBuildsTotal  *prometheus.CounterVec
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		featuresRead: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geovec_features_read_total",
				Help: "Features returned by readers",
			},
			[]string{"dataset"},
		),
		commitsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geovec_commits_total",
				Help: "Committed transactions",
			},
			[]string{"dataset", "status"},
		),
		commitDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "geovec_commit_duration_seconds",
				Help:    "Time from writer open to commit",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"dataset"},
		),
		recoveriesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geovec_recoveries_total",
				Help: "Recovery runs that found something to repair",
			},
			[]string{"dataset"},
		),
		indexBuildsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geovec_index_builds_total",
				Help: "Spatial index rebuilds",
			},
			[]string{"dataset"},
		),
		httpRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geovec_http_requests_total",
				Help: "HTTP requests served",
			},
			[]string{"method", "route", "status_code"},
		),
		httpDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "geovec_http_request_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// The Record methods are safe on a nil *Metrics.

func (m *Metrics) RecordRead(dataset string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.featuresRead.WithLabelValues(dataset).Add(float64(n))
}

func (m *Metrics) RecordCommit(dataset string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	status := statusSuccess
	if !success {
		status = statusError
	}
	m.commitsTotal.WithLabelValues(dataset, status).Inc()
	if success {
		m.commitDuration.WithLabelValues(dataset).Observe(d.Seconds())
	}
}

func (m *Metrics) RecordRecovery(dataset string) {
	if m == nil {
		return
	}
	m.recoveriesTotal.WithLabelValues(dataset).Inc()
}

func (m *Metrics) RecordIndexBuild(dataset string) {
	if m == nil {
		return
	}
	m.indexBuildsTotal.WithLabelValues(dataset).Inc()
}

func (m *Metrics) RecordHTTPRequest(method, route string, statusCode int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler serves the registry in the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// Instrument wraps an HTTP handler, labelling it with route.
func (m *Metrics) Instrument(method, route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		h(rw, r)
		m.RecordHTTPRequest(method, route, rw.statusCode, time.Since(start))
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
