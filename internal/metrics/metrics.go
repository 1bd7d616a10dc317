// Package metrics holds the Prometheus collectors of the API service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bbsfolio/api/internal/contentsync"
)

const namespace = "bbsfolio"

type Metrics struct {
	registry *prometheus.Registry

	ContentLoads *prometheus.CounterVec
	LoadErrors   prometheus.Counter
	Requests     *prometheus.CounterVec
	Duration     *prometheus.HistogramVec
	Reorders     *prometheus.CounterVec
	Uploads      *prometheus.CounterVec
}

// New registers every collector on a fresh registry, plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ContentLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "content_loads_total",
			Help:      "Section loads by the source that served them.",
		}, []string{"source"}),
		LoadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "content_load_errors_total",
			Help:      "Section loads that recovered from a remote or cache error.",
		}),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		Reorders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reorders_total",
			Help:      "Reorder requests by collection and whether a batch was written.",
		}, []string{"collection", "written"}),
		Uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_batches_total",
			Help:      "Upload batches by media kind and outcome.",
		}, []string{"kind", "outcome"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ContentLoads, m.LoadErrors, m.Requests, m.Duration, m.Reorders, m.Uploads,
	)
	return m
}

// ObserveLoad is a contentsync observer.
func (m *Metrics) ObserveLoad(result contentsync.Result) {
	m.ContentLoads.WithLabelValues(string(result.Source)).Inc()
	if result.Err != nil {
		m.LoadErrors.Inc()
	}
}

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.Requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.Duration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveReorder(collection string, written bool) {
	m.Reorders.WithLabelValues(collection, strconv.FormatBool(written)).Inc()
}

func (m *Metrics) ObserveUpload(kind string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Uploads.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
