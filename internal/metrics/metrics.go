package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the service's collectors and the registry they live in.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	computeDuration  prometheus.Histogram
	regionsRequested prometheus.Histogram
	datasetRecords   prometheus.Gauge
	reportsPublished prometheus.Counter
	reportsDropped   prometheus.Counter
}

// New registers all collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "regionpulse_requests_total",
				Help: "Total number of aggregation requests by response code",
			},
			[]string{"code"},
		),
		computeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "regionpulse_compute_duration_seconds",
				Help:    "Time spent computing region statistics per request",
				Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
			},
		),
		regionsRequested: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "regionpulse_regions_per_request",
				Help:    "Number of regions asked for in one request",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
			},
		),
		datasetRecords: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "regionpulse_dataset_records",
				Help: "Number of telemetry records loaded at start-up",
			},
		),
		reportsPublished: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "regionpulse_reports_published_total",
				Help: "Reports delivered to the configured sink",
			},
		),
		reportsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "regionpulse_reports_dropped_total",
				Help: "Reports dropped because the queue was full or delivery gave up",
			},
		),
	}

	m.registry.MustRegister(
		m.requestsTotal,
		m.computeDuration,
		m.regionsRequested,
		m.datasetRecords,
		m.reportsPublished,
		m.reportsDropped,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveRequest(code int) {
	m.requestsTotal.WithLabelValues(strconv.Itoa(code)).Inc()
}

func (m *Metrics) ObserveCompute(regions int, took time.Duration) {
	m.regionsRequested.Observe(float64(regions))
	m.computeDuration.Observe(took.Seconds())
}

func (m *Metrics) SetDatasetRecords(n int) {
	m.datasetRecords.Set(float64(n))
}

// ReportsPublished and ReportsDropped satisfy publisher.Observer.
func (m *Metrics) ReportsPublished(n int) {
	m.reportsPublished.Add(float64(n))
}

func (m *Metrics) ReportsDropped(n int) {
	m.reportsDropped.Add(float64(n))
}
