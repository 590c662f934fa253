// Package metrics collects Prometheus metrics for the HTTP API and the
// observer channels.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the registry and the domain collectors.
type Metrics struct {
	registry *prometheus.Registry
	buckets  []float64

	submissions *prometheus.CounterVec
	rejected    prometheus.Counter
	observers   *prometheus.GaugeVec
	messages    *prometheus.CounterVec
}

// New registers the process, Go runtime and domain collectors on a fresh
// registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		// Mainly used for HTTP request durations which will skew small unless something is wrong.
		buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_submissions_total",
			Help: "Accepted dashboard submissions by function code.",
		}, []string{"function_code"}),
		rejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "dashboard_submissions_rejected_total",
			Help: "Dashboard submissions rejected as malformed.",
		}),
		observers: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "observers_connected",
			Help: "Open observer connections by channel.",
		}, []string{"channel"}),
		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "observer_messages_sent_total",
			Help: "Messages written to observers by channel.",
		}, []string{"channel"}),
	}
}

// Registry exposes the registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Wrap instruments handler with request count and latency, labelled with
// handlerName.
func (m *Metrics) Wrap(handlerName string, handler http.Handler) http.HandlerFunc {
	reg := prometheus.WrapRegistererWith(prometheus.Labels{"handler": handlerName}, m.registry)
	labels := []string{"method", "code"}

	requestsTotal := promauto.With(reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Tracks the number of HTTP requests.",
		}, labels,
	)
	requestDuration := promauto.With(reg).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Tracks the latencies for HTTP requests.",
			Buckets: m.buckets,
		}, labels,
	)

	return promhttp.InstrumentHandlerCounter(
		requestsTotal,
		promhttp.InstrumentHandlerDuration(requestDuration, handler),
	)
}

// SubmissionAccepted counts one stored submission.
func (m *Metrics) SubmissionAccepted(functionCode string) {
	m.submissions.WithLabelValues(functionCode).Inc()
}

// SubmissionRejected counts one malformed submission.
func (m *Metrics) SubmissionRejected() {
	m.rejected.Inc()
}

func (m *Metrics) ObserverOpened(channel string) {
	m.observers.WithLabelValues(channel).Inc()
}

func (m *Metrics) ObserverClosed(channel string) {
	m.observers.WithLabelValues(channel).Dec()
}

func (m *Metrics) MessageSent(channel string) {
	m.messages.WithLabelValues(channel).Inc()
}
