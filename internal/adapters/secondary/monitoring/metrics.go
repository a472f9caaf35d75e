package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "deckforge"

// Metrics holds the Prometheus collectors of one server instance. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry
	started  time.Time

	httpRequests        *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
	imageSearchRequests *prometheus.CounterVec
	imageSearchDuration *prometheus.HistogramVec
	llmRequests         *prometheus.CounterVec
	llmDuration         *prometheus.HistogramVec
	rateLimitRejections *prometheus.CounterVec
	activeStreams       prometheus.Gauge
}

// NewMetrics creates a new metrics set on its own registry, including Go runtime
// and process collectors
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		started:  time.Now(),

		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method", "path"},
		),
		imageSearchRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "image_search_requests_total",
				Help:      "Total number of image provider searches",
			},
			[]string{"provider", "status"},
		),
		imageSearchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "image_search_duration_seconds",
				Help:      "Image provider search duration in seconds",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"provider"},
		),
		llmRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_requests_total",
				Help:      "Total number of LLM requests",
			},
			[]string{"operation", "status"},
		),
		llmDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "llm_request_duration_seconds",
				Help:      "LLM request duration in seconds; streams are measured until the first response",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"operation"},
		),
		rateLimitRejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ratelimit_rejections_total",
				Help:      "Total number of requests rejected by the rate limiter",
			},
			[]string{"route"},
		),
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_chat_streams",
			Help:      "Number of chat streams currently open",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.imageSearchRequests,
		m.imageSearchDuration,
		m.llmRequests,
		m.llmDuration,
		m.rateLimitRejections,
		m.activeStreams,
	)

	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Uptime returns the time since the metrics were created
func (m *Metrics) Uptime() time.Duration {
	if m == nil {
		return 0
	}
	return time.Since(m.started)
}

// ObserveHTTP records one served request; path should be a route template
func (m *Metrics) ObserveHTTP(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if path == "" {
		path = "unknown"
	}
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// ObserveImageSearch records one provider search
func (m *Metrics) ObserveImageSearch(provider string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.imageSearchRequests.WithLabelValues(provider, statusLabel(err)).Inc()
	m.imageSearchDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// ObserveLLM records one model call
func (m *Metrics) ObserveLLM(operation string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.llmRequests.WithLabelValues(operation, statusLabel(err)).Inc()
	m.llmDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RateLimitRejected records a rejected request
func (m *Metrics) RateLimitRejected(route string) {
	if m == nil {
		return
	}
	m.rateLimitRejections.WithLabelValues(route).Inc()
}

// StreamStarted increments the open stream gauge
func (m *Metrics) StreamStarted() {
	if m == nil {
		return
	}
	m.activeStreams.Inc()
}

// StreamFinished decrements the open stream gauge
func (m *Metrics) StreamFinished() {
	if m == nil {
		return
	}
	m.activeStreams.Dec()
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
