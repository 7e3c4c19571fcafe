package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Metrics holds all Prometheus metrics for the API
type Metrics struct {
	// HTTP request metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight *prometheus.GaugeVec

	// Bag access metrics
	bagOpensTotal      *prometheus.CounterVec
	bagOpenDuration    prometheus.Histogram
	messagesServed     prometheus.Counter
	bagsAvailable      prometheus.Gauge
	bagsAvailableBytes prometheus.Gauge

	// API key authentication metrics
	authRequestsTotal *prometheus.CounterVec
}

// NewMetrics creates the API metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frost_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "frost_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		httpRequestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "frost_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed",
			},
			[]string{"method", "endpoint"},
		),

		bagOpensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frost_bag_opens_total",
				Help: "Total number of bag metadata reads and opens",
			},
			[]string{"status"},
		),

		bagOpenDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "frost_bag_open_duration_seconds",
				Help:    "Time to read bag metadata or open a bag",
				Buckets: prometheus.DefBuckets,
			},
		),

		messagesServed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "frost_messages_served_total",
				Help: "Total number of messages returned by the messages endpoint",
			},
		),

		bagsAvailable: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "frost_bags_available",
				Help: "Number of bag files in the data directory",
			},
		),

		bagsAvailableBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "frost_bags_available_bytes",
				Help: "Total size of the bag files in the data directory",
			},
		),

		authRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frost_auth_requests_total",
				Help: "Total number of authentication requests",
			},
			[]string{"status"},
		),
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	statusCodeStr := strconv.Itoa(statusCode)

	m.httpRequestsTotal.WithLabelValues(method, endpoint, statusCodeStr).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordBagOpen records a metadata read or bag open
func (m *Metrics) RecordBagOpen(success bool, duration time.Duration) {
	m.bagOpensTotal.WithLabelValues(status(success)).Inc()
	m.bagOpenDuration.Observe(duration.Seconds())
}

// RecordMessagesServed adds n to the served message count
func (m *Metrics) RecordMessagesServed(n int) {
	m.messagesServed.Add(float64(n))
}

// UpdateBagStats updates the data directory gauges
func (m *Metrics) UpdateBagStats(count int, totalBytes int64) {
	m.bagsAvailable.Set(float64(count))
	m.bagsAvailableBytes.Set(float64(totalBytes))
}

// RecordAuthRequest records an authentication request
func (m *Metrics) RecordAuthRequest(success bool) {
	m.authRequestsTotal.WithLabelValues(status(success)).Inc()
}

func status(success bool) string {
	if success {
		return statusSuccess
	}
	return statusError
}

// InstrumentHandler instruments an HTTP handler with metrics
func (m *Metrics) InstrumentHandler(method, endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		gauge := m.httpRequestsInFlight.WithLabelValues(method, endpoint)
		gauge.Inc()
		defer gauge.Dec()

		rw := wrapResponseWriter(w)
		handler(rw, r)

		m.RecordHTTPRequest(method, endpoint, rw.statusCode, time.Since(start))
	}
}

// InstrumentAuthMiddleware instruments the authentication middleware
func (m *Metrics) InstrumentAuthMiddleware(next func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hasAPIKey := r.Header.Get("X-API-Key") != ""

			rw := wrapResponseWriter(w)
			next(h).ServeHTTP(rw, r)

			if hasAPIKey {
				m.RecordAuthRequest(rw.statusCode != http.StatusUnauthorized)
			}
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func wrapResponseWriter(w http.ResponseWriter) *responseWriter {
	if rw, ok := w.(*responseWriter); ok {
		return rw
	}
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
