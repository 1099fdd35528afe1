package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Validation results recorded by RecordValidation.
const (
	ResultFasta           = "fasta"
	ResultNotFasta        = "not_fasta"
	ResultMissingDownload = "missing_download"
	ResultInvalidRequest  = "invalid_request"
	ResultFetchError      = "fetch_error"
	ResultCallbackError   = "callback_error"
)

// Metrics holds all Prometheus metrics for the validator service
type Metrics struct {
	registry *prometheus.Registry

	// HTTP request metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Validation metrics
	ValidationsTotal    *prometheus.CounterVec
	DownloadSizeBytes   prometheus.Histogram
	RateLimitedRequests prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	httpRequestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fasta_validator_http_requests_total",
			Help: "Total number of HTTP requests processed by route and status",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fasta_validator_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	validationsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fasta_validator_validations_total",
			Help: "Total number of validation requests by result",
		},
		[]string{"result"},
	)

	downloadSizeBytes := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fasta_validator_download_size_bytes",
			Help:    "Size of downloaded files in bytes",
			Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000, 100000000},
		},
	)

	rateLimitedRequests := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fasta_validator_rate_limited_requests_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)

	registry.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		validationsTotal,
		downloadSizeBytes,
		rateLimitedRequests,
	)

	return &Metrics{
		registry:            registry,
		HTTPRequestsTotal:   httpRequestsTotal,
		HTTPRequestDuration: httpRequestDuration,
		ValidationsTotal:    validationsTotal,
		DownloadSizeBytes:   downloadSizeBytes,
		RateLimitedRequests: rateLimitedRequests,
	}
}

// GetRegistry returns the Prometheus registry for this metrics instance
func (m *Metrics) GetRegistry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records an HTTP request metric
func (m *Metrics) RecordHTTPRequest(method, route, status string) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
}

// RecordHTTPDuration records HTTP request duration
func (m *Metrics) RecordHTTPDuration(method, route string, duration float64) {
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration)
}

// RecordValidation records the outcome of a validation request
func (m *Metrics) RecordValidation(result string) {
	m.ValidationsTotal.WithLabelValues(result).Inc()
}

// RecordDownload records the size of a downloaded file
func (m *Metrics) RecordDownload(sizeBytes float64) {
	m.DownloadSizeBytes.Observe(sizeBytes)
}

// RecordRateLimited counts a request rejected by the rate limiter
func (m *Metrics) RecordRateLimited() {
	m.RateLimitedRequests.Inc()
}
