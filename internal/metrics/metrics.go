// Package metrics exposes Prometheus collectors for the webhook service.
package metrics

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Delivery results used as label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultTimeout = "timeout"
	ResultBlocked = "blocked"
	ResultInvalid = "invalid"
)

// Metrics owns every collector the service exports. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	deliveries       *prometheus.CounterVec
	deliveryDuration *prometheus.HistogramVec
	enqueueFailures  prometheus.Counter
	auditBatches     *prometheus.CounterVec
	auditRecords     *prometheus.CounterVec
	queueLength      prometheus.Gauge

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers the collectors against reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		gatherer: reg,
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_deliveries_total",
			Help: "Webhook delivery attempts partitioned by event and result.",
		}, []string{"event", "result"}),
		deliveryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "webhook_delivery_duration_seconds",
			Help:    "Wall time of webhook HTTP calls.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"event"}),
		enqueueFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "webhook_audit_enqueue_failures_total",
			Help: "Audit records that could not be queued.",
		}),
		auditBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_audit_batches_total",
			Help: "Audit batches written partitioned by result.",
		}, []string{"result"}),
		auditRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_audit_records_total",
			Help: "Audit records drained partitioned by result.",
		}, []string{"result"}),
		queueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "webhook_audit_queue_length",
			Help: "Audit records waiting to be drained.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		}, []string{"method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"method", "route"}),
	}
	for _, c := range []prometheus.Collector{
		m.deliveries,
		m.deliveryDuration,
		m.enqueueFailures,
		m.auditBatches,
		m.auditRecords,
		m.queueLength,
		m.httpRequests,
		m.httpDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register webhook collector: %w", err)
		}
	}
	return m, nil
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveDelivery records one delivery outcome. Zero durations skip the histogram.
func (m *Metrics) ObserveDelivery(event, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(event, result).Inc()
	if d > 0 {
		m.deliveryDuration.WithLabelValues(event).Observe(d.Seconds())
	}
}

// IncEnqueueFailure counts an audit record that failed to queue.
func (m *Metrics) IncEnqueueFailure() {
	if m == nil {
		return
	}
	m.enqueueFailures.Inc()
}

// ObserveAuditBatch records a drained batch and its insert outcome.
func (m *Metrics) ObserveAuditBatch(size int, inserted bool) {
	if m == nil {
		return
	}
	result := ResultSuccess
	if !inserted {
		result = ResultFailure
	}
	m.auditBatches.WithLabelValues(result).Inc()
	m.auditRecords.WithLabelValues(result).Add(float64(size))
}

// SetQueueLength publishes the current audit backlog.
func (m *Metrics) SetQueueLength(n int64) {
	if m == nil {
		return
	}
	m.queueLength.Set(float64(n))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func (m *Metrics) ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
