// Package metrics exposes prometheus collectors for the optimistic
// mutation path, the write queue and the kv boundary.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dropin"

// Metrics owns a registry and the collectors registered on it.
type Metrics struct {
	registry *prometheus.Registry

	rollbacks       *prometheus.CounterVec
	flushes         *prometheus.CounterVec
	flushedKeys     prometheus.Counter
	flushDuration   prometheus.Histogram
	kvFallbacks     *prometheus.CounterVec
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	outboxSent      *prometheus.CounterVec
}

// New creates a registry with process and Go runtime collectors plus the
// application collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "optimistic_rollbacks_total",
			Help:      "Optimistic mutations reverted after the remote op failed.",
		}, []string{"op"}),
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writequeue_flushes_total",
			Help:      "Write queue flushes by result.",
		}, []string{"result"}),
		flushedKeys: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writequeue_flushed_keys_total",
			Help:      "Keys written by successful flushes.",
		}),
		flushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "writequeue_flush_duration_seconds",
			Help:      "Time spent writing a flush to the kv boundary.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		kvFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kv_fallback_total",
			Help:      "KV operations served by the in-process fallback.",
		}, []string{"op"}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "path", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		outboxSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_attempts_total",
			Help:      "Outbox delivery attempts by action and result.",
		}, []string{"action", "result"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.rollbacks, m.flushes, m.flushedKeys, m.flushDuration,
		m.kvFallbacks, m.requestsTotal, m.requestDuration, m.outboxSent,
	)
	return m
}

// Registry returns the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Rollback counts a reverted optimistic mutation.
func (m *Metrics) Rollback(op string) {
	m.rollbacks.WithLabelValues(op).Inc()
}

// Flush records one write queue flush.
func (m *Metrics) Flush(keys int, err error, d time.Duration) {
	if err != nil {
		m.flushes.WithLabelValues("error").Inc()
		return
	}
	m.flushes.WithLabelValues("ok").Inc()
	m.flushedKeys.Add(float64(keys))
	m.flushDuration.Observe(d.Seconds())
}

// KVFallback counts an operation served by the fallback backend.
func (m *Metrics) KVFallback(op string) {
	m.kvFallbacks.WithLabelValues(op).Inc()
}

// Request records a completed HTTP request. path should be the route pattern,
// not the raw URL, to keep label cardinality bounded.
func (m *Metrics) Request(method, path string, status int, d time.Duration) {
	m.requestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// OutboxAttempt records a delivery attempt for an outbox entry.
func (m *Metrics) OutboxAttempt(action string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.outboxSent.WithLabelValues(action, result).Inc()
}
