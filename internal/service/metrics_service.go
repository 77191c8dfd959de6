package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry         *prometheus.Registry
	handler          http.Handler
	requestDuration  *prometheus.HistogramVec
	requestTotal     *prometheus.CounterVec
	permissionChecks *prometheus.CounterVec
	revisionsTotal   *prometheus.CounterVec
	sweepTransitions *prometheus.CounterVec
	sweepDuration    prometheus.Observer
	cacheLatency     prometheus.Observer
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	permissionChecks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "permission_checks_total",
		Help: "Permission check outcomes by operation",
	}, []string{"operation", "outcome"})

	revisionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "revisions_recorded_total",
		Help: "Revisions recorded by kind",
	}, []string{"kind"})

	sweepTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lifecycle_sweep_transitions_total",
		Help: "Scheduled lifecycle transitions applied by the sweeper",
	}, []string{"transition"})

	sweepDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "lifecycle_sweep_duration_seconds",
		Help:    "Duration of a full lifecycle sweep",
		Buckets: prometheus.DefBuckets,
	})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, permissionChecks, revisionsTotal, sweepTransitions, sweepDuration, cacheLatency, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:         registry,
		handler:          handler,
		requestDuration:  requestDuration,
		requestTotal:     requestTotal,
		permissionChecks: permissionChecks,
		revisionsTotal:   revisionsTotal,
		sweepTransitions: sweepTransitions,
		sweepDuration:    sweepDuration,
		cacheLatency:     cacheLatency,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObservePermissionCheck counts a permission decision for an operation.
func (m *MetricsService) ObservePermissionCheck(operation string, allowed bool) {
	if m == nil {
		return
	}
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	m.permissionChecks.WithLabelValues(operation, outcome).Inc()
}

// ObserveRevision counts a recorded revision by kind.
func (m *MetricsService) ObserveRevision(kind string) {
	if m == nil {
		return
	}
	m.revisionsTotal.WithLabelValues(kind).Inc()
}

// ObserveSweepTransition counts an applied lifecycle transition.
func (m *MetricsService) ObserveSweepTransition(transition string) {
	if m == nil {
		return
	}
	m.sweepTransitions.WithLabelValues(transition).Inc()
}

// ObserveSweepDuration records the wall time of a full sweep pass.
func (m *MetricsService) ObserveSweepDuration(duration time.Duration) {
	if m == nil || m.sweepDuration == nil {
		return
	}
	m.sweepDuration.Observe(duration.Seconds())
}

// ObserveCacheLatency records the latency of a cache round trip.
func (m *MetricsService) ObserveCacheLatency(duration time.Duration) {
	if m == nil || m.cacheLatency == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
}
