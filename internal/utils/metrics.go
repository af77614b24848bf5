package utils

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Tracks performance metrics across the system
type MetricsCollector struct {
	registry *prometheus.Registry

	requestCount prometheus.Counter
	errorCount   *prometheus.CounterVec

	// Operation latency keyed by operation name
	operationTimes *prometheus.HistogramVec

	systemStartTime time.Time
}

func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()
	mc := &MetricsCollector{
		registry: reg,
		requestCount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chui",
			Name:      "requests_total",
			Help:      "Requests handled by the messaging engine.",
		}),
		errorCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chui",
			Name:      "errors_total",
			Help:      "Failed requests by error code.",
		}, []string{"code"}),
		operationTimes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chui",
			Name:      "operation_duration_seconds",
			Help:      "Latency of engine operations.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"operation"}),
		systemStartTime: time.Now(),
	}
	reg.MustRegister(
		mc.requestCount,
		mc.errorCount,
		mc.operationTimes,
		collectors.NewGoCollector(),
	)
	return mc
}

func (mc *MetricsCollector) IncrementRequests() {
	mc.requestCount.Inc()
}

// IncrementErrors counts a failure under the code of err (or "unknown").
func (mc *MetricsCollector) IncrementErrors(err error) {
	code := ErrorCode(err)
	if code == "" {
		code = "unknown"
	}
	mc.errorCount.WithLabelValues(code).Inc()
}

func (mc *MetricsCollector) AddOperationLatency(operationName string, duration time.Duration) {
	mc.operationTimes.WithLabelValues(operationName).Observe(duration.Seconds())
}

func (mc *MetricsCollector) Uptime() time.Duration {
	return time.Since(mc.systemStartTime)
}

// Handler serves the collected metrics in the Prometheus text format.
func (mc *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{})
}
