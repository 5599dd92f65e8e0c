package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/underfs/underfs/pkg/underfs"
)

// ufsMetrics is the Prometheus implementation of underfs.Metrics.
//
// It collects, per backend instance:
//   - operation counts by operation and outcome
//   - operation latency histograms
//   - reissued retry attempts
//   - retry loops that exhausted their attempt budget
type ufsMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	retriesTotal      *prometheus.CounterVec
	exhaustionsTotal  *prometheus.CounterVec
}

// NewUFSMetrics creates a Prometheus-backed underfs.Metrics labeled with the
// backend name ("hdfs", "s3", ...).
//
// Returns nil when metrics are disabled (InitRegistry not called), which
// makes backends fall back to their no-op implementation.
func NewUFSMetrics(backend string) underfs.Metrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()
	labels := prometheus.Labels{"backend": backend}

	return &ufsMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name:        "underfs_operations_total",
				Help:        "Total number of under-filesystem operations by operation and status",
				ConstLabels: labels,
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "underfs_operation_duration_seconds",
				Help:        "Duration of under-filesystem operations in seconds",
				ConstLabels: labels,
				Buckets: []float64{
					0.005, // 5ms
					0.01,  // 10ms
					0.025, // 25ms
					0.05,  // 50ms
					0.1,   // 100ms
					0.25,  // 250ms
					0.5,   // 500ms
					1.0,   // 1s
					2.5,   // 2.5s
					5.0,   // 5s
					10.0,  // 10s
				},
			},
			[]string{"operation"},
		),
		retriesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name:        "underfs_retries_total",
				Help:        "Total number of reissued attempts within retry loops",
				ConstLabels: labels,
			},
			[]string{"operation"},
		),
		exhaustionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name:        "underfs_retry_exhaustions_total",
				Help:        "Total number of retry loops that exhausted their attempt budget",
				ConstLabels: labels,
			},
			[]string{"operation"},
		),
	}
}

func (m *ufsMetrics) ObserveOperation(op string, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.operationsTotal.WithLabelValues(op, status).Inc()
	m.operationDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

func (m *ufsMetrics) ObserveRetry(op string) {
	m.retriesTotal.WithLabelValues(op).Inc()
}

func (m *ufsMetrics) ObserveExhaustion(op string) {
	m.exhaustionsTotal.WithLabelValues(op).Inc()
}
