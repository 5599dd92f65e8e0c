package underfs

import "time"

// Metrics collects operational measurements from an under-filesystem
// backend. Backends call it on every facade operation.
//
// Metrics are optional: passing nil to a backend constructor selects the
// built-in no-op implementation, so instrumentation adds zero overhead when
// disabled. The Prometheus-backed implementation lives in pkg/metrics.
type Metrics interface {
	// ObserveOperation records one completed facade operation with its
	// duration and outcome.
	ObserveOperation(op string, elapsed time.Duration, err error)

	// ObserveRetry records one reissued attempt within a retry loop.
	ObserveRetry(op string)

	// ObserveExhaustion records a retry loop that consumed every attempt
	// without succeeding.
	ObserveExhaustion(op string)
}

// noopMetrics discards all observations.
type noopMetrics struct{}

func (noopMetrics) ObserveOperation(string, time.Duration, error) {}
func (noopMetrics) ObserveRetry(string)                           {}
func (noopMetrics) ObserveExhaustion(string)                      {}

// NopMetrics returns a Metrics implementation that discards everything.
func NopMetrics() Metrics {
	return noopMetrics{}
}
