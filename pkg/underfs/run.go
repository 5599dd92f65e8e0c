package underfs

import (
	"errors"
	"fmt"

	"github.com/underfs/underfs/internal/logger"
	"github.com/underfs/underfs/pkg/retry"
)

// WithRetries runs one remote call under a fresh counting policy on behalf
// of a backend.
//
// Transient failures are recorded and the call reissued back-to-back until
// the bound is hit, after which the last failure is surfaced wrapped in
// ErrRetriesExhausted. A definitional absence (ErrPathNotFound) short
// circuits immediately: retrying it is pointless.
func WithRetries[T any](maxAttempts int, op string, m Metrics, work func() (T, error)) (T, error) {
	if m == nil {
		m = NopMetrics()
	}
	policy := retry.NewCounting(maxAttempts)

	var last error
	for policy.Attempt() {
		if policy.Count() > 1 {
			m.ObserveRetry(op)
		}

		result, err := work()
		if err == nil {
			return result, nil
		}
		if errors.Is(err, ErrPathNotFound) {
			var zero T
			return zero, err
		}

		logger.Error("retry %d for %s: %v", policy.Count(), op, err)
		last = err
	}

	m.ObserveExhaustion(op)
	var zero T
	return zero, fmt.Errorf("%s after %d attempts: %w: %w", op, policy.Count(), ErrRetriesExhausted, last)
}
