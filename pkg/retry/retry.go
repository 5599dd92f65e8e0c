// Package retry provides bounded retry policies for remote storage calls.
//
// Every retryable operation in the adapter creates one policy instance at the
// start of the call and discards it at the end. Policies are deliberately
// counting-only: there is no backoff delay and no jitter. The adapter targets
// transient remote errors (timeouts, stale handles) that a same-instant retry
// can clear, not load-related failures that need backoff.
package retry

// DefaultMaxAttempts is the attempt bound used by the adapter when no
// explicit bound is configured.
const DefaultMaxAttempts = 5

// Policy governs how many times a failed remote call is reissued.
//
// A Policy is a mutable counter scoped to a single logical operation
// invocation. It must not be shared across calls or goroutines.
//
// Usage pattern:
//
//	policy := retry.NewCounting(maxAttempts)
//	var last error
//	for policy.Attempt() {
//	    result, err := client.Call(...)
//	    if err == nil {
//	        return result, nil
//	    }
//	    last = err
//	}
//	return nil, fmt.Errorf("...: %w", last)
type Policy interface {
	// Attempt returns true and consumes one attempt while attempts remain,
	// false once the bound is reached.
	Attempt() bool

	// Count returns the number of attempts consumed so far, for diagnostics.
	Count() int
}

// CountingRetry is a Policy that allows a fixed number of attempts,
// issued back-to-back with no delay between them.
type CountingRetry struct {
	maxAttempts int
	count       int
}

// NewCounting returns a CountingRetry allowing at most maxAttempts attempts.
// A non-positive bound is replaced with DefaultMaxAttempts.
func NewCounting(maxAttempts int) *CountingRetry {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &CountingRetry{maxAttempts: maxAttempts}
}

// Attempt consumes one attempt. It returns false once the bound is reached;
// the counter never exceeds the bound.
func (r *CountingRetry) Attempt() bool {
	if r.count >= r.maxAttempts {
		return false
	}
	r.count++
	return true
}

// Count returns the number of attempts consumed so far.
func (r *CountingRetry) Count() int {
	return r.count
}
