package security

import (
	"context"

	"github.com/underfs/underfs/internal/logger"
)

// RunAs executes a unit of work under the calling context's identity.
//
// The resolved identity is attached to the context passed to the unit of
// work, so nested calls observe the same principal. Failures from the unit
// of work are propagated as-is; the unit of work is expected to perform its
// own bounded retries before failing.
//
// RunAs is safe for concurrent use: the identity is an immutable value per
// call, not shared mutable state.
func RunAs[T any](ctx context.Context, op string, work func(ctx context.Context) (T, error)) (T, error) {
	id := CurrentIdentity(ctx)
	if !id.IsZero() {
		ctx = WithIdentity(ctx, id)
		logger.Debug("running %s as %q", op, id.Principal)
	}

	result, err := work(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
