package underfs

import "errors"

// Sentinel errors shared by every under-filesystem backend. Implementations
// wrap these with path context via fmt.Errorf("...: %w", err); callers test
// with errors.Is.

var (
	// ErrPathNotFound indicates a metadata query targeted a path that does
	// not exist. Definitional absences are never retried.
	ErrPathNotFound = errors.New("path not found")

	// ErrNotDirectory indicates a directory operation (such as List) was
	// applied to a regular file.
	ErrNotDirectory = errors.New("not a directory")

	// ErrRetriesExhausted indicates a retryable operation failed on every
	// allowed attempt. The last underlying failure is wrapped alongside it,
	// so both the policy outcome and the root cause remain inspectable.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrPathTooDeep indicates an ancestor walk exceeded the maximum
	// supported directory depth. This guards against pathological or
	// malformed path hierarchies that would otherwise loop unboundedly.
	ErrPathTooDeep = errors.New("path exceeds maximum directory depth")

	// ErrUnknownSpaceType indicates a Space query used a SpaceType outside
	// the supported set.
	ErrUnknownSpaceType = errors.New("unknown space type")

	// ErrInvalidPermission indicates a permission string did not parse as an
	// octal POSIX mode.
	ErrInvalidPermission = errors.New("invalid permission string")
)
