// Package underfs defines the uniform, path-oriented storage interface the
// caching layer programs against, together with the shared types and
// sentinel errors every backend implementation honors.
//
// An under filesystem does not do storage itself: it makes an unreliable,
// identity-sensitive remote client look like a dependable, uniformly-erring
// local filesystem. Backends live in subpackages (hdfs, s3) and are selected
// through pkg/config.
package underfs

import (
	"context"
	"io"
)

// SpaceType selects which capacity figure a Space query reports.
type SpaceType int

const (
	// SpaceTotal is the total capacity of the backing cluster in bytes.
	SpaceTotal SpaceType = iota

	// SpaceUsed is the capacity currently consumed, in bytes.
	SpaceUsed

	// SpaceFree is the capacity still available, in bytes.
	SpaceFree
)

func (t SpaceType) String() string {
	switch t {
	case SpaceTotal:
		return "TOTAL"
	case SpaceUsed:
		return "USED"
	case SpaceFree:
		return "FREE"
	default:
		return "UNKNOWN"
	}
}

// SpaceUnknown is the sentinel reported when the backing client cannot
// provide cluster statistics. It stands for "unknown", not for an error.
const SpaceUnknown int64 = -1

// FileSizeUnknown is the sentinel FileSize reports when every retry is
// exhausted without the query either succeeding or failing definitively.
const FileSizeUnknown int64 = -1

// CreateOptions carries the tuning parameters of the extended create forms.
//
// The current backends accept these options but do not apply them: creation
// degrades to the plain form with the backend's defaults. This is a
// documented limitation carried over from the adapter's history, not an
// inference point — callers must not rely on the values taking effect.
type CreateOptions struct {
	// Replication is the requested replica count. Zero means backend default.
	Replication int

	// BlockSizeBytes is the requested block size. Zero means backend default.
	BlockSizeBytes int64
}

// FileInfo is a read-only metadata snapshot for one path, fetched per call
// and never cached by the adapter.
type FileInfo struct {
	// Path is the path the snapshot was taken for.
	Path string

	// Length is the file length in bytes.
	Length int64

	// BlockSizeBytes is the storage block size for the file.
	BlockSizeBytes int64

	// ModTimeMs is the modification time as epoch milliseconds.
	ModTimeMs int64

	// Dir reports whether the path is a directory.
	Dir bool
}

// ClusterStatistics is one capacity snapshot for an entire backing cluster.
type ClusterStatistics struct {
	// Capacity is the total cluster capacity in bytes.
	Capacity int64

	// Used is the cluster capacity currently consumed, in bytes.
	Used int64

	// Remaining is the cluster capacity still available, in bytes.
	Remaining int64
}

// ClusterStatisticsProvider is an optional capability of a backing client.
//
// A backend queries its client for this capability instead of inspecting
// concrete types: clients that implement it contribute cluster-wide figures
// to Space queries, clients that do not make Space report SpaceUnknown.
type ClusterStatisticsProvider interface {
	ClusterStatistics(ctx context.Context) (ClusterStatistics, error)
}

// UnderFileSystem is the storage-abstraction surface exposed to the host
// caching/virtualization layer.
//
// Paths are opaque hierarchical string identifiers ("/a/b/c"); no
// normalization is guaranteed beyond what the underlying client performs.
//
// Thread safety: implementations are stateless per call apart from the
// shared client handle and must be safe for concurrent invocation from
// arbitrary caller goroutines. No ordering is guaranteed across different
// operations; callers needing create-then-write-then-close sequencing must
// sequence the calls themselves.
//
// Failure policy: transient remote failures are retried up to a fixed bound
// with no backoff, then surfaced wrapping ErrRetriesExhausted. Definitional
// absences (ErrPathNotFound) are never retried. Guard failures (rename
// pre-checks, mkdirs on an existing path) are negative results, not errors.
type UnderFileSystem interface {
	// Create creates a file at path and returns a writable stream for it.
	// The fixed 0777 permission mask is applied; overwrite semantics are
	// delegated to the underlying client. Retried; propagates on exhaustion.
	Create(ctx context.Context, path string) (io.WriteCloser, error)

	// CreateWithOptions is Create with tuning parameters. The parameters are
	// currently accepted but ignored (see CreateOptions).
	CreateWithOptions(ctx context.Context, path string, opts CreateOptions) (io.WriteCloser, error)

	// Open returns a readable stream for the file at path.
	// Retried; propagates on exhaustion.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes path, descending into directories when recursive is
	// set. The recursive flag is forwarded to the client as-is.
	// Retried; propagates on exhaustion.
	Delete(ctx context.Context, path string, recursive bool) (bool, error)

	// Exists reports whether path exists. No side effects.
	// Retried; propagates on exhaustion.
	Exists(ctx context.Context, path string) (bool, error)

	// IsFile reports whether path exists and is a regular file. Not retried.
	IsFile(ctx context.Context, path string) (bool, error)

	// List returns the names of the immediate children of path, relative
	// names only. Listing a missing path fails with ErrPathNotFound; listing
	// a file fails with ErrNotDirectory, mirroring conventional
	// directory-listing semantics. Not retried.
	List(ctx context.Context, path string) ([]string, error)

	// Mkdirs creates path and any missing ancestors, each with the fixed
	// 0777 permission mask. Returns false without error when path already
	// exists; a failing creation step is retried and propagates on
	// exhaustion. The createParent flag
	// is accepted for interface compatibility; missing ancestors are always
	// created regardless of its value. Retried; propagates on exhaustion.
	Mkdirs(ctx context.Context, path string, createParent bool) (bool, error)

	// Rename moves src to dst. Guarded: returns false without attempting the
	// rename when src does not exist or dst already exists. The two
	// existence probes and the rename are not atomic — on a concurrently
	// mutated namespace a race window exists between check and rename; the
	// guard is best-effort, not transactional. Retried; propagates on
	// exhaustion.
	Rename(ctx context.Context, src, dst string) (bool, error)

	// BlockSizeBytes returns the block size of the file at path.
	// Fails with ErrPathNotFound when path is absent. Not retried.
	BlockSizeBytes(ctx context.Context, path string) (int64, error)

	// FileSize returns the byte length of the file at path, or
	// FileSizeUnknown when all retries are exhausted without an answer.
	// This swallow-and-sentinel exhaustion policy diverges from every other
	// operation's propagate-on-exhaustion policy; it is preserved as a
	// documented facade contract, implemented as a translation of the
	// uniform exhaustion failure.
	FileSize(ctx context.Context, path string) (int64, error)

	// ModificationTimeMs returns the modification time of path as epoch
	// milliseconds. Fails with ErrPathNotFound when path is absent.
	// Not retried.
	ModificationTimeMs(ctx context.Context, path string) (int64, error)

	// FileLocations returns the host identifiers holding the block of path
	// containing offset. Only the first located block's hosts are returned.
	// Lookup failures are swallowed and yield an empty result. Not retried.
	FileLocations(ctx context.Context, path string, offset int64) ([]string, error)

	// Space returns the requested cluster-wide capacity figure in bytes, or
	// SpaceUnknown when the backing client does not provide cluster
	// statistics. The path argument is accepted but does not scope the
	// result: the whole cluster is reported regardless, since the caching
	// layer may place data anywhere in it. Not retried.
	Space(ctx context.Context, path string, kind SpaceType) (int64, error)

	// SetPermission applies posixPerm, an octal permission string such as
	// "0644", to path. Fails with the underlying I/O error. Not retried.
	SetPermission(ctx context.Context, path string, posixPerm string) error

	// ConnectFromMaster performs the master-role identity login using the
	// configured keytab/principal pair, invoked once at process startup.
	// A missing keytab or principal makes this a no-op: connecting to a
	// non-secured cluster is legal. Login failure propagates unretried.
	ConnectFromMaster(ctx context.Context, host string) error

	// ConnectFromWorker is ConnectFromMaster for the worker role.
	ConnectFromWorker(ctx context.Context, host string) error

	// Close releases adapter-local resources. The shared client handle is
	// deliberately left open: it is a long-lived singleton and closing it
	// here would break other concurrent users of the same handle.
	Close() error
}
