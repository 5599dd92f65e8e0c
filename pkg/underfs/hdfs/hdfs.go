// Package hdfs implements the under-filesystem facade over an HDFS
// namespace.
//
// The adapter owns no storage: it wraps a shared remote client handle with
// the cross-cutting execution discipline every operation needs — a bounded
// counting retry applied uniformly to remote calls, execution under the
// calling context's identity, and the multi-step algorithms (ancestor-aware
// directory creation, guarded rename) that sit on top.
package hdfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/underfs/underfs/internal/logger"
	"github.com/underfs/underfs/pkg/retry"
	"github.com/underfs/underfs/pkg/security"
	"github.com/underfs/underfs/pkg/underfs"
)

// Permission is the fixed mask applied to every file and directory the
// adapter creates. It is deliberately wide (0777 with an empty umask) and
// not configurable per call: uniform permissions on every created node are
// part of the facade contract.
const Permission = os.FileMode(0777)

// Config configures an HDFS under filesystem.
type Config struct {
	// Prefix is the under-filesystem address prefix, e.g.
	// "hdfs://namenode:8020". Recorded for diagnostics; the client handle
	// is already bound to it.
	Prefix string

	// MaxRetryAttempts bounds every retry loop. Non-positive selects
	// retry.DefaultMaxAttempts.
	MaxRetryAttempts int

	// MasterLogin and WorkerLogin hold the keytab/principal pairs for the
	// connect-time role hooks. Either may be empty: connecting to a
	// non-secured cluster is legal and makes the corresponding hook a no-op.
	MasterLogin security.LoginConfig
	WorkerLogin security.LoginConfig

	// Metrics receives operational measurements. Nil disables collection.
	Metrics underfs.Metrics
}

// HdfsUnderFileSystem adapts an HDFS namespace to the UnderFileSystem
// facade.
//
// It is stateless per call apart from the shared client handle, and safe
// for concurrent invocation from arbitrary caller goroutines.
type HdfsUnderFileSystem struct {
	client      Client
	prefix      string
	maxAttempts int
	masterLogin security.LoginConfig
	workerLogin security.LoginConfig
	metrics     underfs.Metrics
}

var _ underfs.UnderFileSystem = (*HdfsUnderFileSystem)(nil)

// New wraps the given client handle in the facade. The handle is shared and
// long-lived; the adapter never closes it.
func New(client Client, cfg Config) *HdfsUnderFileSystem {
	maxAttempts := cfg.MaxRetryAttempts
	if maxAttempts <= 0 {
		maxAttempts = retry.DefaultMaxAttempts
	}

	m := cfg.Metrics
	if m == nil {
		m = underfs.NopMetrics()
	}

	return &HdfsUnderFileSystem{
		client:      client,
		prefix:      cfg.Prefix,
		maxAttempts: maxAttempts,
		masterLogin: cfg.MasterLogin,
		workerLogin: cfg.WorkerLogin,
		metrics:     m,
	}
}

// withRetries runs one remote call under this backend's retry bound and
// metrics.
func withRetries[T any](u *HdfsUnderFileSystem, op string, work func() (T, error)) (T, error) {
	return underfs.WithRetries(u.maxAttempts, op, u.metrics, work)
}

// observe wraps a facade operation with duration and outcome metrics.
func observe[T any](u *HdfsUnderFileSystem, op string, work func() (T, error)) (T, error) {
	start := time.Now()
	result, err := work()
	u.metrics.ObserveOperation(op, time.Since(start), err)
	return result, err
}

// Create creates a file at path with the fixed permission mask and returns
// a writable stream for it.
func (u *HdfsUnderFileSystem) Create(ctx context.Context, path string) (io.WriteCloser, error) {
	return observe(u, "create", func() (io.WriteCloser, error) {
		return security.RunAs(ctx, "create", func(ctx context.Context) (io.WriteCloser, error) {
			return withRetries(u, "create", func() (io.WriteCloser, error) {
				logger.Debug("creating file at %s", path)
				return u.client.Create(path, Permission)
			})
		})
	})
}

// CreateWithOptions creates a file at path. The replication and block-size
// options are accepted but currently ignored; creation degrades to the
// plain form with the backend defaults.
func (u *HdfsUnderFileSystem) CreateWithOptions(ctx context.Context, path string, opts underfs.CreateOptions) (io.WriteCloser, error) {
	if opts.Replication != 0 || opts.BlockSizeBytes != 0 {
		logger.Debug("create options for %s ignored: replication=%d block_size=%d",
			path, opts.Replication, opts.BlockSizeBytes)
	}
	return u.Create(ctx, path)
}

// Open returns a readable stream for the file at path.
func (u *HdfsUnderFileSystem) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	return observe(u, "open", func() (io.ReadCloser, error) {
		return security.RunAs(ctx, "open", func(ctx context.Context) (io.ReadCloser, error) {
			return withRetries(u, "open", func() (io.ReadCloser, error) {
				return u.client.Open(path)
			})
		})
	})
}

// Delete removes path. Deleting a path that does not exist is a negative
// result, not an error.
func (u *HdfsUnderFileSystem) Delete(ctx context.Context, path string, recursive bool) (bool, error) {
	return observe(u, "delete", func() (bool, error) {
		return security.RunAs(ctx, "delete", func(ctx context.Context) (bool, error) {
			logger.Debug("deleting %s recursive=%v", path, recursive)
			ok, err := withRetries(u, "delete", func() (bool, error) {
				if err := u.client.Delete(path, recursive); err != nil {
					return false, err
				}
				return true, nil
			})
			if errors.Is(err, underfs.ErrPathNotFound) {
				return false, nil
			}
			return ok, err
		})
	})
}

// Exists reports whether path exists.
func (u *HdfsUnderFileSystem) Exists(ctx context.Context, path string) (bool, error) {
	return observe(u, "exists", func() (bool, error) {
		return security.RunAs(ctx, "exists", func(ctx context.Context) (bool, error) {
			return u.existsWithRetries(path)
		})
	})
}

// existsWithRetries is the retried existence probe shared by Exists and the
// rename guard.
func (u *HdfsUnderFileSystem) existsWithRetries(path string) (bool, error) {
	return withRetries(u, "exists", func() (bool, error) {
		return u.client.Exists(path)
	})
}

// IsFile reports whether path exists and is a regular file. A missing path
// is a negative result, not an error.
func (u *HdfsUnderFileSystem) IsFile(ctx context.Context, path string) (bool, error) {
	return observe(u, "is_file", func() (bool, error) {
		return security.RunAs(ctx, "is_file", func(ctx context.Context) (bool, error) {
			info, err := u.client.Stat(path)
			if err != nil {
				if errors.Is(err, underfs.ErrPathNotFound) {
					return false, nil
				}
				return false, err
			}
			return !info.Dir, nil
		})
	})
}

// List returns the relative names of the immediate children of path.
// Listing a missing path fails with ErrPathNotFound; listing a file fails
// with ErrNotDirectory.
func (u *HdfsUnderFileSystem) List(ctx context.Context, path string) ([]string, error) {
	return observe(u, "list", func() ([]string, error) {
		return security.RunAs(ctx, "list", func(ctx context.Context) ([]string, error) {
			info, err := u.client.Stat(path)
			if err != nil {
				return nil, err
			}
			if !info.Dir {
				return nil, fmt.Errorf("%s: %w", path, underfs.ErrNotDirectory)
			}

			entries, err := u.client.ListStatus(path)
			if err != nil {
				return nil, err
			}

			// Relative names only, consistent with local directory listing.
			names := make([]string, 0, len(entries))
			for _, entry := range entries {
				names = append(names, baseName(entry.Path))
			}
			return names, nil
		})
	})
}

// Mkdirs creates path and every missing ancestor, each level with the fixed
// permission mask. An already-existing path is a negative result, not an
// error. The createParent flag is accepted for interface compatibility;
// missing ancestors are always created.
func (u *HdfsUnderFileSystem) Mkdirs(ctx context.Context, path string, createParent bool) (bool, error) {
	return observe(u, "mkdirs", func() (bool, error) {
		return security.RunAs(ctx, "mkdirs", func(ctx context.Context) (bool, error) {
			return withRetries(u, "mkdirs", func() (bool, error) {
				return u.makeDirectoryTree(path)
			})
		})
	})
}

// Rename moves src to dst, guarded by sequential existence probes. The
// probes and the rename are not atomic; the guard is best-effort on a
// concurrently mutated namespace.
func (u *HdfsUnderFileSystem) Rename(ctx context.Context, src, dst string) (bool, error) {
	return observe(u, "rename", func() (bool, error) {
		return security.RunAs(ctx, "rename", func(ctx context.Context) (bool, error) {
			logger.Debug("renaming %s to %s", src, dst)

			srcExists, err := u.existsWithRetries(src)
			if err != nil {
				return false, err
			}
			if !srcExists {
				logger.Error("rename of %s to %s failed: source does not exist", src, dst)
				return false, nil
			}

			dstExists, err := u.existsWithRetries(dst)
			if err != nil {
				return false, err
			}
			if dstExists {
				logger.Error("rename of %s to %s failed: destination already exists", src, dst)
				return false, nil
			}

			return withRetries(u, "rename", func() (bool, error) {
				if err := u.client.Rename(src, dst); err != nil {
					return false, err
				}
				return true, nil
			})
		})
	})
}

// BlockSizeBytes returns the block size of the file at path.
func (u *HdfsUnderFileSystem) BlockSizeBytes(ctx context.Context, path string) (int64, error) {
	return observe(u, "block_size", func() (int64, error) {
		return security.RunAs(ctx, "block_size", func(ctx context.Context) (int64, error) {
			info, err := u.client.Stat(path)
			if err != nil {
				return 0, err
			}
			return info.BlockSizeBytes, nil
		})
	})
}

// FileSize returns the byte length of the file at path.
//
// Exhaustion policy divergence: unlike every other retried operation, a
// size query that fails on every attempt reports FileSizeUnknown instead of
// propagating. The divergence is preserved as a documented facade contract;
// internally the uniform exhaustion failure is produced and then translated
// here, at the boundary.
func (u *HdfsUnderFileSystem) FileSize(ctx context.Context, path string) (int64, error) {
	return observe(u, "file_size", func() (int64, error) {
		return security.RunAs(ctx, "file_size", func(ctx context.Context) (int64, error) {
			size, err := withRetries(u, "file_size", func() (int64, error) {
				info, err := u.client.Stat(path)
				if err != nil {
					return 0, err
				}
				return info.Length, nil
			})
			if err != nil {
				logger.Error("file size for %s unavailable: %v", path, err)
				return underfs.FileSizeUnknown, nil
			}
			return size, nil
		})
	})
}

// ModificationTimeMs returns the modification time of path as epoch
// milliseconds.
func (u *HdfsUnderFileSystem) ModificationTimeMs(ctx context.Context, path string) (int64, error) {
	return observe(u, "modification_time", func() (int64, error) {
		return security.RunAs(ctx, "modification_time", func(ctx context.Context) (int64, error) {
			info, err := u.client.Stat(path)
			if err != nil {
				return 0, err
			}
			return info.ModTimeMs, nil
		})
	})
}

// FileLocations returns the hosts holding the block of path containing
// offset. Clients without the BlockLocator capability, and lookup failures,
// both yield an empty result: location data is an optimization hint, never
// a correctness requirement.
func (u *HdfsUnderFileSystem) FileLocations(ctx context.Context, path string, offset int64) ([]string, error) {
	return observe(u, "file_locations", func() ([]string, error) {
		return security.RunAs(ctx, "file_locations", func(ctx context.Context) ([]string, error) {
			locator, ok := u.client.(BlockLocator)
			if !ok {
				return []string{}, nil
			}

			hosts, err := locator.BlockLocations(path, offset)
			if err != nil {
				logger.Error("unable to get file locations for %s: %v", path, err)
				return []string{}, nil
			}
			return hosts, nil
		})
	})
}

// Space returns the requested cluster-wide capacity figure. The path
// argument does not scope the result: the caching layer can place data
// anywhere in the cluster, so the whole cluster is reported.
func (u *HdfsUnderFileSystem) Space(ctx context.Context, path string, kind underfs.SpaceType) (int64, error) {
	return observe(u, "space", func() (int64, error) {
		return security.RunAs(ctx, "space", func(ctx context.Context) (int64, error) {
			provider, ok := u.client.(underfs.ClusterStatisticsProvider)
			if !ok {
				return underfs.SpaceUnknown, nil
			}

			stats, err := provider.ClusterStatistics(ctx)
			if err != nil {
				return 0, err
			}

			switch kind {
			case underfs.SpaceTotal:
				return stats.Capacity, nil
			case underfs.SpaceUsed:
				return stats.Used, nil
			case underfs.SpaceFree:
				return stats.Remaining, nil
			default:
				return 0, fmt.Errorf("%v: %w", kind, underfs.ErrUnknownSpaceType)
			}
		})
	})
}

// SetPermission applies posixPerm, an octal mode string such as "0644", to
// path.
func (u *HdfsUnderFileSystem) SetPermission(ctx context.Context, path string, posixPerm string) error {
	_, err := observe(u, "set_permission", func() (struct{}, error) {
		return security.RunAs(ctx, "set_permission", func(ctx context.Context) (struct{}, error) {
			mode, err := parsePosixPermission(posixPerm)
			if err != nil {
				return struct{}{}, err
			}

			info, err := u.client.Stat(path)
			if err != nil {
				return struct{}{}, err
			}

			logger.Info("changing permissions of %s to %s", info.Path, posixPerm)
			if err := u.client.Chmod(path, mode); err != nil {
				logger.Error("failed to set permission %s on %s: %v", posixPerm, path, err)
				return struct{}{}, err
			}
			return struct{}{}, nil
		})
	})
	return err
}

// ConnectFromMaster performs the master-role keytab login. Missing
// keytab/principal configuration makes this a no-op.
func (u *HdfsUnderFileSystem) ConnectFromMaster(ctx context.Context, host string) error {
	return u.connect("master", u.masterLogin, host)
}

// ConnectFromWorker performs the worker-role keytab login. Missing
// keytab/principal configuration makes this a no-op.
func (u *HdfsUnderFileSystem) ConnectFromWorker(ctx context.Context, host string) error {
	return u.connect("worker", u.workerLogin, host)
}

func (u *HdfsUnderFileSystem) connect(role string, login security.LoginConfig, host string) error {
	if login.KeytabPath == "" || login.Principal == "" {
		logger.Debug("no %s keytab/principal configured, skipping login on %s", role, host)
		return nil
	}

	logger.Info("%s on %s logging in as %q from keytab %s", role, host, login.Principal, login.KeytabPath)
	if err := security.Login(login); err != nil {
		return fmt.Errorf("%s login on %s failed: %w", role, host, err)
	}
	return nil
}

// Close is deliberately a no-op: the client handle is a shared singleton
// and closing it here would break other concurrent users of the same
// handle.
func (u *HdfsUnderFileSystem) Close() error {
	return nil
}

// parsePosixPermission parses an octal mode string such as "0644" or "755".
func parsePosixPermission(posixPerm string) (os.FileMode, error) {
	mode, err := strconv.ParseUint(posixPerm, 8, 32)
	if err != nil || mode > 0777 {
		return 0, fmt.Errorf("%q: %w", posixPerm, underfs.ErrInvalidPermission)
	}
	return os.FileMode(mode), nil
}

// baseName returns the last path element of a slash-separated path.
func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
