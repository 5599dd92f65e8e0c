package hdfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/colinmarc/hdfs/v2"
	"github.com/colinmarc/hdfs/v2/hadoopconf"
	krbclient "github.com/jcmturner/gokrb5/v8/client"
	"github.com/underfs/underfs/pkg/underfs"
)

// Client is the capability this adapter consumes from the remote
// distributed filesystem. It is the out-of-scope collaborator boundary:
// every method is path-addressed and may fail with a generic I/O error.
//
// The production implementation wraps an HDFS client; tests substitute a
// fake. The handle behind a Client is a shared, long-lived singleton across
// all calls and goroutines, and the adapter never closes it.
type Client interface {
	// Create creates (or overwrites) a file and returns a writable stream.
	Create(path string, perm os.FileMode) (io.WriteCloser, error)

	// Open returns a readable stream for an existing file.
	Open(path string) (io.ReadCloser, error)

	// Delete removes a path, descending into directories when recursive.
	Delete(path string, recursive bool) error

	// Rename moves src to dst.
	Rename(src, dst string) error

	// Mkdir creates a single directory level with the given permission.
	Mkdir(path string, perm os.FileMode) error

	// Exists reports whether a path exists.
	Exists(path string) (bool, error)

	// Stat returns a metadata snapshot for a path, failing with
	// underfs.ErrPathNotFound when it is absent.
	Stat(path string) (underfs.FileInfo, error)

	// ListStatus returns metadata snapshots for the immediate children of a
	// directory.
	ListStatus(path string) ([]underfs.FileInfo, error)

	// Chmod applies a permission mode to an existing path.
	Chmod(path string, perm os.FileMode) error
}

// BlockLocator is an optional Client capability reporting which hosts hold
// the block of a file containing a given offset. Clients that cannot report
// block topology simply do not implement it, and file-location queries
// yield an empty result.
type BlockLocator interface {
	BlockLocations(path string, offset int64) ([]string, error)
}

// Client defaults applied when the remote server's own defaults are not
// visible through the client API.
const (
	defaultReplication    = 3
	defaultBlockSizeBytes = 128 * 1024 * 1024
)

// ClientOptions configures the production HDFS-backed Client.
type ClientOptions struct {
	// Address is the under-filesystem prefix, e.g. "hdfs://namenode:8020".
	Address string

	// User is the username to act as on non-secured clusters. Ignored when
	// a Kerberos client is set.
	User string

	// ConfResourcePath optionally points at a Hadoop configuration
	// directory or file whose settings are merged into the client options,
	// mirroring classic configuration-resource loading.
	ConfResourcePath string

	// KerberosClient enables SASL authentication against secured clusters.
	KerberosClient *krbclient.Client

	// ServicePrincipalName is the namenode service principal, e.g.
	// "nn/_HOST". Required when KerberosClient is set.
	ServicePrincipalName string
}

// hdfsClient adapts the HDFS client library to the Client interface.
type hdfsClient struct {
	c *hdfs.Client
}

// NewClient dials the namenode named by the options and returns the
// production Client. The returned client also provides the
// underfs.ClusterStatisticsProvider capability.
func NewClient(opts ClientOptions) (Client, error) {
	clientOpts := hdfs.ClientOptions{
		User:                         opts.User,
		KerberosClient:               opts.KerberosClient,
		KerberosServicePrincipleName: opts.ServicePrincipalName,
	}

	if opts.ConfResourcePath != "" {
		conf, err := hadoopconf.Load(opts.ConfResourcePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load hadoop configuration %q: %w", opts.ConfResourcePath, err)
		}
		fromConf := hdfs.ClientOptionsFromConf(conf)
		clientOpts.Addresses = fromConf.Addresses
		if clientOpts.KerberosClient == nil {
			clientOpts.KerberosClient = fromConf.KerberosClient
		}
		if clientOpts.KerberosServicePrincipleName == "" {
			clientOpts.KerberosServicePrincipleName = fromConf.KerberosServicePrincipleName
		}
	}

	if opts.Address != "" {
		address, err := namenodeAddress(opts.Address)
		if err != nil {
			return nil, err
		}
		clientOpts.Addresses = []string{address}
	}

	if len(clientOpts.Addresses) == 0 {
		return nil, fmt.Errorf("no namenode address: set the under-filesystem address or a configuration resource")
	}

	c, err := hdfs.NewClient(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to namenode %v: %w", clientOpts.Addresses, err)
	}

	return &hdfsClient{c: c}, nil
}

// namenodeAddress extracts "host:port" from an hdfs:// prefix. A bare
// "host:port" is accepted as-is.
func namenodeAddress(prefix string) (string, error) {
	if u, err := url.Parse(prefix); err == nil && u.Host != "" {
		return u.Host, nil
	}
	if prefix == "" {
		return "", fmt.Errorf("empty namenode address")
	}
	return prefix, nil
}

func (h *hdfsClient) Create(path string, perm os.FileMode) (io.WriteCloser, error) {
	w, err := h.c.CreateFile(path, defaultReplication, defaultBlockSizeBytes, perm)
	if err != nil {
		return nil, mapNotFound(path, err)
	}
	return w, nil
}

func (h *hdfsClient) Open(path string) (io.ReadCloser, error) {
	r, err := h.c.Open(path)
	if err != nil {
		return nil, mapNotFound(path, err)
	}
	return r, nil
}

func (h *hdfsClient) Delete(path string, recursive bool) error {
	var err error
	if recursive {
		err = h.c.RemoveAll(path)
	} else {
		err = h.c.Remove(path)
	}
	return mapNotFound(path, err)
}

func (h *hdfsClient) Rename(src, dst string) error {
	return mapNotFound(src, h.c.Rename(src, dst))
}

func (h *hdfsClient) Mkdir(path string, perm os.FileMode) error {
	return mapNotFound(path, h.c.Mkdir(path, perm))
}

func (h *hdfsClient) Exists(path string) (bool, error) {
	_, err := h.c.Stat(path)
	if err != nil {
		if isNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (h *hdfsClient) Stat(path string) (underfs.FileInfo, error) {
	fi, err := h.c.Stat(path)
	if err != nil {
		return underfs.FileInfo{}, mapNotFound(path, err)
	}
	return toFileInfo(path, fi), nil
}

func (h *hdfsClient) ListStatus(path string) ([]underfs.FileInfo, error) {
	entries, err := h.c.ReadDir(path)
	if err != nil {
		return nil, mapNotFound(path, err)
	}

	infos := make([]underfs.FileInfo, 0, len(entries))
	for _, fi := range entries {
		infos = append(infos, toFileInfo(fi.Name(), fi))
	}
	return infos, nil
}

func (h *hdfsClient) Chmod(path string, perm os.FileMode) error {
	return mapNotFound(path, h.c.Chmod(path, perm))
}

// ClusterStatistics reports namespace-wide capacity from the namenode,
// providing the underfs.ClusterStatisticsProvider capability.
func (h *hdfsClient) ClusterStatistics(ctx context.Context) (underfs.ClusterStatistics, error) {
	if err := ctx.Err(); err != nil {
		return underfs.ClusterStatistics{}, err
	}

	fsInfo, err := h.c.StatFs()
	if err != nil {
		return underfs.ClusterStatistics{}, fmt.Errorf("failed to fetch cluster statistics: %w", err)
	}

	return underfs.ClusterStatistics{
		Capacity:  int64(fsInfo.Capacity),
		Used:      int64(fsInfo.Used),
		Remaining: int64(fsInfo.Remaining),
	}, nil
}

// toFileInfo converts a client stat result into a FileInfo snapshot. The
// block size falls back to the client default when the server response does
// not expose one through the stat interface.
func toFileInfo(path string, fi os.FileInfo) underfs.FileInfo {
	blockSize := int64(defaultBlockSizeBytes)
	if bs, ok := fi.(interface{ BlockSize() int64 }); ok {
		blockSize = bs.BlockSize()
	}

	return underfs.FileInfo{
		Path:           path,
		Length:         fi.Size(),
		BlockSizeBytes: blockSize,
		ModTimeMs:      fi.ModTime().UnixMilli(),
		Dir:            fi.IsDir(),
	}
}

// mapNotFound translates the client library's not-exist failures into the
// adapter's ErrPathNotFound sentinel, keeping the original error wrapped.
func mapNotFound(path string, err error) error {
	if err == nil {
		return nil
	}
	if isNotExist(err) {
		return fmt.Errorf("%s: %w", path, underfs.ErrPathNotFound)
	}
	return err
}

func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
