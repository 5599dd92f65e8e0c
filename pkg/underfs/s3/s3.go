// Package s3 implements the under-filesystem facade over an S3 (or
// S3-compatible) bucket.
//
// Object storage has no directories, so the hierarchy is emulated the usual
// way: a directory is a zero-byte marker object whose key ends in "/", and
// listing resolves children through a delimited prefix scan. Rename is
// copy-then-delete — there is no atomic move in the object model.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/underfs/underfs/internal/logger"
	"github.com/underfs/underfs/pkg/retry"
	"github.com/underfs/underfs/pkg/underfs"
)

// defaultBlockSizeBytes is the block size reported for objects. S3 has no
// block concept; the caching layer still needs a chunking hint.
const defaultBlockSizeBytes = 128 * 1024 * 1024

// API is the slice of the S3 client surface this backend consumes. The
// aws-sdk-go-v2 *s3.Client satisfies it; tests substitute a fake.
type API interface {
	HeadObject(ctx context.Context, in *awss3.HeadObjectInput, opts ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *awss3.GetObjectInput, opts ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *awss3.PutObjectInput, opts ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
	CopyObject(ctx context.Context, in *awss3.CopyObjectInput, opts ...func(*awss3.Options)) (*awss3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, in *awss3.DeleteObjectInput, opts ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error)
	DeleteObjects(ctx context.Context, in *awss3.DeleteObjectsInput, opts ...func(*awss3.Options)) (*awss3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, in *awss3.ListObjectsV2Input, opts ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error)
}

// Config configures an S3 under filesystem.
type Config struct {
	// Client is the configured S3 client.
	Client API

	// Bucket is the bucket name. Required.
	Bucket string

	// KeyPrefix is an optional prefix for all object keys, e.g. "underfs/".
	KeyPrefix string

	// MaxRetryAttempts bounds every retry loop. Non-positive selects
	// retry.DefaultMaxAttempts.
	MaxRetryAttempts int

	// Metrics receives operational measurements. Nil disables collection.
	Metrics underfs.Metrics
}

// S3UnderFileSystem adapts a bucket to the UnderFileSystem facade.
//
// Safe for concurrent use; concurrent writes to the same path are
// last-write-wins under S3's consistency model.
type S3UnderFileSystem struct {
	client      API
	bucket      string
	keyPrefix   string
	maxAttempts int
	metrics     underfs.Metrics
}

var _ underfs.UnderFileSystem = (*S3UnderFileSystem)(nil)

// New creates an S3-backed under filesystem. The bucket must already exist;
// access is not verified here so that construction never blocks on the
// network.
func New(cfg Config) (*S3UnderFileSystem, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	maxAttempts := cfg.MaxRetryAttempts
	if maxAttempts <= 0 {
		maxAttempts = retry.DefaultMaxAttempts
	}

	m := cfg.Metrics
	if m == nil {
		m = underfs.NopMetrics()
	}

	return &S3UnderFileSystem{
		client:      cfg.Client,
		bucket:      cfg.Bucket,
		keyPrefix:   cfg.KeyPrefix,
		maxAttempts: maxAttempts,
		metrics:     m,
	}, nil
}

// objectKey maps a path to the object key for its file form: the path with
// the leading "/" stripped, under the configured prefix.
func (s *S3UnderFileSystem) objectKey(path string) string {
	return s.keyPrefix + strings.TrimPrefix(path, "/")
}

// dirKey is the marker-object key for a path's directory form.
func (s *S3UnderFileSystem) dirKey(path string) string {
	key := s.objectKey(path)
	if key == "" || strings.HasSuffix(key, "/") {
		return key
	}
	return key + "/"
}

func withRetries[T any](s *S3UnderFileSystem, op string, work func() (T, error)) (T, error) {
	return underfs.WithRetries(s.maxAttempts, op, s.metrics, work)
}

func observe[T any](s *S3UnderFileSystem, op string, work func() (T, error)) (T, error) {
	start := time.Now()
	result, err := work()
	s.metrics.ObserveOperation(op, time.Since(start), err)
	return result, err
}

// Create returns a writer that buffers in memory and uploads the object on
// Close. The upload itself is the retried remote call.
func (s *S3UnderFileSystem) Create(ctx context.Context, path string) (io.WriteCloser, error) {
	return observe(s, "create", func() (io.WriteCloser, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return &objectWriter{ufs: s, ctx: ctx, path: path, buffer: &bytes.Buffer{}}, nil
	})
}

// CreateWithOptions is Create; the options have no object-storage
// equivalent and are ignored.
func (s *S3UnderFileSystem) CreateWithOptions(ctx context.Context, path string, opts underfs.CreateOptions) (io.WriteCloser, error) {
	if opts.Replication != 0 || opts.BlockSizeBytes != 0 {
		logger.Debug("create options for %s ignored: replication=%d block_size=%d",
			path, opts.Replication, opts.BlockSizeBytes)
	}
	return s.Create(ctx, path)
}

// objectWriter accumulates writes and performs one PutObject on Close.
type objectWriter struct {
	ufs    *S3UnderFileSystem
	ctx    context.Context
	path   string
	buffer *bytes.Buffer
}

func (w *objectWriter) Write(p []byte) (int, error) {
	return w.buffer.Write(p)
}

func (w *objectWriter) Close() error {
	_, err := withRetries(w.ufs, "create", func() (struct{}, error) {
		_, err := w.ufs.client.PutObject(w.ctx, &awss3.PutObjectInput{
			Bucket: aws.String(w.ufs.bucket),
			Key:    aws.String(w.ufs.objectKey(w.path)),
			Body:   bytes.NewReader(w.buffer.Bytes()),
		})
		if err != nil {
			return struct{}{}, fmt.Errorf("failed to write object %s: %w", w.path, err)
		}
		return struct{}{}, nil
	})
	return err
}

// Open returns a readable stream for the object at path.
func (s *S3UnderFileSystem) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	return observe(s, "open", func() (io.ReadCloser, error) {
		return withRetries(s, "open", func() (io.ReadCloser, error) {
			out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    aws.String(s.objectKey(path)),
			})
			if err != nil {
				return nil, mapNotFound(path, err)
			}
			return out.Body, nil
		})
	})
}

// Delete removes the object or directory subtree at path. A missing path is
// a negative result; a non-empty directory without recursive is too.
func (s *S3UnderFileSystem) Delete(ctx context.Context, path string, recursive bool) (bool, error) {
	return observe(s, "delete", func() (bool, error) {
		return withRetries(s, "delete", func() (bool, error) {
			isFile, err := s.headObject(ctx, s.objectKey(path))
			if err != nil {
				return false, err
			}
			if isFile {
				return s.deleteKey(ctx, s.objectKey(path))
			}

			keys, err := s.listSubtreeKeys(ctx, path)
			if err != nil {
				return false, err
			}
			if len(keys) == 0 {
				return false, nil
			}
			if !recursive && hasChildren(keys, s.dirKey(path)) {
				logger.Error("cannot delete non-empty directory %s without recursive", path)
				return false, nil
			}
			return s.deleteKeys(ctx, keys)
		})
	})
}

// Exists reports whether path exists as a file, a directory marker, or an
// implicit directory (a prefix with children).
func (s *S3UnderFileSystem) Exists(ctx context.Context, path string) (bool, error) {
	return observe(s, "exists", func() (bool, error) {
		return withRetries(s, "exists", func() (bool, error) {
			return s.exists(ctx, path)
		})
	})
}

func (s *S3UnderFileSystem) exists(ctx context.Context, path string) (bool, error) {
	if isFile, err := s.headObject(ctx, s.objectKey(path)); err != nil {
		return false, err
	} else if isFile {
		return true, nil
	}

	out, err := s.client.ListObjectsV2(ctx, &awss3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(s.dirKey(path)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, fmt.Errorf("failed to list %s: %w", path, err)
	}
	return len(out.Contents) > 0 || len(out.CommonPrefixes) > 0, nil
}

// IsFile reports whether path exists as a plain object (not a directory
// marker or prefix).
func (s *S3UnderFileSystem) IsFile(ctx context.Context, path string) (bool, error) {
	return observe(s, "is_file", func() (bool, error) {
		return s.headObject(ctx, s.objectKey(path))
	})
}

// List returns the relative names of the immediate children of path.
func (s *S3UnderFileSystem) List(ctx context.Context, path string) ([]string, error) {
	return observe(s, "list", func() ([]string, error) {
		isFile, err := s.headObject(ctx, s.objectKey(path))
		if err != nil {
			return nil, err
		}
		if isFile {
			return nil, fmt.Errorf("%s: %w", path, underfs.ErrNotDirectory)
		}

		prefix := s.dirKey(path)
		var names []string
		var continuation *string
		for {
			out, err := s.client.ListObjectsV2(ctx, &awss3.ListObjectsV2Input{
				Bucket:            aws.String(s.bucket),
				Prefix:            aws.String(prefix),
				Delimiter:         aws.String("/"),
				ContinuationToken: continuation,
			})
			if err != nil {
				return nil, fmt.Errorf("failed to list %s: %w", path, err)
			}

			for _, obj := range out.Contents {
				if obj.Key == nil || *obj.Key == prefix {
					continue
				}
				names = append(names, strings.TrimPrefix(*obj.Key, prefix))
			}
			for _, cp := range out.CommonPrefixes {
				if cp.Prefix == nil {
					continue
				}
				name := strings.TrimSuffix(strings.TrimPrefix(*cp.Prefix, prefix), "/")
				names = append(names, name)
			}

			if out.IsTruncated == nil || !*out.IsTruncated {
				break
			}
			continuation = out.NextContinuationToken
		}

		if names == nil {
			// Distinguish an empty directory from a missing path.
			found, err := s.exists(ctx, path)
			if err != nil {
				return nil, err
			}
			if !found {
				return nil, fmt.Errorf("%s: %w", path, underfs.ErrPathNotFound)
			}
			names = []string{}
		}
		return names, nil
	})
}

// Mkdirs creates the directory marker for path and every missing ancestor.
// An already-existing path is a negative result, not an error.
func (s *S3UnderFileSystem) Mkdirs(ctx context.Context, path string, createParent bool) (bool, error) {
	return observe(s, "mkdirs", func() (bool, error) {
		return withRetries(s, "mkdirs", func() (bool, error) {
			found, err := s.exists(ctx, path)
			if err != nil {
				return false, err
			}
			if found {
				return false, nil
			}

			plan, err := underfs.AncestorPlan(path, func(p string) (bool, error) {
				return s.exists(ctx, p)
			})
			if err != nil {
				return false, err
			}

			for _, dir := range plan {
				if err := s.putMarker(ctx, dir); err != nil {
					return false, err
				}
			}
			return true, nil
		})
	})
}

func (s *S3UnderFileSystem) putMarker(ctx context.Context, path string) error {
	key := s.dirKey(path)
	if key == "" || key == "/" {
		return nil
	}
	_, err := s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return fmt.Errorf("failed to create directory marker %s: %w", path, err)
	}
	return nil
}

// Rename moves src to dst by copy-then-delete, guarded by sequential
// existence probes. Directories are renamed key by key; the operation is
// not atomic.
func (s *S3UnderFileSystem) Rename(ctx context.Context, src, dst string) (bool, error) {
	return observe(s, "rename", func() (bool, error) {
		srcExists, err := s.Exists(ctx, src)
		if err != nil {
			return false, err
		}
		if !srcExists {
			logger.Error("rename of %s to %s failed: source does not exist", src, dst)
			return false, nil
		}

		dstExists, err := s.Exists(ctx, dst)
		if err != nil {
			return false, err
		}
		if dstExists {
			logger.Error("rename of %s to %s failed: destination already exists", src, dst)
			return false, nil
		}

		return withRetries(s, "rename", func() (bool, error) {
			isFile, err := s.headObject(ctx, s.objectKey(src))
			if err != nil {
				return false, err
			}

			if isFile {
				if err := s.copyKey(ctx, s.objectKey(src), s.objectKey(dst)); err != nil {
					return false, err
				}
				return s.deleteKey(ctx, s.objectKey(src))
			}

			keys, err := s.listSubtreeKeys(ctx, src)
			if err != nil {
				return false, err
			}
			srcPrefix := s.dirKey(src)
			dstPrefix := s.dirKey(dst)
			for _, key := range keys {
				if err := s.copyKey(ctx, key, dstPrefix+strings.TrimPrefix(key, srcPrefix)); err != nil {
					return false, err
				}
			}
			return s.deleteKeys(ctx, keys)
		})
	})
}

// BlockSizeBytes reports the fixed chunking hint; objects have no block
// size of their own.
func (s *S3UnderFileSystem) BlockSizeBytes(ctx context.Context, path string) (int64, error) {
	return observe(s, "block_size", func() (int64, error) {
		isFile, err := s.headObject(ctx, s.objectKey(path))
		if err != nil {
			return 0, err
		}
		if !isFile {
			return 0, fmt.Errorf("%s: %w", path, underfs.ErrPathNotFound)
		}
		return defaultBlockSizeBytes, nil
	})
}

// FileSize returns the object length, or FileSizeUnknown when every attempt
// failed.
func (s *S3UnderFileSystem) FileSize(ctx context.Context, path string) (int64, error) {
	return observe(s, "file_size", func() (int64, error) {
		size, err := withRetries(s, "file_size", func() (int64, error) {
			out, err := s.client.HeadObject(ctx, &awss3.HeadObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    aws.String(s.objectKey(path)),
			})
			if err != nil {
				return 0, mapNotFound(path, err)
			}
			if out.ContentLength == nil {
				return 0, fmt.Errorf("no content length for %s", path)
			}
			return *out.ContentLength, nil
		})
		if err != nil {
			logger.Error("file size for %s unavailable: %v", path, err)
			return underfs.FileSizeUnknown, nil
		}
		return size, nil
	})
}

// ModificationTimeMs returns the object's last-modified time as epoch
// milliseconds.
func (s *S3UnderFileSystem) ModificationTimeMs(ctx context.Context, path string) (int64, error) {
	return observe(s, "modification_time", func() (int64, error) {
		out, err := s.client.HeadObject(ctx, &awss3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.objectKey(path)),
		})
		if err != nil {
			return 0, mapNotFound(path, err)
		}
		if out.LastModified == nil {
			return 0, fmt.Errorf("no last-modified time for %s", path)
		}
		return out.LastModified.UnixMilli(), nil
	})
}

// FileLocations is always empty: object storage exposes no block topology.
func (s *S3UnderFileSystem) FileLocations(ctx context.Context, path string, offset int64) ([]string, error) {
	return []string{}, nil
}

// Space reports SpaceUnknown: a bucket has no queryable capacity.
func (s *S3UnderFileSystem) Space(ctx context.Context, path string, kind underfs.SpaceType) (int64, error) {
	switch kind {
	case underfs.SpaceTotal, underfs.SpaceUsed, underfs.SpaceFree:
		return underfs.SpaceUnknown, nil
	default:
		return 0, fmt.Errorf("%v: %w", kind, underfs.ErrUnknownSpaceType)
	}
}

// SetPermission is a no-op: objects have no POSIX permission bits. The mode
// string is still validated so misconfiguration surfaces uniformly.
func (s *S3UnderFileSystem) SetPermission(ctx context.Context, path string, posixPerm string) error {
	if !validPosixPermission(posixPerm) {
		return fmt.Errorf("%q: %w", posixPerm, underfs.ErrInvalidPermission)
	}
	logger.Debug("ignoring permission change of %s to %s: object storage has no permission bits", path, posixPerm)
	return nil
}

// ConnectFromMaster is a no-op: bucket credentials are ambient, not
// role-scoped logins.
func (s *S3UnderFileSystem) ConnectFromMaster(ctx context.Context, host string) error {
	return nil
}

// ConnectFromWorker is a no-op, like ConnectFromMaster.
func (s *S3UnderFileSystem) ConnectFromWorker(ctx context.Context, host string) error {
	return nil
}

// Close releases nothing: the S3 client is a shared handle.
func (s *S3UnderFileSystem) Close() error {
	return nil
}

// headObject reports whether key names an existing object.
func (s *S3UnderFileSystem) headObject(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &awss3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to head %s: %w", key, err)
	}
	return true, nil
}

// listSubtreeKeys returns every key under path's directory prefix,
// including its marker.
func (s *S3UnderFileSystem) listSubtreeKeys(ctx context.Context, path string) ([]string, error) {
	prefix := s.dirKey(path)
	var keys []string
	var continuation *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &awss3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuation,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", path, err)
		}
		for _, obj := range out.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			return keys, nil
		}
		continuation = out.NextContinuationToken
	}
}

func hasChildren(keys []string, markerKey string) bool {
	for _, key := range keys {
		if key != markerKey {
			return true
		}
	}
	return false
}

func (s *S3UnderFileSystem) copyKey(ctx context.Context, srcKey, dstKey string) error {
	_, err := s.client.CopyObject(ctx, &awss3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		CopySource: aws.String(s.bucket + "/" + srcKey),
		Key:        aws.String(dstKey),
	})
	if err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", srcKey, dstKey, err)
	}
	return nil
}

func (s *S3UnderFileSystem) deleteKey(ctx context.Context, key string) (bool, error) {
	_, err := s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return true, nil
}

// deleteKeys removes keys in batches of at most 1000, the S3 per-request
// limit.
func (s *S3UnderFileSystem) deleteKeys(ctx context.Context, keys []string) (bool, error) {
	const maxBatchSize = 1000

	for i := 0; i < len(keys); i += maxBatchSize {
		end := i + maxBatchSize
		if end > len(keys) {
			end = len(keys)
		}

		objects := make([]types.ObjectIdentifier, 0, end-i)
		for _, key := range keys[i:end] {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
		}

		out, err := s.client.DeleteObjects(ctx, &awss3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return false, fmt.Errorf("failed to batch delete under %s: %w", s.bucket, err)
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return false, fmt.Errorf("failed to delete %s: %s",
				aws.ToString(first.Key), aws.ToString(first.Message))
		}
	}
	return true, nil
}

// mapNotFound translates the SDK's not-found failures into the adapter's
// ErrPathNotFound sentinel.
func mapNotFound(path string, err error) error {
	if err == nil {
		return nil
	}
	if isNotFound(err) {
		return fmt.Errorf("%s: %w", path, underfs.ErrPathNotFound)
	}
	return err
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	return errors.As(err, &notFound)
}

// validPosixPermission reports whether perm parses as an octal mode within
// 0777.
func validPosixPermission(perm string) bool {
	mode, err := strconv.ParseUint(perm, 8, 32)
	return err == nil && mode <= 0777
}
