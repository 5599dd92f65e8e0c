package hdfs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/underfs/underfs/pkg/underfs"
)

var errRemote = errors.New("connection reset by namenode")

// fakeClient is a map-backed Client with scripted failures per method.
// failOps maps a method name to the number of times it should fail before
// succeeding; -1 means fail forever.
type fakeClient struct {
	nodes    map[string]underfs.FileInfo
	children map[string][]underfs.FileInfo
	failOps  map[string]int
	calls    map[string]int

	mkdirs     []string
	mkdirPerms []os.FileMode
	renames    [][2]string
	chmods     map[string]os.FileMode
}

func newFake(existing ...underfs.FileInfo) *fakeClient {
	f := &fakeClient{
		nodes:    make(map[string]underfs.FileInfo),
		children: make(map[string][]underfs.FileInfo),
		failOps:  make(map[string]int),
		calls:    make(map[string]int),
		chmods:   make(map[string]os.FileMode),
	}
	for _, info := range existing {
		f.nodes[info.Path] = info
	}
	return f
}

func (f *fakeClient) step(op string) error {
	f.calls[op]++
	n := f.failOps[op]
	if n == 0 {
		return nil
	}
	if n > 0 {
		f.failOps[op] = n - 1
	}
	return errRemote
}

func (f *fakeClient) notFound(path string) error {
	return underfs.ErrPathNotFound
}

func (f *fakeClient) Create(path string, perm os.FileMode) (io.WriteCloser, error) {
	if err := f.step("create"); err != nil {
		return nil, err
	}
	f.nodes[path] = underfs.FileInfo{Path: path, BlockSizeBytes: defaultBlockSizeBytes}
	return nopWriteCloser{}, nil
}

func (f *fakeClient) Open(path string) (io.ReadCloser, error) {
	if err := f.step("open"); err != nil {
		return nil, err
	}
	if _, ok := f.nodes[path]; !ok {
		return nil, f.notFound(path)
	}
	return io.NopCloser(bytes.NewReader(nil)), nil
}

func (f *fakeClient) Delete(path string, recursive bool) error {
	if err := f.step("delete"); err != nil {
		return err
	}
	if _, ok := f.nodes[path]; !ok {
		return f.notFound(path)
	}
	delete(f.nodes, path)
	return nil
}

func (f *fakeClient) Rename(src, dst string) error {
	if err := f.step("rename"); err != nil {
		return err
	}
	f.renames = append(f.renames, [2]string{src, dst})
	if info, ok := f.nodes[src]; ok {
		delete(f.nodes, src)
		info.Path = dst
		f.nodes[dst] = info
	}
	return nil
}

func (f *fakeClient) Mkdir(path string, perm os.FileMode) error {
	if err := f.step("mkdir"); err != nil {
		return err
	}
	f.mkdirs = append(f.mkdirs, path)
	f.mkdirPerms = append(f.mkdirPerms, perm)
	f.nodes[path] = underfs.FileInfo{Path: path, Dir: true}
	return nil
}

func (f *fakeClient) Exists(path string) (bool, error) {
	if err := f.step("exists"); err != nil {
		return false, err
	}
	_, ok := f.nodes[path]
	return ok, nil
}

func (f *fakeClient) Stat(path string) (underfs.FileInfo, error) {
	if err := f.step("stat"); err != nil {
		return underfs.FileInfo{}, err
	}
	info, ok := f.nodes[path]
	if !ok {
		return underfs.FileInfo{}, f.notFound(path)
	}
	return info, nil
}

func (f *fakeClient) ListStatus(path string) ([]underfs.FileInfo, error) {
	if err := f.step("list"); err != nil {
		return nil, err
	}
	return f.children[path], nil
}

func (f *fakeClient) Chmod(path string, perm os.FileMode) error {
	if err := f.step("chmod"); err != nil {
		return err
	}
	f.chmods[path] = perm
	return nil
}

type nopWriteCloser struct{}

func (nopWriteCloser) Write(p []byte) (int, error) { return len(p), nil }
func (nopWriteCloser) Close() error                { return nil }

// statsClient adds the cluster-statistics capability to the fake.
type statsClient struct {
	*fakeClient
	stats    underfs.ClusterStatistics
	statsErr error
}

func (s *statsClient) ClusterStatistics(ctx context.Context) (underfs.ClusterStatistics, error) {
	return s.stats, s.statsErr
}

// locatorClient adds the block-location capability to the fake.
type locatorClient struct {
	*fakeClient
	hosts   []string
	locErr  error
	offsets []int64
}

func (l *locatorClient) BlockLocations(path string, offset int64) ([]string, error) {
	l.offsets = append(l.offsets, offset)
	return l.hosts, l.locErr
}

type recordingMetrics struct {
	retries     map[string]int
	exhaustions map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		retries:     make(map[string]int),
		exhaustions: make(map[string]int),
	}
}

func (m *recordingMetrics) ObserveOperation(op string, elapsed time.Duration, err error) {}
func (m *recordingMetrics) ObserveRetry(op string)                                       { m.retries[op]++ }
func (m *recordingMetrics) ObserveExhaustion(op string)                                  { m.exhaustions[op]++ }

func file(path string, length int64) underfs.FileInfo {
	return underfs.FileInfo{
		Path:           path,
		Length:         length,
		BlockSizeBytes: 64 * 1024 * 1024,
		ModTimeMs:      1700000000000,
	}
}

func directory(path string) underfs.FileInfo {
	return underfs.FileInfo{Path: path, Dir: true}
}

func newUFS(t *testing.T, client Client, opts ...func(*Config)) *HdfsUnderFileSystem {
	t.Helper()
	cfg := Config{Prefix: "hdfs://namenode:8020", MaxRetryAttempts: 5}
	for _, opt := range opts {
		opt(&cfg)
	}
	return New(client, cfg)
}

func TestRetryBoundAndExhaustion(t *testing.T) {
	fake := newFake()
	fake.failOps["create"] = -1
	m := newRecordingMetrics()
	u := newUFS(t, fake, func(c *Config) { c.Metrics = m })

	_, err := u.Create(context.Background(), "/data/out")

	require.Error(t, err)
	assert.ErrorIs(t, err, underfs.ErrRetriesExhausted)
	assert.ErrorIs(t, err, errRemote)
	assert.Equal(t, 5, fake.calls["create"], "should attempt exactly the configured bound")
	assert.Equal(t, 4, m.retries["create"], "every attempt after the first is a retry")
	assert.Equal(t, 1, m.exhaustions["create"])
}

func TestRetryRecoversFromTransientFailure(t *testing.T) {
	fake := newFake()
	fake.failOps["create"] = 2
	m := newRecordingMetrics()
	u := newUFS(t, fake, func(c *Config) { c.Metrics = m })

	w, err := u.Create(context.Background(), "/data/out")

	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, 3, fake.calls["create"])
	assert.Equal(t, 2, m.retries["create"])
	assert.Zero(t, m.exhaustions["create"])
}

func TestRetryShortCircuitsOnMissingPath(t *testing.T) {
	fake := newFake()
	u := newUFS(t, fake)

	_, err := u.Open(context.Background(), "/missing")

	require.Error(t, err)
	assert.ErrorIs(t, err, underfs.ErrPathNotFound)
	assert.NotErrorIs(t, err, underfs.ErrRetriesExhausted)
	assert.Equal(t, 1, fake.calls["open"], "absence is definitive, not transient")
}

func TestDefaultRetryBound(t *testing.T) {
	fake := newFake()
	fake.failOps["create"] = -1
	u := newUFS(t, fake, func(c *Config) { c.MaxRetryAttempts = 0 })

	_, err := u.Create(context.Background(), "/data/out")

	require.Error(t, err)
	assert.Equal(t, 5, fake.calls["create"])
}

func TestCreateWithOptionsDegradesToPlainCreate(t *testing.T) {
	fake := newFake()
	u := newUFS(t, fake)

	w, err := u.CreateWithOptions(context.Background(), "/data/out", underfs.CreateOptions{
		Replication:    10,
		BlockSizeBytes: 1 << 30,
	})

	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, 1, fake.calls["create"])
}

func TestDeleteMissingPathIsNegativeNotError(t *testing.T) {
	fake := newFake()
	u := newUFS(t, fake)

	ok, err := u.Delete(context.Background(), "/missing", false)

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteExistingPath(t *testing.T) {
	fake := newFake(file("/data/a", 1))
	u := newUFS(t, fake)

	ok, err := u.Delete(context.Background(), "/data/a", false)

	require.NoError(t, err)
	assert.True(t, ok)
	_, present := fake.nodes["/data/a"]
	assert.False(t, present)
}

func TestIsFile(t *testing.T) {
	fake := newFake(file("/data/a", 1), directory("/data/dir"))
	u := newUFS(t, fake)

	isFile, err := u.IsFile(context.Background(), "/data/a")
	require.NoError(t, err)
	assert.True(t, isFile)

	isFile, err = u.IsFile(context.Background(), "/data/dir")
	require.NoError(t, err)
	assert.False(t, isFile)

	isFile, err = u.IsFile(context.Background(), "/missing")
	require.NoError(t, err, "missing path is a negative result, not an error")
	assert.False(t, isFile)
}

func TestListReturnsRelativeChildNames(t *testing.T) {
	fake := newFake(directory("/data"))
	fake.children["/data"] = []underfs.FileInfo{
		file("/data/a.txt", 1),
		directory("/data/sub"),
	}
	u := newUFS(t, fake)

	names, err := u.List(context.Background(), "/data")

	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "sub"}, names)
}

func TestListMissingPath(t *testing.T) {
	u := newUFS(t, newFake())

	_, err := u.List(context.Background(), "/missing")

	assert.ErrorIs(t, err, underfs.ErrPathNotFound)
}

func TestListFileIsNotDirectory(t *testing.T) {
	u := newUFS(t, newFake(file("/data/a", 1)))

	_, err := u.List(context.Background(), "/data/a")

	assert.ErrorIs(t, err, underfs.ErrNotDirectory)
}

func TestMkdirsExistingPathReturnsFalseWithoutCreating(t *testing.T) {
	fake := newFake(directory("/data"))
	u := newUFS(t, fake)

	created, err := u.Mkdirs(context.Background(), "/data", true)

	require.NoError(t, err)
	assert.False(t, created)
	assert.Empty(t, fake.mkdirs)
}

func TestMkdirsCreatesMissingAncestorsTopDown(t *testing.T) {
	fake := newFake(directory("/a"))
	u := newUFS(t, fake)

	created, err := u.Mkdirs(context.Background(), "/a/b/c", true)

	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, []string{"/a/b", "/a/b/c"}, fake.mkdirs, "parent created before child")
	for _, perm := range fake.mkdirPerms {
		assert.Equal(t, Permission, perm, "every level gets the fixed mask")
	}
}

func TestMkdirsFromEmptyRoot(t *testing.T) {
	fake := newFake(directory("/"))
	u := newUFS(t, fake)

	created, err := u.Mkdirs(context.Background(), "/x/y", false)

	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, []string{"/x", "/x/y"}, fake.mkdirs)
}

func TestRenameMissingSourceFails(t *testing.T) {
	fake := newFake()
	u := newUFS(t, fake)

	ok, err := u.Rename(context.Background(), "/src", "/dst")

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, fake.renames, "guarded rename never issues the move")
}

func TestRenameExistingDestinationFails(t *testing.T) {
	fake := newFake(file("/src", 1), file("/dst", 2))
	u := newUFS(t, fake)

	ok, err := u.Rename(context.Background(), "/src", "/dst")

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, fake.renames)
}

func TestRenameSucceeds(t *testing.T) {
	fake := newFake(file("/src", 1))
	u := newUFS(t, fake)

	ok, err := u.Rename(context.Background(), "/src", "/dst")

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, [][2]string{{"/src", "/dst"}}, fake.renames)
}

func TestFileSize(t *testing.T) {
	u := newUFS(t, newFake(file("/data/a", 42)))

	size, err := u.FileSize(context.Background(), "/data/a")

	require.NoError(t, err)
	assert.Equal(t, int64(42), size)
}

func TestFileSizeSwallowsExhaustionToUnknown(t *testing.T) {
	fake := newFake(file("/data/a", 42))
	fake.failOps["stat"] = -1
	u := newUFS(t, fake)

	size, err := u.FileSize(context.Background(), "/data/a")

	require.NoError(t, err, "size query failure is reported in-band")
	assert.Equal(t, underfs.FileSizeUnknown, size)
}

func TestFileSizeMissingPathIsUnknown(t *testing.T) {
	u := newUFS(t, newFake())

	size, err := u.FileSize(context.Background(), "/missing")

	require.NoError(t, err)
	assert.Equal(t, underfs.FileSizeUnknown, size)
}

func TestBlockSizeAndModificationTime(t *testing.T) {
	info := file("/data/a", 42)
	u := newUFS(t, newFake(info))

	blockSize, err := u.BlockSizeBytes(context.Background(), "/data/a")
	require.NoError(t, err)
	assert.Equal(t, info.BlockSizeBytes, blockSize)

	modTime, err := u.ModificationTimeMs(context.Background(), "/data/a")
	require.NoError(t, err)
	assert.Equal(t, info.ModTimeMs, modTime)

	_, err = u.BlockSizeBytes(context.Background(), "/missing")
	assert.ErrorIs(t, err, underfs.ErrPathNotFound)
}

func TestFileLocationsWithoutCapabilityIsEmpty(t *testing.T) {
	u := newUFS(t, newFake(file("/data/a", 1)))

	hosts, err := u.FileLocations(context.Background(), "/data/a", 0)

	require.NoError(t, err)
	assert.Empty(t, hosts)
}

func TestFileLocationsWithCapability(t *testing.T) {
	loc := &locatorClient{fakeClient: newFake(file("/data/a", 1)), hosts: []string{"dn1", "dn2"}}
	u := newUFS(t, loc)

	hosts, err := u.FileLocations(context.Background(), "/data/a", 1<<27)

	require.NoError(t, err)
	assert.Equal(t, []string{"dn1", "dn2"}, hosts)
	assert.Equal(t, []int64{1 << 27}, loc.offsets)
}

func TestFileLocationsLookupFailureIsEmpty(t *testing.T) {
	loc := &locatorClient{fakeClient: newFake(), locErr: errRemote}
	u := newUFS(t, loc)

	hosts, err := u.FileLocations(context.Background(), "/data/a", 0)

	require.NoError(t, err, "location data is a hint, never a hard failure")
	assert.Empty(t, hosts)
}

func TestSpaceWithoutCapabilityIsUnknown(t *testing.T) {
	u := newUFS(t, newFake())

	for _, kind := range []underfs.SpaceType{underfs.SpaceTotal, underfs.SpaceUsed, underfs.SpaceFree} {
		got, err := u.Space(context.Background(), "/", kind)
		require.NoError(t, err)
		assert.Equal(t, underfs.SpaceUnknown, got)
	}
}

func TestSpaceWithCapability(t *testing.T) {
	sc := &statsClient{
		fakeClient: newFake(),
		stats:      underfs.ClusterStatistics{Capacity: 1000, Used: 400, Remaining: 600},
	}
	u := newUFS(t, sc)

	tests := []struct {
		kind underfs.SpaceType
		want int64
	}{
		{underfs.SpaceTotal, 1000},
		{underfs.SpaceUsed, 400},
		{underfs.SpaceFree, 600},
	}
	for _, tc := range tests {
		got, err := u.Space(context.Background(), "/anywhere", tc.kind)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
}

func TestSpaceUnknownType(t *testing.T) {
	sc := &statsClient{fakeClient: newFake()}
	u := newUFS(t, sc)

	_, err := u.Space(context.Background(), "/", underfs.SpaceType(99))

	assert.ErrorIs(t, err, underfs.ErrUnknownSpaceType)
}

func TestSetPermission(t *testing.T) {
	fake := newFake(file("/data/a", 1))
	u := newUFS(t, fake)

	err := u.SetPermission(context.Background(), "/data/a", "0644")

	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), fake.chmods["/data/a"])
}

func TestSetPermissionRejectsMalformedMode(t *testing.T) {
	fake := newFake(file("/data/a", 1))
	u := newUFS(t, fake)

	for _, bad := range []string{"", "rwxr-xr-x", "999", "01777"} {
		err := u.SetPermission(context.Background(), "/data/a", bad)
		assert.ErrorIs(t, err, underfs.ErrInvalidPermission, "mode %q", bad)
	}
	assert.Empty(t, fake.chmods)
}

func TestSetPermissionMissingPath(t *testing.T) {
	u := newUFS(t, newFake())

	err := u.SetPermission(context.Background(), "/missing", "0644")

	assert.ErrorIs(t, err, underfs.ErrPathNotFound)
}

func TestConnectHooksAreNoOpsWithoutCredentials(t *testing.T) {
	u := newUFS(t, newFake())

	assert.NoError(t, u.ConnectFromMaster(context.Background(), "master-1"))
	assert.NoError(t, u.ConnectFromWorker(context.Background(), "worker-7"))
}

func TestCloseIsNoOp(t *testing.T) {
	u := newUFS(t, newFake())

	assert.NoError(t, u.Close())

	// The shared handle stays usable after Close.
	ok, err := u.Exists(context.Background(), "/anything")
	require.NoError(t, err)
	assert.False(t, ok)
}
