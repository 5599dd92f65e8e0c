package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `
logging:
  level: debug
  format: json
underfs:
  type: hdfs
  prefix: hdfs://namenode:8020
  max_retry_attempts: 3
  hdfs:
    user: hdfsadmin
`)

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "DEBUG", cfg.Logging.Level, "level is normalized to uppercase")
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output, "defaulted")
	assert.Equal(t, "hdfs", cfg.UnderFS.Type)
	assert.Equal(t, "hdfs://namenode:8020", cfg.UnderFS.Prefix)
	assert.Equal(t, 3, cfg.UnderFS.MaxRetryAttempts)
	assert.Equal(t, "hdfsadmin", cfg.UnderFS.Hdfs["user"])
}

func TestLoadMissingFileFailsValidationWithoutAddress(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	_, err := Load("")

	require.Error(t, err, "defaults alone cannot name a namenode")
	assert.Contains(t, err.Error(), "underfs.hdfs")
}

func TestLoadRejectsInvalidLevel(t *testing.T) {
	path := writeConfigFile(t, `
logging:
  level: verbose
underfs:
  type: hdfs
  prefix: hdfs://namenode:8020
`)

	_, err := Load(path)

	assert.Error(t, err)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	path := writeConfigFile(t, `
underfs:
  type: gcs
`)

	_, err := Load(path)

	assert.Error(t, err)
}

func TestValidateRequiresHdfsAddress(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	err := Validate(cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "underfs.hdfs")
}

func TestValidateRequiresS3Bucket(t *testing.T) {
	cfg := &Config{UnderFS: UnderFSConfig{Type: "s3"}}
	ApplyDefaults(cfg)

	err := Validate(cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket")
}

func TestValidateAcceptsConfResourceOnly(t *testing.T) {
	cfg := &Config{UnderFS: UnderFSConfig{
		Type: "hdfs",
		Hdfs: map[string]any{"conf_resource_path": "/etc/hadoop/conf"},
	}}
	ApplyDefaults(cfg)

	assert.NoError(t, Validate(cfg))
}

func TestValidateRejectsMismatchedPrefixScheme(t *testing.T) {
	cfg := &Config{UnderFS: UnderFSConfig{
		Type:   "hdfs",
		Prefix: "s3://bucket/path",
	}}
	ApplyDefaults(cfg)

	err := Validate(cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheme")
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}

	ApplyDefaults(cfg)

	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, ":9090", cfg.Metrics.Listen)
	assert.False(t, cfg.Metrics.Enabled)
	assert.Equal(t, "hdfs", cfg.UnderFS.Type)
	assert.NotNil(t, cfg.UnderFS.Hdfs)
	assert.NotNil(t, cfg.UnderFS.S3)
}

func TestCreateUnderFileSystemUnknownType(t *testing.T) {
	cfg := &Config{UnderFS: UnderFSConfig{Type: "tape"}}

	_, err := CreateUnderFileSystem(context.Background(), cfg)

	assert.Error(t, err)
}

func TestCreateS3UnderFSRequiresBucketAndRegion(t *testing.T) {
	cfg := &Config{UnderFS: UnderFSConfig{Type: "s3", S3: map[string]any{}}}

	_, err := CreateUnderFileSystem(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket")

	cfg.UnderFS.S3["bucket"] = "data"
	_, err = CreateUnderFileSystem(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "region")
}
