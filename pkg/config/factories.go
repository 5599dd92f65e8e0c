package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsretry "github.com/aws/aws-sdk-go-v2/aws/retry"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/mitchellh/mapstructure"

	"github.com/underfs/underfs/pkg/metrics"
	"github.com/underfs/underfs/pkg/security"
	"github.com/underfs/underfs/pkg/underfs"
	underfshdfs "github.com/underfs/underfs/pkg/underfs/hdfs"
	underfss3 "github.com/underfs/underfs/pkg/underfs/s3"
)

// CreateUnderFileSystem creates an under filesystem based on configuration.
//
// This factory uses the Type field to determine which backend to build,
// then decodes the type-specific options from the corresponding map and
// passes them to the backend's constructor.
//
// Supported types:
//   - "hdfs": pkg/underfs/hdfs over a namenode connection
//   - "s3": pkg/underfs/s3 over a bucket
func CreateUnderFileSystem(ctx context.Context, cfg *Config) (underfs.UnderFileSystem, error) {
	var m underfs.Metrics
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		m = metrics.NewUFSMetrics(cfg.UnderFS.Type)
	}

	switch cfg.UnderFS.Type {
	case "hdfs":
		return createHdfsUnderFS(&cfg.UnderFS, m)
	case "s3":
		return createS3UnderFS(ctx, &cfg.UnderFS, m)
	default:
		return nil, fmt.Errorf("unknown under filesystem type: %q", cfg.UnderFS.Type)
	}
}

// createHdfsUnderFS creates the HDFS backend.
func createHdfsUnderFS(cfg *UnderFSConfig, m underfs.Metrics) (underfs.UnderFileSystem, error) {
	type hdfsOptions struct {
		// Address is the namenode "host:port"; falls back to Prefix.
		Address string `mapstructure:"address"`

		// User is the username to act as on non-secured clusters.
		User string `mapstructure:"user"`

		// ConfResourcePath points at a Hadoop configuration directory or file.
		ConfResourcePath string `mapstructure:"conf_resource_path"`

		// ServicePrincipalName is the namenode service principal, e.g. "nn/_HOST".
		ServicePrincipalName string `mapstructure:"service_principal_name"`

		// KrbConfPath overrides the Kerberos configuration file location.
		KrbConfPath string `mapstructure:"krb5_conf_path"`

		// KeytabPath/Principal, when both set, log in before dialing so the
		// connection itself is authenticated.
		KeytabPath string `mapstructure:"keytab_path"`
		Principal  string `mapstructure:"principal"`

		// Role-scoped login pairs for the connect hooks.
		MasterKeytabPath string `mapstructure:"master_keytab_path"`
		MasterPrincipal  string `mapstructure:"master_principal"`
		WorkerKeytabPath string `mapstructure:"worker_keytab_path"`
		WorkerPrincipal  string `mapstructure:"worker_principal"`
	}

	var opts hdfsOptions
	if err := mapstructure.Decode(cfg.Hdfs, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode hdfs options: %w", err)
	}

	if opts.KeytabPath != "" && opts.Principal != "" {
		err := security.Login(security.LoginConfig{
			KeytabPath:    opts.KeytabPath,
			Principal:     opts.Principal,
			KrbConfigPath: opts.KrbConfPath,
		})
		if err != nil {
			return nil, fmt.Errorf("hdfs login failed: %w", err)
		}
	}

	address := opts.Address
	if address == "" {
		address = cfg.Prefix
	}

	client, err := underfshdfs.NewClient(underfshdfs.ClientOptions{
		Address:              address,
		User:                 opts.User,
		ConfResourcePath:     opts.ConfResourcePath,
		KerberosClient:       security.KerberosClient(),
		ServicePrincipalName: opts.ServicePrincipalName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create hdfs client: %w", err)
	}

	return underfshdfs.New(client, underfshdfs.Config{
		Prefix:           cfg.Prefix,
		MaxRetryAttempts: cfg.MaxRetryAttempts,
		MasterLogin: security.LoginConfig{
			KeytabPath:    opts.MasterKeytabPath,
			Principal:     opts.MasterPrincipal,
			KrbConfigPath: opts.KrbConfPath,
		},
		WorkerLogin: security.LoginConfig{
			KeytabPath:    opts.WorkerKeytabPath,
			Principal:     opts.WorkerPrincipal,
			KrbConfigPath: opts.KrbConfPath,
		},
		Metrics: m,
	}), nil
}

// createS3UnderFS creates the S3 backend.
func createS3UnderFS(ctx context.Context, cfg *UnderFSConfig, m underfs.Metrics) (underfs.UnderFileSystem, error) {
	type s3Options struct {
		Region          string `mapstructure:"region"`
		Bucket          string `mapstructure:"bucket"`
		KeyPrefix       string `mapstructure:"key_prefix"`
		Endpoint        string `mapstructure:"endpoint"`
		AccessKeyID     string `mapstructure:"access_key_id"`
		SecretAccessKey string `mapstructure:"secret_access_key"`
		MaxRetries      int    `mapstructure:"max_retries"`
	}

	var opts s3Options
	if err := mapstructure.Decode(cfg.S3, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode s3 options: %w", err)
	}

	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 under filesystem: bucket is required")
	}
	if opts.Region == "" {
		return nil, fmt.Errorf("s3 under filesystem: region is required")
	}

	var configOptions []func(*awsconfig.LoadOptions) error
	configOptions = append(configOptions, awsconfig.WithRegion(opts.Region))

	// Custom endpoint supports S3-compatible stores (MinIO, Localstack, ...)
	if opts.Endpoint != "" {
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		customResolver := aws.EndpointResolverWithOptionsFunc(
			func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
				return aws.Endpoint{
					URL:               opts.Endpoint,
					HostnameImmutable: true,
					Source:            aws.EndpointSourceCustom,
				}, nil
			},
		)
		//nolint:staticcheck // TODO: migrate to BaseEndpoint when AWS SDK v2 stabilizes the new API
		configOptions = append(configOptions, awsconfig.WithEndpointResolverWithOptions(customResolver))
	}

	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(
			opts.AccessKeyID,
			opts.SecretAccessKey,
			"",
		)
		configOptions = append(configOptions, awsconfig.WithCredentialsProvider(credProvider))
	}

	// SDK-level retries cover transport failures (502, 503, timeouts); the
	// adapter's own counting retry sits above them.
	if opts.MaxRetries > 0 {
		configOptions = append(configOptions, awsconfig.WithRetryer(func() aws.Retryer {
			return awsretry.NewStandard(func(o *awsretry.StandardOptions) {
				o.MaxAttempts = opts.MaxRetries
			})
		}))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := awss3.NewFromConfig(awsCfg, func(o *awss3.Options) {
		o.UsePathStyle = opts.Endpoint != ""
	})

	return underfss3.New(underfss3.Config{
		Client:           client,
		Bucket:           opts.Bucket,
		KeyPrefix:        opts.KeyPrefix,
		MaxRetryAttempts: cfg.MaxRetryAttempts,
		Metrics:          m,
	})
}
