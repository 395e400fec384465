package s3

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/volstore/volstore/internal/config"
	"github.com/volstore/volstore/pkg/errors"
	"github.com/volstore/volstore/pkg/types"
)

// DriverName identifies this driver in logs and metrics.
const DriverName = "s3"

// API is the subset of the S3 service client used by Client.
type API interface {
	manager.UploadAPIClient
	manager.DownloadAPIClient
	s3.ListObjectsV2APIClient

	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Client is the remote object store client for one network volume.
type Client struct {
	api        API
	uploader   *manager.Uploader
	downloader *manager.Downloader

	bucket     string
	prefix     string
	endpoint   string
	datacenter string

	partSize    int64
	concurrency int

	metrics types.MetricsCollector
	logger  zerolog.Logger
}

var _ types.ObjectStore = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. The client adds its own component fields.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m types.MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithPartSize sets the multipart part size used by the transfer manager.
func WithPartSize(size int64) Option {
	return func(c *Client) {
		if size >= manager.MinUploadPartSize {
			c.partSize = size
		}
	}
}

// WithConcurrency sets how many parts of one transfer run in parallel.
func WithConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// New validates cfg, builds an SDK client for the datacenter endpoint and
// checks that the volume is reachable with the given credentials.
func New(ctx context.Context, cfg config.StorageConfig, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	endpoint, err := cfg.Endpoint()
	if err != nil {
		return nil, err
	}
	retryMode, err := aws.ParseRetryMode(cfg.RetryMode)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, "invalid retry mode", err).WithComponent(DriverName)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region()),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		awsconfig.WithRetryMaxAttempts(cfg.MaxAttempts),
		awsconfig.WithRetryMode(retryMode),
		awsconfig.WithHTTPClient(awshttp.NewBuildableClient().WithTimeout(cfg.RequestTimeout)),
	)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeConfigLoad, "failed to load AWS config", err).WithComponent(DriverName)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	client, err := NewWithAPI(api, cfg, opts...)
	if err != nil {
		return nil, err
	}

	if err := client.HealthCheck(ctx); err != nil {
		return nil, err
	}

	client.logger.Info().
		Str("endpoint", endpoint).
		Str("datacenter", client.datacenter).
		Int("max_attempts", cfg.MaxAttempts).
		Str("retry_mode", cfg.RetryMode).
		Dur("timeout", cfg.RequestTimeout).
		Msg("S3 client initialized")

	return client, nil
}

// NewWithAPI builds a Client around an existing API implementation without
// contacting the service.
func NewWithAPI(api API, cfg config.StorageConfig, opts ...Option) (*Client, error) {
	if api == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "S3 API client is nil").WithComponent(DriverName)
	}
	endpoint, err := cfg.Endpoint()
	if err != nil {
		return nil, err
	}
	if cfg.VolumeID == "" {
		return nil, errors.NewError(errors.ErrCodeMissingConfig, "bucket name cannot be empty").WithComponent(DriverName)
	}

	c := &Client{
		api:         api,
		bucket:      cfg.VolumeID,
		prefix:      cfg.KeyPrefix,
		endpoint:    endpoint,
		datacenter:  cfg.Region(),
		partSize:    manager.DefaultUploadPartSize,
		concurrency: manager.DefaultUploadConcurrency,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "s3-client").Str("bucket", c.bucket).Logger()

	c.uploader = manager.NewUploader(api, func(u *manager.Uploader) {
		u.PartSize = c.partSize
		u.Concurrency = c.concurrency
	})
	c.downloader = manager.NewDownloader(api, func(d *manager.Downloader) {
		d.PartSize = c.partSize
		d.Concurrency = c.concurrency
	})

	return c, nil
}

// HealthCheck verifies the volume is reachable with the configured credentials
func (c *Client) HealthCheck(ctx context.Context) error {
	start := time.Now()
	_, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil {
		err = translateError(err, "HealthCheck", c.bucket, errors.ErrCodeBucketNotFound)
	}
	c.observe("health_check", start, 0, err)
	if err != nil {
		c.logFailure("health_check", c.bucket, err)
		return err
	}
	return nil
}

func (c *Client) observe(operation string, start time.Time, bytes int64, err error) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordOperation(DriverName, operation, time.Since(start), bytes, err)
}

func (c *Client) logFailure(operation, key string, err error) {
	event := c.logger.Error()
	if errors.IsNotFound(err) {
		event = c.logger.Warn()
	}
	event.Err(err).
		Str("operation", operation).
		Str("key", key).
		Str("code", string(errors.CodeOf(err))).
		Msg("Storage operation failed")
}
