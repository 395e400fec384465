// Package minio is a MinIO SDK driver for the same network volume contract as
// the s3 driver. It is selected with VOLSTORE_DRIVER=minio.
package minio

import (
	"context"
	stderr "errors"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"

	"github.com/volstore/volstore/internal/config"
	"github.com/volstore/volstore/pkg/errors"
	"github.com/volstore/volstore/pkg/types"
)

// DriverName identifies this driver in logs and metrics.
const DriverName = "minio"

// API is the subset of the MinIO client used by Client.
type API interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	OpenObject(ctx context.Context, bucketName, objectName string) (io.ReadCloser, error)
}

// sdkAPI adapts *minio.Client to API.
type sdkAPI struct {
	*minio.Client
}

// OpenObject returns a reader for the object. The object is stat'ed first so a
// missing key fails here instead of on the first Read.
func (s sdkAPI) OpenObject(ctx context.Context, bucketName, objectName string) (io.ReadCloser, error) {
	obj, err := s.GetObject(ctx, bucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, err
	}
	return obj, nil
}

// Client is the MinIO-backed remote object store client.
type Client struct {
	api        API
	bucket     string
	prefix     string
	endpoint   string
	datacenter string
	timeout    time.Duration

	metrics types.MetricsCollector
	logger  zerolog.Logger
}

var _ types.ObjectStore = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
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

// New connects to the datacenter endpoint and checks that the volume exists.
func New(ctx context.Context, cfg config.StorageConfig, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	endpoint, err := cfg.Endpoint()
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, "invalid endpoint URL", err).WithComponent(DriverName)
	}

	mc, err := minio.New(u.Host, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       u.Scheme == "https",
		Region:       cfg.Region(),
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, "failed to create MinIO client", err).WithComponent(DriverName)
	}

	client, err := NewWithAPI(sdkAPI{mc}, cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := client.HealthCheck(ctx); err != nil {
		return nil, err
	}

	client.logger.Info().
		Str("endpoint", endpoint).
		Str("datacenter", client.datacenter).
		Dur("timeout", client.timeout).
		Msg("MinIO client initialized")
	return client, nil
}

// NewWithAPI builds a Client around an existing API without contacting the service.
func NewWithAPI(api API, cfg config.StorageConfig, opts ...Option) (*Client, error) {
	if api == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "MinIO API client is nil").WithComponent(DriverName)
	}
	endpoint, err := cfg.Endpoint()
	if err != nil {
		return nil, err
	}
	if cfg.VolumeID == "" {
		return nil, errors.NewError(errors.ErrCodeMissingConfig, "bucket name cannot be empty").WithComponent(DriverName)
	}

	c := &Client{
		api:        api,
		bucket:     cfg.VolumeID,
		prefix:     cfg.KeyPrefix,
		endpoint:   endpoint,
		datacenter: cfg.Region(),
		timeout:    cfg.RequestTimeout,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "minio-client").Str("bucket", c.bucket).Logger()
	return c, nil
}

// HealthCheck verifies the volume exists and the credentials are accepted.
func (c *Client) HealthCheck(ctx context.Context) error {
	start := time.Now()
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	exists, err := c.api.BucketExists(ctx, c.bucket)
	if err == nil && !exists {
		err = errors.NewError(errors.ErrCodeBucketNotFound, fmt.Sprintf("bucket %s does not exist", c.bucket)).
			WithComponent(DriverName).WithOperation("HealthCheck")
	} else if err != nil {
		err = translateError(err, "HealthCheck", c.bucket, errors.ErrCodeBucketNotFound)
	}
	c.observe("health_check", start, 0, err)
	if err != nil {
		c.logFailure("health_check", c.bucket, err)
		return err
	}
	return nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
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

// translateError maps a MinIO error onto the volstore taxonomy.
func translateError(err error, operation, key string, notFound errors.ErrorCode) *errors.VolstoreError {
	return errors.Wrap(classify(err, notFound), fmt.Sprintf("%s failed for %s", operation, key), err).
		WithComponent(DriverName).
		WithOperation(operation).
		WithContext("key", key)
}

func classify(err error, notFound errors.ErrorCode) errors.ErrorCode {
	switch {
	case stderr.Is(err, context.DeadlineExceeded):
		return errors.ErrCodeOperationTimeout
	case stderr.Is(err, context.Canceled):
		return errors.ErrCodeOperationCanceled
	}

	var resp minio.ErrorResponse
	if stderr.As(err, &resp) {
		if code, ok := errors.FromRemoteCode(resp.Code); ok {
			return withNotFound(code, notFound)
		}
		if code, ok := errors.FromHTTPStatus(resp.StatusCode); ok {
			return withNotFound(code, notFound)
		}
	}

	var urlErr *url.Error
	if stderr.As(err, &urlErr) {
		if urlErr.Timeout() {
			return errors.ErrCodeConnectionTimeout
		}
		return errors.ErrCodeNetworkError
	}

	return errors.ErrCodeOperationFailed
}

func withNotFound(code, notFound errors.ErrorCode) errors.ErrorCode {
	if code == errors.ErrCodeObjectNotFound {
		return notFound
	}
	return code
}
