package types

import (
	"context"
	"time"
)

// ObjectStore is the contract shared by the remote object store drivers.
// Keys are logical keys; drivers apply the configured key prefix.
type ObjectStore interface {
	// Existence and transfer
	Exists(ctx context.Context, key string) (bool, error)
	Upload(ctx context.Context, localPath, key string) error
	Download(ctx context.Context, key, localPath string) error
	Delete(ctx context.Context, key string) error

	// Enumeration
	List(ctx context.Context, prefix string) ([]string, error)
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Stats(ctx context.Context, prefix string) (Stats, error)

	// Addressing, no network call
	URL(key string) string
	URI(key string) string

	// Volume level
	HealthCheck(ctx context.Context) error
	Info(ctx context.Context) (StorageInfo, error)
	UploadDirectory(ctx context.Context, localDir, keyPrefix string) (TransferReport, error)
}

// MetricsCollector records storage and resolution outcomes.
type MetricsCollector interface {
	RecordOperation(driver, operation string, duration time.Duration, bytes int64, err error)
	RecordResolution(source string, success bool, duration time.Duration)
}
