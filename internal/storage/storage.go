// Package storage selects the remote object store driver named in the
// configuration.
package storage

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/volstore/volstore/internal/config"
	"github.com/volstore/volstore/internal/storage/minio"
	"github.com/volstore/volstore/internal/storage/s3"
	"github.com/volstore/volstore/pkg/errors"
	"github.com/volstore/volstore/pkg/types"
)

// Open validates cfg and connects the configured driver. Both drivers check the
// volume before returning, so a nil error means the store is reachable.
func Open(ctx context.Context, cfg config.StorageConfig, logger zerolog.Logger, metrics types.MetricsCollector) (types.ObjectStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Driver {
	case config.DriverS3, "":
		opts := []s3.Option{s3.WithLogger(logger)}
		if metrics != nil {
			opts = append(opts, s3.WithMetrics(metrics))
		}
		return s3.New(ctx, cfg, opts...)
	case config.DriverMinIO:
		opts := []minio.Option{minio.WithLogger(logger)}
		if metrics != nil {
			opts = append(opts, minio.WithMetrics(metrics))
		}
		return minio.New(ctx, cfg, opts...)
	default:
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "unknown storage driver: "+cfg.Driver).
			WithComponent("storage")
	}
}
