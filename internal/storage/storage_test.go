package storage

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volstore/volstore/internal/config"
	"github.com/volstore/volstore/pkg/errors"
)

func TestOpenRejectsIncompleteConfig(t *testing.T) {
	cfg := config.NewDefault().Storage
	cfg.Datacenter = "US-KS-2"

	_, err := Open(context.Background(), cfg, zerolog.Nop(), nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeMissingConfig, errors.CodeOf(err))
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	cfg := config.NewDefault().Storage
	cfg.Datacenter = "US-KS-2"
	cfg.AccessKey = "access"
	cfg.SecretKey = "secret"
	cfg.VolumeID = "vol"
	cfg.Driver = "gcs"

	_, err := Open(context.Background(), cfg, zerolog.Nop(), nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidConfig, errors.CodeOf(err))
}

func TestOpenRejectsUnknownDatacenter(t *testing.T) {
	cfg := config.NewDefault().Storage
	cfg.Datacenter = "AP-XX-9"
	cfg.AccessKey = "access"
	cfg.SecretKey = "secret"
	cfg.VolumeID = "vol"

	_, err := Open(context.Background(), cfg, zerolog.Nop(), nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidConfig, errors.CodeOf(err))
}
