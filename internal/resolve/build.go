package resolve

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/volstore/volstore/internal/config"
	"github.com/volstore/volstore/internal/origin"
	"github.com/volstore/volstore/pkg/types"
)

// OpenFunc connects the remote store.
type OpenFunc func(ctx context.Context, cfg config.StorageConfig) (types.ObjectStore, error)

// Build assembles the standard chain from cfg: local roots, the remote store
// and the origin. The remote source is left out, and the chain runs
// local-only before the origin, when storage is not configured or open
// fails. The opened store is returned so callers can reuse it; it is nil in
// the local-only case. A nil fetcher leaves out the origin source.
func Build(ctx context.Context, cfg *config.Configuration, open OpenFunc, fetcher origin.Fetcher, logger zerolog.Logger, metrics types.MetricsCollector) (*Resolver, types.ObjectStore) {
	sources := []Source{
		&LocalSource{Roots: []string{cfg.Resolve.VolumeDir, cfg.Resolve.ContainerDir, cfg.Resolve.WorkspaceDir}},
	}

	var store types.ObjectStore
	switch {
	case !cfg.Storage.Configured():
		logger.Info().Msg("Remote store not configured, resolving from local sources only")
	case open == nil:
		logger.Warn().Msg("No remote store opener, resolving from local sources only")
	default:
		s, err := open(ctx, cfg.Storage)
		if err != nil {
			logger.Warn().Err(err).Msg("Remote store unavailable, resolving from local sources only")
		} else {
			store = s
			sources = append(sources, &RemoteSource{Store: store, Workspace: cfg.Resolve.WorkspaceDir})
		}
	}

	if fetcher != nil {
		sources = append(sources, &OriginSource{
			Fetcher:   fetcher,
			KeyPrefix: cfg.Origin.KeyPrefix,
			Workspace: cfg.Resolve.WorkspaceDir,
			Store:     store,
			WriteBack: cfg.Resolve.WriteBack,
			Logger:    logger.With().Str("component", "resolver").Logger(),
		})
	}

	return New(sources, WithLogger(logger), WithMetrics(metrics)), store
}
