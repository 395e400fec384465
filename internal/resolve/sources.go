package resolve

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/volstore/volstore/internal/filesystem"
	"github.com/volstore/volstore/internal/origin"
	"github.com/volstore/volstore/pkg/errors"
	"github.com/volstore/volstore/pkg/types"
)

// Source names.
const (
	SourceLocal  = "local"
	SourceRemote = "remote"
	SourceOrigin = "origin"
)

// Source supplies a logical key as a local file.
type Source interface {
	Name() string
	// Resolve returns the local path holding key.
	Resolve(ctx context.Context, key string) (string, error)
}

// LocalSource looks for key under each root in order.
type LocalSource struct {
	Roots []string
}

// Name implements Source.
func (s *LocalSource) Name() string { return SourceLocal }

// Resolve implements Source.
func (s *LocalSource) Resolve(ctx context.Context, key string) (string, error) {
	for _, root := range s.Roots {
		if root == "" {
			continue
		}
		p, err := filesystem.LocalPath(root, key)
		if err != nil {
			return "", err
		}
		if filesystem.IsRegularFile(p) {
			return p, nil
		}
	}
	return "", errors.NewError(errors.ErrCodeFileNotFound, fmt.Sprintf("%s not found locally", key)).
		WithComponent("resolve").
		WithDetail("roots", s.Roots)
}

// RemoteSource downloads key from the object store into Workspace.
type RemoteSource struct {
	Store     types.ObjectStore
	Workspace string
}

// Name implements Source.
func (s *RemoteSource) Name() string { return SourceRemote }

// Resolve implements Source.
func (s *RemoteSource) Resolve(ctx context.Context, key string) (string, error) {
	dest, err := filesystem.LocalPath(s.Workspace, key)
	if err != nil {
		return "", err
	}
	if err := s.Store.Download(ctx, key, dest); err != nil {
		return "", err
	}
	return dest, nil
}

// OriginSource fetches key from the origin repository into Workspace. When
// Store is set and WriteBack is true, a fetched file is also uploaded to the
// store; a failed upload is only logged.
type OriginSource struct {
	Fetcher   origin.Fetcher
	KeyPrefix string
	Workspace string
	Store     types.ObjectStore
	WriteBack bool
	Logger    zerolog.Logger
}

// Name implements Source.
func (s *OriginSource) Name() string { return SourceOrigin }

// Resolve implements Source.
func (s *OriginSource) Resolve(ctx context.Context, key string) (string, error) {
	clean, err := filesystem.CleanKey(key)
	if err != nil {
		return "", err
	}

	repoPath := origin.PathForKey(s.KeyPrefix, clean)
	destDir := s.Workspace
	if dir := strings.TrimSuffix(clean, repoPath); dir != "" {
		destDir = filepath.Join(s.Workspace, filepath.FromSlash(dir))
	}
	dest := filepath.Join(destDir, filepath.FromSlash(repoPath))
	if !filesystem.Within(s.Workspace, dest) {
		return "", errors.NewError(errors.ErrCodePathInvalid, "key escapes workspace").
			WithComponent("resolve").
			WithContext("key", key).
			WithContext("workspace", s.Workspace)
	}

	if err := s.Fetcher.Fetch(ctx, repoPath, destDir); err != nil {
		return "", err
	}
	if !filesystem.IsRegularFile(dest) {
		return "", errors.NewError(errors.ErrCodeFileNotFound, "origin download did not produce the file").
			WithComponent("resolve").
			WithContext("path", dest)
	}

	if s.Store != nil && s.WriteBack {
		if err := s.Store.Upload(ctx, dest, clean); err != nil {
			s.Logger.Warn().Err(err).Str("key", clean).Msg("Write-back to remote store failed")
		} else {
			s.Logger.Info().Str("key", clean).Msg("Stored origin artifact in remote store")
		}
	}
	return dest, nil
}
