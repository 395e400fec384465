// Package filesystem is the local-disk side of object transfers: mapping
// between logical keys and paths, atomic file replacement, and tree uploads.
// It is shared by every storage driver and the resolver.
package filesystem

import (
	"context"
	stderr "errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/volstore/volstore/pkg/errors"
	"github.com/volstore/volstore/pkg/types"
)

// UploadFunc uploads a single local file under key.
type UploadFunc func(ctx context.Context, localPath, key string) error

// CheckUploadSource verifies that localPath is an existing regular file.
func CheckUploadSource(localPath string) (os.FileInfo, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeFileNotFound, "local file does not exist", err).
				WithContext("path", localPath)
		}
		if os.IsPermission(err) {
			return nil, errors.Wrap(errors.ErrCodePermissionDenied, "cannot stat local file", err).
				WithContext("path", localPath)
		}
		return nil, errors.Wrap(errors.ErrCodeOperationFailed, "cannot stat local file", err).
			WithContext("path", localPath)
	}
	if !info.Mode().IsRegular() {
		return nil, errors.NewError(errors.ErrCodePathInvalid, "not a regular file").
			WithContext("path", localPath)
	}
	return info, nil
}

// WriteAtomic creates the parent directories of dest, lets fill write into a
// temporary file in the same directory, and renames it over dest only when
// fill succeeds. On failure the temporary file is removed and dest is left
// untouched.
func WriteAtomic(dest string, fill func(f *os.File) error) (int64, error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, errors.Wrap(errors.ErrCodePermissionDenied, "failed to create destination directory", err).
			WithContext("path", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+".*.part")
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodePermissionDenied, "failed to create temporary file", err).
			WithContext("path", dir)
	}
	tmpName := tmp.Name()

	fillErr := fill(tmp)
	closeErr := tmp.Close()
	if fillErr == nil && closeErr != nil {
		fillErr = errors.Wrap(errors.ErrCodeOperationFailed, "failed to close temporary file", closeErr)
	}
	if fillErr != nil {
		_ = os.Remove(tmpName)
		return 0, fillErr
	}

	info, err := os.Stat(tmpName)
	if err != nil {
		_ = os.Remove(tmpName)
		return 0, errors.Wrap(errors.ErrCodeOperationFailed, "failed to stat temporary file", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return 0, errors.Wrap(errors.ErrCodeOperationFailed, "failed to move file into place", err).
			WithContext("path", dest)
	}
	return info.Size(), nil
}

// CleanKey normalizes a logical key to its slash-separated form without a
// leading slash. Empty keys and keys with ".." segments are PATH_INVALID.
func CleanKey(key string) (string, error) {
	for _, seg := range strings.Split(filepath.ToSlash(key), "/") {
		if seg == ".." {
			return "", errors.NewError(errors.ErrCodePathInvalid, "key contains a parent segment").
				WithContext("key", key)
		}
	}
	clean := strings.TrimPrefix(path.Clean("/"+key), "/")
	if clean == "" {
		return "", errors.NewError(errors.ErrCodePathInvalid, "empty key").WithContext("key", key)
	}
	return clean, nil
}

// LocalPath joins a logical key under root. Keys that CleanKey rejects, or
// that would escape root, are PATH_INVALID.
func LocalPath(root, key string) (string, error) {
	clean, err := CleanKey(key)
	if err != nil {
		return "", err
	}
	joined := filepath.Join(root, filepath.FromSlash(clean))
	if !Within(root, joined) {
		return "", errors.NewError(errors.ErrCodePathInvalid, "key escapes root").
			WithContext("key", key).WithContext("root", root)
	}
	return joined, nil
}

// Within reports whether p is root or lies below it.
func Within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// KeyForPath converts a file below root into keyPrefix + its slash-separated
// relative path.
func KeyForPath(root, localPath, keyPrefix string) (string, error) {
	rel, err := filepath.Rel(root, localPath)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodePathInvalid, "path is not below root", err).
			WithContext("path", localPath)
	}
	if rel == "." || strings.HasPrefix(rel, "..") {
		return "", errors.NewError(errors.ErrCodePathInvalid, "path is not below root").
			WithContext("path", localPath).WithContext("root", root)
	}
	return keyPrefix + filepath.ToSlash(rel), nil
}

// IsRegularFile reports whether p exists and is a regular file.
func IsRegularFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

// UploadTree walks root and uploads every regular file to keyPrefix plus its
// relative path. Per-file failures are logged and counted, and the walk goes
// on; the returned error joins them. Cancellation stops the walk.
func UploadTree(ctx context.Context, root, keyPrefix string, upload UploadFunc, logger zerolog.Logger) (types.TransferReport, error) {
	var report types.TransferReport

	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return report, errors.Wrap(errors.ErrCodeFileNotFound, "local directory does not exist", err).
				WithContext("path", root)
		}
		return report, errors.Wrap(errors.ErrCodeOperationFailed, "cannot stat local directory", err).
			WithContext("path", root)
	}
	if !info.IsDir() {
		return report, errors.NewError(errors.ErrCodePathInvalid, "not a directory").WithContext("path", root)
	}

	var failures []error
	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			report.Failed++
			report.FailedFiles = append(report.FailedFiles, p)
			failures = append(failures, fmt.Errorf("%s: %w", p, err))
			logger.Warn().Err(err).Str("path", p).Msg("Skipping unreadable path")
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		key, err := KeyForPath(root, p, keyPrefix)
		if err != nil {
			return err
		}
		if err := upload(ctx, p, key); err != nil {
			report.Failed++
			report.FailedFiles = append(report.FailedFiles, p)
			failures = append(failures, fmt.Errorf("%s: %w", p, err))
			logger.Debug().Err(err).Str("path", p).Str("key", key).Msg("Upload failed, continuing")
			return nil
		}

		if fi, err := d.Info(); err == nil {
			report.Bytes += fi.Size()
		}
		report.Uploaded++
		logger.Debug().Str("path", p).Str("key", key).Msg("Uploaded")
		return nil
	})

	if walkErr != nil {
		switch {
		case stderr.Is(walkErr, context.DeadlineExceeded):
			return report, errors.Wrap(errors.ErrCodeOperationTimeout, "directory upload timed out", walkErr).
				WithContext("path", root)
		case stderr.Is(walkErr, context.Canceled):
			return report, errors.Wrap(errors.ErrCodeOperationCanceled, "directory upload interrupted", walkErr).
				WithContext("path", root)
		}
		return report, errors.Wrap(errors.ErrCodeOperationFailed, "directory walk failed", walkErr).
			WithContext("path", root)
	}

	logger.Info().
		Int("uploaded", report.Uploaded).
		Int("failed", report.Failed).
		Int64("bytes", report.Bytes).
		Str("path", root).
		Msg("Directory upload finished")

	if len(failures) > 0 {
		return report, errors.Wrap(errors.ErrCodeOperationFailed,
			fmt.Sprintf("%d of %d files failed to upload", report.Failed, report.Failed+report.Uploaded),
			stderr.Join(failures...)).
			WithContext("path", root).
			WithDetail("failed_files", report.FailedFiles)
	}
	return report, nil
}
