// Package origin downloads artifacts from the model hub they were published to.
package origin

import (
	"bufio"
	"context"
	stderr "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/volstore/volstore/internal/config"
	"github.com/volstore/volstore/pkg/errors"
	"github.com/volstore/volstore/pkg/retry"
)

// Fetcher retrieves files from the origin repository.
type Fetcher interface {
	// Fetch downloads one repository path into destDir, keeping its relative
	// location.
	Fetch(ctx context.Context, path, destDir string) error
	// Snapshot downloads the whole repository into destDir.
	Snapshot(ctx context.Context, destDir string) error
}

const (
	// tailLines is how much command output an error keeps.
	tailLines = 20
	waitDelay = 5 * time.Second
)

// HubCLI fetches through the hub command line client.
type HubCLI struct {
	binary  string
	repo    string
	retryer *retry.Retryer
	logger  zerolog.Logger
}

var _ Fetcher = (*HubCLI)(nil)

// NewHubCLI builds a fetcher for cfg.Repo using cfg.HubCLI.
func NewHubCLI(cfg config.OriginConfig, logger zerolog.Logger) (*HubCLI, error) {
	if strings.TrimSpace(cfg.Repo) == "" {
		return nil, errors.NewError(errors.ErrCodeMissingConfig, "origin repository is required").WithComponent("origin")
	}
	binary := cfg.HubCLI
	if binary == "" {
		binary = "huggingface-cli"
	}
	h := &HubCLI{
		binary: binary,
		repo:   cfg.Repo,
		logger: logger.With().Str("component", "origin").Str("repo", cfg.Repo).Logger(),
	}
	h.retryer = h.newRetryer(cfg.Attempts, 0)
	return h, nil
}

// newRetryer retries runs that exited non-zero; the hub client exits 1 on
// dropped connections. A zero delay uses the retry defaults.
func (h *HubCLI) newRetryer(attempts int, delay time.Duration) *retry.Retryer {
	rc := retry.DefaultConfig()
	rc.MaxAttempts = attempts
	if delay > 0 {
		rc.InitialDelay = delay
		rc.MaxDelay = delay
	}
	rc.RetryableErrors = []errors.ErrorCode{errors.ErrCodeOperationFailed}
	rc.OnRetry = func(attempt int, err error, wait time.Duration) {
		h.logger.Warn().Err(err).Int("attempt", attempt).Dur("backoff", wait).Msg("Origin download failed, retrying")
	}
	return retry.New(rc)
}

// PathForKey strips prefix from key.
func PathForKey(prefix, key string) string {
	return strings.TrimPrefix(key, prefix)
}

// Fetch downloads a single file.
func (h *HubCLI) Fetch(ctx context.Context, path, destDir string) error {
	if strings.TrimSpace(path) == "" {
		return errors.NewError(errors.ErrCodePathInvalid, "empty repository path").WithComponent("origin").WithOperation("Fetch")
	}
	return h.retryer.Do(ctx, func(ctx context.Context) error {
		return h.run(ctx, "Fetch", destDir, "download", h.repo, path, "--local-dir", destDir)
	})
}

// Snapshot downloads the whole repository.
func (h *HubCLI) Snapshot(ctx context.Context, destDir string) error {
	return h.retryer.Do(ctx, func(ctx context.Context) error {
		return h.run(ctx, "Snapshot", destDir, "download", h.repo, "--local-dir", destDir)
	})
}

func (h *HubCLI) run(ctx context.Context, operation, destDir string, args ...string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return errors.Wrap(errors.ErrCodePermissionDenied, "failed to create destination directory", err).
			WithComponent("origin").WithOperation(operation).WithContext("path", destDir)
	}

	cmd := exec.CommandContext(ctx, h.binary, args...)
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw
	cmd.WaitDelay = waitDelay

	h.logger.Info().Str("command", h.binary+" "+strings.Join(args, " ")).Msg("Starting origin download")

	var (
		wg   sync.WaitGroup
		tail []string
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			h.logger.Info().Msg(line)
			tail = append(tail, line)
			if len(tail) > tailLines {
				tail = tail[1:]
			}
		}
		// drain so the child never blocks on a full pipe
		_, _ = io.Copy(io.Discard, pr)
	}()

	err := cmd.Run()
	_ = pw.Close()
	wg.Wait()

	if err != nil {
		return h.commandError(ctx, operation, err, tail)
	}
	h.logger.Info().Str("path", destDir).Msg("Origin download completed")
	return nil
}

func (h *HubCLI) commandError(ctx context.Context, operation string, err error, tail []string) error {
	code := errors.ErrCodeOperationFailed
	switch {
	case stderr.Is(ctx.Err(), context.DeadlineExceeded):
		code = errors.ErrCodeOperationTimeout
	case stderr.Is(ctx.Err(), context.Canceled):
		code = errors.ErrCodeOperationCanceled
	case stderr.Is(err, exec.ErrNotFound), stderr.Is(err, fs.ErrNotExist):
		code = errors.ErrCodeInvalidConfig
	}

	msg := fmt.Sprintf("%s exited with error", h.binary)
	var exitErr *exec.ExitError
	if stderr.As(err, &exitErr) {
		msg = fmt.Sprintf("%s exited with status %d", h.binary, exitErr.ExitCode())
	}

	verr := errors.Wrap(code, msg, err).
		WithComponent("origin").
		WithOperation(operation).
		WithContext("repo", h.repo)
	if len(tail) > 0 {
		verr.WithDetail("output", strings.Join(tail, "\n"))
	}
	h.logger.Error().Err(verr).Msg("Origin download failed")
	return verr
}
