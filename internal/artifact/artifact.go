// Package artifact holds the key layout used on the volume and the two
// workflows built on it: publishing generated results and seeding model
// weights from the origin.
package artifact

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/volstore/volstore/internal/filesystem"
	"github.com/volstore/volstore/internal/origin"
	"github.com/volstore/volstore/pkg/errors"
	"github.com/volstore/volstore/pkg/types"
)

// Key prefixes on the volume.
const (
	WeightsPrefix = "weights/"
	ResultsPrefix = "results/"
)

// ResultKey returns results/job_<jobID>/<name>.
func ResultKey(jobID, name string) string {
	return ResultsPrefix + "job_" + jobID + "/" + name
}

// WeightKey returns weights/<path>.
func WeightKey(path string) string {
	return WeightsPrefix + strings.TrimPrefix(path, "/")
}

// Published describes an uploaded result.
type Published struct {
	JobID string `json:"job_id"`
	Key   string `json:"key"`
	URL   string `json:"url"`
	URI   string `json:"uri"`
	Bytes int64  `json:"bytes"`
}

// Publisher uploads generated outputs.
type Publisher struct {
	store  types.ObjectStore
	logger zerolog.Logger
}

// NewPublisher returns a Publisher writing to store.
func NewPublisher(store types.ObjectStore, logger zerolog.Logger) *Publisher {
	return &Publisher{
		store:  store,
		logger: logger.With().Str("component", "publisher").Logger(),
	}
}

// Publish uploads localPath under the results layout for jobID. An empty jobID
// is replaced by a random one.
func (p *Publisher) Publish(ctx context.Context, jobID, localPath string) (Published, error) {
	if strings.TrimSpace(jobID) == "" {
		jobID = uuid.NewString()
	}

	info, err := filesystem.CheckUploadSource(localPath)
	if err != nil {
		return Published{}, err
	}

	key := ResultKey(jobID, filepath.Base(localPath))
	if err := p.store.Upload(ctx, localPath, key); err != nil {
		return Published{}, err
	}

	out := Published{
		JobID: jobID,
		Key:   key,
		URL:   p.store.URL(key),
		URI:   p.store.URI(key),
		Bytes: info.Size(),
	}
	p.logger.Info().Str("job_id", jobID).Str("key", key).Str("url", out.URL).Msg("Result published")
	return out, nil
}

// Seeder copies a full model snapshot from the origin onto the volume.
type Seeder struct {
	store   types.ObjectStore
	fetcher origin.Fetcher
	logger  zerolog.Logger
}

// NewSeeder returns a Seeder.
func NewSeeder(store types.ObjectStore, fetcher origin.Fetcher, logger zerolog.Logger) *Seeder {
	return &Seeder{
		store:   store,
		fetcher: fetcher,
		logger:  logger.With().Str("component", "seeder").Logger(),
	}
}

// Seed downloads the origin snapshot into localDir and uploads it under
// WeightsPrefix. The report counts uploaded and failed files.
func (s *Seeder) Seed(ctx context.Context, localDir string) (types.TransferReport, error) {
	start := time.Now()
	if strings.TrimSpace(localDir) == "" {
		return types.TransferReport{}, errors.NewError(errors.ErrCodePathInvalid, "seed directory is required").
			WithComponent("seeder")
	}

	s.logger.Info().Str("path", localDir).Msg("Downloading model snapshot")
	if err := s.fetcher.Snapshot(ctx, localDir); err != nil {
		return types.TransferReport{}, err
	}

	s.logger.Info().Str("path", localDir).Str("prefix", WeightsPrefix).Msg("Uploading model snapshot")
	report, err := s.store.UploadDirectory(ctx, localDir, WeightsPrefix)
	if err != nil {
		return report, err
	}

	s.logger.Info().
		Int("uploaded", report.Uploaded).
		Int64("bytes", report.Bytes).
		Dur("duration", time.Since(start)).
		Msg("Model snapshot seeded")
	return report, nil
}
