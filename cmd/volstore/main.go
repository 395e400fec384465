// Command volstore moves model weights and generated results between a worker
// and its network volume.
package main

import (
	"context"
	stderr "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/volstore/volstore/internal/config"
	"github.com/volstore/volstore/internal/metrics"
	"github.com/volstore/volstore/internal/origin"
	"github.com/volstore/volstore/internal/storage"
	"github.com/volstore/volstore/pkg/logger"
	"github.com/volstore/volstore/pkg/types"
)

var version = "dev"

// session is what every command works with once flags and config are loaded.
type session struct {
	cfg     *config.Configuration
	logger  zerolog.Logger
	metrics *metrics.Collector
}

// Replaced in tests.
var (
	openStore = func(ctx context.Context, s *session) (types.ObjectStore, error) {
		return storage.Open(ctx, s.cfg.Storage, s.logger, s.metrics)
	}
	newFetcher = func(s *session) (origin.Fetcher, error) {
		return origin.NewHubCLI(s.cfg.Origin, s.logger)
	}
)

// Exit statuses. exists uses exitAbsent for a missing key, so failures get
// their own status.
const (
	exitOK      = 0
	exitAbsent  = 1
	exitUsage   = 2
	exitFailure = 3
)

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

// run executes the app and returns the process exit status.
func run(args []string, stdout, errw io.Writer) int {
	err := newApp(stdout, errw).Run(args)
	if err == nil {
		return exitOK
	}
	var exit cli.ExitCoder
	if stderr.As(err, &exit) {
		if msg := exit.Error(); msg != "" {
			fmt.Fprintln(errw, msg)
		}
		return exit.ExitCode()
	}
	fmt.Fprintln(errw, "volstore:", err)
	return exitFailure
}

func newApp(stdout, errw io.Writer) *cli.App {
	s := &session{}

	return &cli.App{
		Name:      "volstore",
		Usage:     "Network volume storage for serverless GPU workers",
		Version:   version,
		Writer:    stdout,
		ErrWriter: errw,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML config file", EnvVars: []string{config.EnvConfigFile}},
			&cli.StringFlag{Name: "datacenter", Usage: "Datacenter code (" + joinCodes() + ")", EnvVars: []string{config.EnvDatacenter}},
			&cli.StringFlag{Name: "access-key", Usage: "S3 access key id", EnvVars: []string{config.EnvAccessKey}},
			&cli.StringFlag{Name: "secret-key", Usage: "S3 secret access key", EnvVars: []string{config.EnvSecretKey}},
			&cli.StringFlag{Name: "volume", Usage: "Network volume id (bucket)", EnvVars: []string{config.EnvVolumeID}},
			&cli.StringFlag{Name: "prefix", Usage: "Key prefix applied to every object", EnvVars: []string{config.EnvKeyPrefix}},
			&cli.StringFlag{Name: "driver", Usage: "Storage driver (s3 or minio)", EnvVars: []string{config.EnvDriver}},
			&cli.DurationFlag{Name: "timeout", Usage: "Request timeout", EnvVars: []string{config.EnvRequestTimeout}},
			&cli.StringFlag{Name: "log-level", Usage: "Log level", EnvVars: []string{config.EnvLogLevel}},
			&cli.StringFlag{Name: "log-format", Usage: "Log format (auto, console, json)", EnvVars: []string{config.EnvLogFormat}},
		},
		Before: func(c *cli.Context) error {
			return s.init(c, errw)
		},
		// run maps errors to exit statuses
		ExitErrHandler: func(*cli.Context, error) {},
		Commands: commands(s),
	}
}

func (s *session) init(c *cli.Context, errw io.Writer) error {
	cfg, err := config.Read(c.String("config"))
	if err != nil {
		return err
	}
	applyFlags(c, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logger.New(cfg.Global.LogLevel, cfg.Global.LogFormat, errw)
	if err != nil {
		return err
	}

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   cfg.Server.Metrics,
		Namespace: "volstore",
	})
	if err != nil {
		return err
	}

	s.cfg = cfg
	s.logger = log
	s.metrics = collector
	return nil
}

// applyFlags overrides loaded values with flags given on the command line.
func applyFlags(c *cli.Context, cfg *config.Configuration) {
	strs := map[string]*string{
		"datacenter": &cfg.Storage.Datacenter,
		"access-key": &cfg.Storage.AccessKey,
		"secret-key": &cfg.Storage.SecretKey,
		"volume":     &cfg.Storage.VolumeID,
		"prefix":     &cfg.Storage.KeyPrefix,
		"driver":     &cfg.Storage.Driver,
		"log-level":  &cfg.Global.LogLevel,
		"log-format": &cfg.Global.LogFormat,
	}
	for name, dst := range strs {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	if c.IsSet("timeout") {
		cfg.Storage.RequestTimeout = c.Duration("timeout")
	}
}

func joinCodes() string {
	return strings.Join(config.Datacenters(), ", ")
}
