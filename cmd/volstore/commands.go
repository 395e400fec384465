package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/volstore/volstore/internal/artifact"
	"github.com/volstore/volstore/internal/config"
	"github.com/volstore/volstore/internal/origin"
	"github.com/volstore/volstore/internal/resolve"
	"github.com/volstore/volstore/pkg/api"
	"github.com/volstore/volstore/pkg/errors"
	"github.com/volstore/volstore/pkg/types"
)

func commands(s *session) []*cli.Command {
	return []*cli.Command{
		{
			Name:      "exists",
			Usage:     "Exit 0 if the key exists, 1 if not",
			ArgsUsage: "KEY",
			Action:    s.withStore(1, existsAction),
		},
		{
			Name:      "upload",
			Usage:     "Upload a local file",
			ArgsUsage: "LOCAL_PATH KEY",
			Action: s.withStore(2, func(c *cli.Context, store types.ObjectStore) error {
				if err := store.Upload(c.Context, c.Args().Get(0), c.Args().Get(1)); err != nil {
					return err
				}
				fmt.Fprintln(c.App.Writer, store.URI(c.Args().Get(1)))
				return nil
			}),
		},
		{
			Name:      "download",
			Usage:     "Download an object to a local path",
			ArgsUsage: "KEY LOCAL_PATH",
			Action: s.withStore(2, func(c *cli.Context, store types.ObjectStore) error {
				return store.Download(c.Context, c.Args().Get(0), c.Args().Get(1))
			}),
		},
		{
			Name:      "list",
			Usage:     "List keys under a prefix",
			ArgsUsage: "[PREFIX]",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "long", Aliases: []string{"l"}, Usage: "Show size and modification time"},
			},
			Action: s.withStore(0, listAction),
		},
		{
			Name:      "delete",
			Usage:     "Delete an object",
			ArgsUsage: "KEY",
			Action: s.withStore(1, func(c *cli.Context, store types.ObjectStore) error {
				return store.Delete(c.Context, c.Args().Get(0))
			}),
		},
		{
			Name:      "stats",
			Usage:     "Count objects and bytes under a prefix",
			ArgsUsage: "[PREFIX]",
			Action: s.withStore(0, func(c *cli.Context, store types.ObjectStore) error {
				stats, err := store.Stats(c.Context, c.Args().First())
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "%d objects, %s (%d bytes)\n",
					stats.Objects, humanize.IBytes(uint64(stats.TotalBytes)), stats.TotalBytes)
				return nil
			}),
		},
		{
			Name:  "info",
			Usage: "Summarize the network volume",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "json", Usage: "Print JSON"},
			},
			Action: s.withStore(0, infoAction),
		},
		{
			Name:      "url",
			Usage:     "Print the URL and URI of a key",
			ArgsUsage: "KEY",
			Action: s.withStore(1, func(c *cli.Context, store types.ObjectStore) error {
				fmt.Fprintln(c.App.Writer, store.URL(c.Args().Get(0)))
				fmt.Fprintln(c.App.Writer, store.URI(c.Args().Get(0)))
				return nil
			}),
		},
		{
			Name:      "resolve",
			Usage:     "Make an artifact available locally and print its path",
			ArgsUsage: "KEY",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "workspace", Usage: "Download directory", EnvVars: []string{config.EnvWorkspaceDir}},
				&cli.BoolFlag{Name: "no-origin", Usage: "Do not fall back to the origin"},
			},
			Action: s.resolveAction,
		},
		{
			Name:      "publish",
			Usage:     "Upload a generated result under results/job_<id>/",
			ArgsUsage: "LOCAL_PATH",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "job-id", Usage: "Job id (random if empty)"},
			},
			Action: s.withStore(1, func(c *cli.Context, store types.ObjectStore) error {
				pub, err := artifact.NewPublisher(store, s.logger).Publish(c.Context, c.String("job-id"), c.Args().Get(0))
				if err != nil {
					return err
				}
				return printJSON(c, pub)
			}),
		},
		{
			Name:  "seed",
			Usage: "Download the origin model snapshot and upload it under weights/",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "dir", Usage: "Local download directory (default <workspace>/weights)"},
			},
			Action: s.withStore(0, func(c *cli.Context, store types.ObjectStore) error {
				fetcher, err := newFetcher(s)
				if err != nil {
					return err
				}
				dir := c.String("dir")
				if dir == "" {
					dir = filepath.Join(s.cfg.Resolve.WorkspaceDir, "weights")
				}
				report, err := artifact.NewSeeder(store, fetcher, s.logger).Seed(c.Context, dir)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "uploaded %d files (%s)\n", report.Uploaded, humanize.IBytes(uint64(report.Bytes)))
				return nil
			}),
		},
		{
			Name:  "serve",
			Usage: "Serve the HTTP API",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "listen", Usage: "Listen address", EnvVars: []string{config.EnvListenAddr}},
			},
			Action: s.withStore(0, s.serveAction),
		},
	}
}

type storeAction func(c *cli.Context, store types.ObjectStore) error

// withStore checks the argument count and opens the store before running fn.
func (s *session) withStore(nargs int, fn storeAction) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.NArg() < nargs {
			return cli.Exit(fmt.Sprintf("usage: volstore %s %s", c.Command.Name, c.Command.ArgsUsage), exitUsage)
		}
		store, err := openStore(c.Context, s)
		if err != nil {
			return err
		}
		return fn(c, store)
	}
}

func existsAction(c *cli.Context, store types.ObjectStore) error {
	ok, err := store.Exists(c.Context, c.Args().Get(0))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, ok)
	if !ok {
		return cli.Exit("", exitAbsent)
	}
	return nil
}

func listAction(c *cli.Context, store types.ObjectStore) error {
	if !c.Bool("long") {
		keys, err := store.List(c.Context, c.Args().First())
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Fprintln(c.App.Writer, k)
		}
		return nil
	}

	objects, err := store.ListObjects(c.Context, c.Args().First())
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	for _, o := range objects {
		fmt.Fprintf(w, "%s\t%s\t%s\n", humanize.IBytes(uint64(o.Size)), humanize.Time(o.LastModified), o.Key)
	}
	return w.Flush()
}

func infoAction(c *cli.Context, store types.ObjectStore) error {
	info, err := store.Info(c.Context)
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return printJSON(c, info)
	}
	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Datacenter:\t%s\n", info.Datacenter)
	fmt.Fprintf(w, "Volume:\t%s\n", info.VolumeID)
	fmt.Fprintf(w, "Endpoint:\t%s\n", info.Endpoint)
	fmt.Fprintf(w, "Files:\t%s\n", humanize.Comma(info.TotalFiles))
	fmt.Fprintf(w, "Size:\t%s (%.2f GB)\n", humanize.IBytes(uint64(info.TotalSizeBytes)), info.TotalSizeGB)
	return w.Flush()
}

func (s *session) resolveAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("usage: volstore resolve KEY", exitUsage)
	}
	if c.IsSet("workspace") {
		s.cfg.Resolve.WorkspaceDir = c.String("workspace")
	}

	var fetcher origin.Fetcher
	if !c.Bool("no-origin") {
		f, err := newFetcher(s)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Origin unavailable")
		} else {
			fetcher = f
		}
	}

	open := func(ctx context.Context, _ config.StorageConfig) (types.ObjectStore, error) {
		return openStore(ctx, s)
	}
	resolver, _ := resolve.Build(c.Context, s.cfg, open, fetcher, s.logger, s.metrics)

	res, err := resolver.Resolve(c.Context, c.Args().Get(0))
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, res.Path)
	s.logger.Debug().Str("source", res.Source).Int("failed_attempts", len(res.Attempts)).Msg("Resolved")
	return nil
}

func (s *session) serveAction(c *cli.Context, store types.ObjectStore) error {
	cfg := api.DefaultServerConfig()
	cfg.Address = s.cfg.Server.ListenAddr
	if c.IsSet("listen") {
		cfg.Address = c.String("listen")
	}
	cfg.AllowedOrigins = s.cfg.Server.AllowedOrigins

	cfg.Debug = s.logger.GetLevel() <= zerolog.DebugLevel
	server := api.NewServer(cfg, store, api.WithLogger(s.logger), api.WithMetrics(s.metrics))

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return server.Run(ctx)
}

func printJSON(c *cli.Context, v interface{}) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return errors.Wrap(errors.ErrCodeInternalError, "failed to encode output", err)
	}
	return nil
}
