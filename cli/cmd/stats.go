package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/mavbridge/cli/reader"
	"github.com/justapithecus/mavbridge/cli/render"
	"github.com/justapithecus/mavbridge/lode"
)

// statsTimeout bounds one dataset scan.
const statsTimeout = 30 * time.Second

// StatsCommand returns the stats command with subcommands.
// Stats reads recorded datasets; it never touches a running bridge.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Summarize recorded telemetry (dataset, metrics)",
		Subcommands: []*cli.Command{
			statsDatasetCommand(),
			statsMetricsCommand(),
		},
	}
}

func storageReadFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Read storage settings from this config file", EnvVars: []string{"MAVBRIDGE_CONFIG"}},
		&cli.StringFlag{Name: "storage-dataset", Usage: "Lode dataset ID (default \"mavbridge\")"},
		&cli.StringFlag{Name: "storage-backend", Usage: "Storage backend: fs or s3"},
		&cli.StringFlag{Name: "storage-path", Usage: "Storage path (fs: directory, s3: bucket/prefix)"},
		&cli.StringFlag{Name: "storage-region", Usage: "AWS region for S3 backend"},
		&cli.StringFlag{Name: "storage-endpoint", Usage: "Custom S3 endpoint (MinIO, R2)"},
		&cli.BoolFlag{Name: "storage-s3-path-style", Usage: "Use path-style S3 addressing"},
		&cli.StringFlag{Name: "recording-id", Usage: "Limit to one recording"},
	}
}

func statsDatasetCommand() *cli.Command {
	return &cli.Command{
		Name:   "dataset",
		Usage:  "Show record counts per message type and vehicle",
		Flags:  append(TUIReadOnlyFlags(), storageReadFlags()...),
		Action: statsDatasetAction,
	}
}

func statsDatasetAction(c *cli.Context) error {
	rd, err := openReader(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, statsTimeout)
	defer cancel()

	stats, err := rd.Stats(ctx, c.String("recording-id"))
	if err != nil {
		return fmt.Errorf("failed to read dataset: %w", err)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return r.RenderTUI("stats_dataset", stats)
	}

	return r.Render(stats)
}

func statsMetricsCommand() *cli.Command {
	return &cli.Command{
		Name:   "metrics",
		Usage:  "Show the bridge metrics stored with a recording",
		Flags:  append(TUIReadOnlyFlags(), storageReadFlags()...),
		Action: statsMetricsAction,
	}
}

func statsMetricsAction(c *cli.Context) error {
	rd, err := openReader(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(c.Context, statsTimeout)
	defer cancel()

	snapshot, err := rd.Metrics(ctx, c.String("recording-id"))
	if err != nil {
		return fmt.Errorf("failed to read metrics: %w", err)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	if c.Bool("tui") {
		return r.RenderTUI("stats_metrics", snapshot)
	}

	return r.Render(snapshot)
}

// openReader resolves storage flags over the config's record.storage
// section and opens the dataset.
func openReader(c *cli.Context) (*reader.Reader, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	sc := cfg.Record.Storage
	opts := reader.StorageOptions{
		Dataset:   stringOpt(c, "storage-dataset", sc.Dataset, lode.DefaultDataset),
		Backend:   stringOpt(c, "storage-backend", sc.Backend, "fs"),
		Path:      stringOpt(c, "storage-path", sc.Path, ""),
		Region:    stringOpt(c, "storage-region", sc.Region, ""),
		Endpoint:  stringOpt(c, "storage-endpoint", sc.Endpoint, ""),
		PathStyle: boolOpt(c, "storage-s3-path-style", sc.S3PathStyle),
	}
	if opts.Path == "" {
		return nil, fmt.Errorf("--storage-path is required (or record.storage.path in the config file)")
	}

	ctx, cancel := context.WithTimeout(c.Context, statsTimeout)
	defer cancel()
	ds, err := reader.Open(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage reader: %w", err)
	}
	return reader.New(opts.Dataset, ds), nil
}
