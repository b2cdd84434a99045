// Package cmd provides CLI commands for the mavbridge binary.
package cmd

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/mavbridge/cli/config"
)

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, jsonl, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, jsonl, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for select read-only commands (decode, stats).
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (decode, stats only)",
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// TUIReadOnlyFlags returns flags for commands that support TUI mode.
// This is an alias for ReadOnlyFlags, kept for documentation clarity.
func TUIReadOnlyFlags() []cli.Flag {
	return ReadOnlyFlags()
}

// commonFlags are accepted by every long-running command.
func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Path to a YAML or TOML config file", EnvVars: []string{"MAVBRIDGE_CONFIG"}},
		&cli.StringFlag{Name: "log-level", Usage: "Log level: debug, info, warn, error"},
		&cli.StringFlag{Name: "log-format", Usage: "Log format: json or console"},
		&cli.StringFlag{Name: "log-file", Usage: "Also write logs to this size-rotated file"},
	}
}

func serveFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "host", Usage: "Static server bind host"},
		&cli.IntFlag{Name: "port", Usage: "Static server port (default 8080)"},
		&cli.StringFlag{Name: "dir", Usage: "Frontend build directory (default ./dist)"},
	}
}

func bridgeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "bridge-id", Usage: "Bridge name stamped on records, metrics and events (default: hostname)"},
		&cli.StringFlag{Name: "udp-host", Usage: "UDP bind host"},
		&cli.IntFlag{Name: "udp-port", Usage: "UDP port (default 16450)"},
		&cli.StringFlag{Name: "ws-host", Usage: "WebSocket bind host"},
		&cli.IntFlag{Name: "ws-port", Usage: "WebSocket port (default 8811)"},
		&cli.StringFlag{Name: "ws-path", Usage: "WebSocket upgrade path (default: any)"},
		&cli.IntFlag{Name: "max-clients", Usage: "Maximum concurrent WebSocket clients (0: unlimited)"},
		&cli.DurationFlag{Name: "heartbeat", Usage: "Send a GCS HEARTBEAT to the UDP peer at this interval (0: off)"},

		// recording
		&cli.BoolFlag{Name: "record", Usage: "Record decoded telemetry to a Lode dataset"},
		&cli.StringFlag{Name: "policy", Usage: "Recording policy: strict or buffered"},
		&cli.IntFlag{Name: "buffer-records", Usage: "Max buffered records (buffered policy)"},
		&cli.Int64Flag{Name: "buffer-bytes", Usage: "Max buffer size in bytes (buffered policy)"},
		&cli.StringSliceFlag{Name: "droppable", Usage: "Message names the buffered policy may shed"},
		&cli.StringFlag{Name: "storage-dataset", Usage: "Lode dataset ID (default \"mavbridge\")"},
		&cli.StringFlag{Name: "storage-backend", Usage: "Storage backend: fs or s3"},
		&cli.StringFlag{Name: "storage-path", Usage: "Storage path (fs: directory, s3: bucket/prefix)"},
		&cli.StringFlag{Name: "storage-region", Usage: "AWS region for S3 backend"},
		&cli.StringFlag{Name: "storage-endpoint", Usage: "Custom S3 endpoint (MinIO, R2)"},
		&cli.BoolFlag{Name: "storage-s3-path-style", Usage: "Use path-style S3 addressing"},

		// capture
		&cli.StringFlag{Name: "capture", Usage: "Write raw UDP datagrams to this capture file (.zst compresses)"},
		&cli.BoolFlag{Name: "capture-compress", Usage: "zstd-compress the capture file"},

		// adapter
		&cli.StringFlag{Name: "adapter", Usage: "Publish vehicle updates: redis or webhook"},
		&cli.StringFlag{Name: "adapter-url", Usage: "Adapter URL (redis://... or http(s)://...)"},
		&cli.StringFlag{Name: "adapter-format", Usage: "Adapter payload format: json or msgpack"},
		&cli.StringSliceFlag{Name: "adapter-kinds", Usage: "Update kinds to publish (default: all)"},
		&cli.DurationFlag{Name: "adapter-min-interval", Usage: "Minimum spacing per vehicle and kind"},
		&cli.IntFlag{Name: "adapter-retries", Usage: "Retry attempts per publish (default 3)"},

		&cli.StringFlag{Name: "report", Usage: "Write a JSON run report on shutdown (\"-\" for stderr)"},
	}
}

func streamFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "ffmpeg", Usage: "ffmpeg binary (default \"ffmpeg\")"},
		&cli.StringFlag{Name: "device", Usage: "Video device (default /dev/video0)"},
		&cli.StringFlag{Name: "size", Usage: "Capture size (default 1280x720)"},
		&cli.IntFlag{Name: "framerate", Usage: "Capture framerate (default 30)"},
		&cli.StringFlag{Name: "output", Usage: "ffmpeg output URL (default udp://127.0.0.1:5600)"},
	}
}

// Precedence for every option: a flag the user set, then the config
// file, then the built-in default.

func stringOpt(c *cli.Context, flag, fromConfig, def string) string {
	if c.IsSet(flag) {
		return c.String(flag)
	}
	if fromConfig != "" {
		return fromConfig
	}
	return def
}

func intOpt(c *cli.Context, flag string, fromConfig, def int) int {
	if c.IsSet(flag) {
		return c.Int(flag)
	}
	if fromConfig != 0 {
		return fromConfig
	}
	return def
}

func int64Opt(c *cli.Context, flag string, fromConfig, def int64) int64 {
	if c.IsSet(flag) {
		return c.Int64(flag)
	}
	if fromConfig != 0 {
		return fromConfig
	}
	return def
}

func boolOpt(c *cli.Context, flag string, fromConfig bool) bool {
	if c.IsSet(flag) {
		return c.Bool(flag)
	}
	return fromConfig
}

func durationOpt(c *cli.Context, flag string, fromConfig config.Duration, def time.Duration) time.Duration {
	if c.IsSet(flag) {
		return c.Duration(flag)
	}
	if fromConfig.Duration != 0 {
		return fromConfig.Duration
	}
	return def
}

func sliceOpt(c *cli.Context, flag string, fromConfig []string) []string {
	if c.IsSet(flag) {
		return c.StringSlice(flag)
	}
	return fromConfig
}
