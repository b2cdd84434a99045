package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/mavbridge/cli/config"
	"github.com/justapithecus/mavbridge/log"
	"github.com/justapithecus/mavbridge/server"
	"github.com/justapithecus/mavbridge/stream"
)

// Exit codes.
const (
	exitSuccess             = 0
	exitFailure             = 1
	exitMissingAssets       = 2
	exitUnsupportedPlatform = 3
)

// isStderrTTY returns true if stderr is a terminal.
func isStderrTTY() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// loadConfig reads --config when given; otherwise every value comes from
// flags and defaults.
func loadConfig(c *cli.Context) (*config.Config, error) {
	path := c.String("config")
	if path == "" {
		return &config.Config{}, nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger from flags over the log section.
func newLogger(c *cli.Context, cfg *config.Config) (*log.Logger, error) {
	logger, err := log.NewLogger(log.Options{
		Level:      stringOpt(c, "log-level", cfg.Log.Level, "info"),
		Format:     stringOpt(c, "log-format", cfg.Log.Format, "json"),
		File:       stringOpt(c, "log-file", cfg.Log.File, ""),
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid log configuration: %w", err)
	}
	return logger, nil
}

// setup loads config and builds the logger. Callers close the logger.
func setup(c *cli.Context) (*config.Config, *log.Logger, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(c, cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func hostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// exitError maps known failures to their exit codes.
func exitError(err error) error {
	if err == nil {
		return nil
	}
	var exitCoder cli.ExitCoder
	switch {
	case errors.As(err, &exitCoder):
		return err
	case errors.Is(err, server.ErrMissingIndex):
		return cli.Exit(err.Error(), exitMissingAssets)
	case errors.Is(err, stream.ErrUnsupportedPlatform):
		return cli.Exit(err.Error(), exitUnsupportedPlatform)
	default:
		return cli.Exit(err.Error(), exitFailure)
	}
}

// closeLogger syncs and closes logger; errors go nowhere useful by now.
func closeLogger(logger *log.Logger) {
	_ = logger.Close()
}
