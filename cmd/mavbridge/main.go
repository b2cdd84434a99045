// Package main provides the mavbridge CLI entrypoint.
//
// Usage:
//
//	mavbridge <command> [subcommand] [options]
//
// Exit codes:
//   - 0: success
//   - 1: runtime or configuration error
//   - 2: frontend assets missing (serve, up)
//   - 3: video streaming unsupported on this platform (stream, up --stream)
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/justapithecus/mavbridge/cli/cmd"
	"github.com/justapithecus/mavbridge/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		// ExitErrHandler already handled the exit for cli.ExitCoder errors.
		// This branch handles unexpected errors that weren't wrapped.
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:           "mavbridge",
		Usage:          "MAVLink UDP to WebSocket bridge",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.ServeCommand(),
			cmd.Udp2wsCommand(),
			cmd.StreamCommand(),
			cmd.UpCommand(),
			cmd.DecodeCommand(),
			cmd.StatsCommand(),
			cmd.VersionCommand(commit),
		},
	}
}

// exitErrHandler handles errors from the CLI, preserving exit codes from cli.Exit().
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	os.Exit(exitCode(err, os.Stderr))
}

// exitCode prints err's message when it has one and returns its code.
func exitCode(err error, stderr *os.File) int {
	// Check for ExitCoder (from cli.Exit), handles wrapped errors
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() returns "exit status N", so skip those
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(stderr, msg)
		}
		return code
	}

	// Unexpected error - print and exit with code 1
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}
