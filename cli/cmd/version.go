package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/mavbridge/cli/render"
	"github.com/justapithecus/mavbridge/types"
)

// VersionResponse is the response for the version command.
type VersionResponse struct {
	Version       string `json:"version"`
	Commit        string `json:"commit"`
	SchemaVersion string `json:"schema_version"`
}

// VersionCommand returns the version command.
// It reads nothing but build metadata.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  ReadOnlyFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}

		// TUI not supported for version command
		if c.Bool("tui") {
			return cli.Exit("--tui is not supported for version command", 1)
		}

		resp := VersionResponse{
			Version:       types.Version,
			Commit:        commit,
			SchemaVersion: types.SchemaVersion,
		}

		return r.Render(resp)
	}
}
