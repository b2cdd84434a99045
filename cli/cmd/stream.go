package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/mavbridge/cli/config"
	"github.com/justapithecus/mavbridge/stream"
)

// StreamCommand returns the stream command.
// Exits 3 on platforms other than Linux.
func StreamCommand() *cli.Command {
	return &cli.Command{
		Name:   "stream",
		Usage:  "Pipe a video device through ffmpeg (Linux only)",
		Flags:  append(commonFlags(), streamFlags()...),
		Action: streamAction,
	}
}

func streamAction(c *cli.Context) error {
	if err := stream.CheckPlatform(); err != nil {
		return exitError(err)
	}
	cfg, logger, err := setup(c)
	if err != nil {
		return exitError(err)
	}
	defer closeLogger(logger)

	ctx, stop := signalContext()
	defer stop()
	return exitError(stream.Run(ctx, streamConfigFrom(c, cfg), logger))
}

func streamConfigFrom(c *cli.Context, cfg *config.Config) stream.Config {
	return stream.Config{
		FFmpeg:    stringOpt(c, "ffmpeg", cfg.Stream.FFmpeg, stream.DefaultFFmpeg),
		Device:    stringOpt(c, "device", cfg.Stream.Device, stream.DefaultDevice),
		Size:      stringOpt(c, "size", cfg.Stream.Size, stream.DefaultSize),
		Framerate: intOpt(c, "framerate", cfg.Stream.Framerate, stream.DefaultFramerate),
		Output:    stringOpt(c, "output", cfg.Stream.Output, stream.DefaultOutput),
		ExtraArgs: cfg.Stream.ExtraArgs,
	}
}
