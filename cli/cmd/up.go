package cmd

import (
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/justapithecus/mavbridge/server"
	"github.com/justapithecus/mavbridge/stream"
)

// UpCommand returns the up command: the frontend server and the bridge in
// one process, plus the video pipe with --stream.
func UpCommand() *cli.Command {
	flags := append(commonFlags(), serveFlags()...)
	flags = append(flags, bridgeFlags()...)
	flags = append(flags, streamFlags()...)
	flags = append(flags, &cli.BoolFlag{Name: "stream", Usage: "Also pipe the video device through ffmpeg (Linux only)"})
	return &cli.Command{
		Name:   "up",
		Usage:  "Run the frontend server and the bridge together",
		Flags:  flags,
		Action: upAction,
	}
}

func upAction(c *cli.Context) error {
	withStream := c.Bool("stream")
	if withStream {
		if err := stream.CheckPlatform(); err != nil {
			return exitError(err)
		}
	}

	cfg, logger, err := setup(c)
	if err != nil {
		return exitError(err)
	}
	defer closeLogger(logger)

	// assets are checked before anything binds
	srv, err := server.New(serverConfigFrom(c, cfg, logger), logger)
	if err != nil {
		return exitError(err)
	}
	opts, err := bridgeOptionsFrom(c, cfg, logger)
	if err != nil {
		return exitError(err)
	}

	ctx, stop := signalContext()
	defer stop()

	run, err := assembleBridge(ctx, opts, logger)
	if err != nil {
		return exitError(err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return run.execute(gctx) })
	if withStream {
		streamCfg := streamConfigFrom(c, cfg)
		g.Go(func() error {
			// the video pipe is unsupervised; its exit does not stop the bridge
			if err := stream.Run(gctx, streamCfg, logger); err != nil && gctx.Err() == nil {
				logger.Error("video stream exited", map[string]any{"error": err.Error()})
			}
			return nil
		})
	}
	return exitError(g.Wait())
}
