package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/mavbridge/cli/config"
	"github.com/justapithecus/mavbridge/log"
	"github.com/justapithecus/mavbridge/server"
)

// DefaultFrontendDir is where serve looks for the frontend build.
const DefaultFrontendDir = "dist"

// ServeCommand returns the serve command.
// Exits 2 when the frontend directory has no index.html.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Serve the browser frontend as static files",
		Flags:  append(commonFlags(), serveFlags()...),
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	cfg, logger, err := setup(c)
	if err != nil {
		return exitError(err)
	}
	defer closeLogger(logger)

	srv, err := server.New(serverConfigFrom(c, cfg, logger), logger)
	if err != nil {
		return exitError(err)
	}

	ctx, stop := signalContext()
	defer stop()
	return exitError(srv.Run(ctx))
}

func serverConfigFrom(c *cli.Context, cfg *config.Config, logger *log.Logger) server.Config {
	port := config.ResolvePort("serve.port", intOpt(c, "port", cfg.Serve.Port, 0), config.DefaultServePort, logger.Warn)
	return server.Config{
		Addr: hostPort(stringOpt(c, "host", cfg.Serve.Host, ""), port),
		Dir:  stringOpt(c, "dir", cfg.Serve.Dir, DefaultFrontendDir),
	}
}
