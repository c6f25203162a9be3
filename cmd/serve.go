package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/bpmx/internal/server"
)

// Serve runs the HTTP API until the context is cancelled.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	pipeline, err := r.pipeline(ctx, cmd)
	if err != nil {
		return err
	}

	config := r.loadConfig(cmd)
	serverConfig := config.Server
	if cmd.IsSet("host") {
		serverConfig.Host = cmd.String("host")
	}
	if cmd.IsSet("port") {
		serverConfig.Port = cmd.Int("port")
	}

	router := server.NewBasicRouter()
	router.Use(server.Recover(r.logger), server.RequestLogger(r.logger))
	router.Handler(server.NewAPI(pipeline, r.logger))

	return server.Listen(ctx, serverConfig, router, r.logger)
}

// serveCommand runs the HTTP API.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the analysis API over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
			},
			&cli.StringFlag{
				Name:  "host",
				Usage: "Bind address",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Bind port",
			},
		},
		Action: r.Serve,
	}
}
