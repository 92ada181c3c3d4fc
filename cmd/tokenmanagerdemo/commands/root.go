// Package commands builds the tokenmanagerdemo command tree: config +
// logging bootstrapping, then a subcommand dispatch, matching the
// teacher's cmd/claudine/commands shape.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/hatchtoken/tokenmanager"
	"github.com/hatchtoken/tokenmanager/internal/observability"
)

// Root builds the top-level command.
func Root() *cli.Command {
	return &cli.Command{
		Name:  "tokenmanagerdemo",
		Usage: "exercise the tokenmanager library end to end",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to a TOML config file"},
			&cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, info, warn, or error"},
			&cli.StringFlag{Name: "otlp-endpoint", Usage: "OTLP/HTTP log exporter endpoint; stdout if unset"},
		},
		Commands: []*cli.Command{
			serveCommand(),
			loginCommand(),
		},
	}
}

// loadContext loads Config and an OTel-bridged *slog.Logger from cmd's
// global flags, shared by every subcommand.
func loadContext(ctx context.Context, cmd *cli.Command) (tokenmanager.Config, *slog.Logger, func(context.Context) error, error) {
	cfg, err := tokenmanager.LoadConfig(cmd.String("config"))
	if err != nil {
		return tokenmanager.Config{}, nil, nil, fmt.Errorf("loading config: %w", err)
	}

	logger, shutdown, err := observability.NewLogger(ctx, observability.LogConfig{
		Level:        cmd.String("log-level"),
		OTLPEndpoint: cmd.String("otlp-endpoint"),
	})
	if err != nil {
		return tokenmanager.Config{}, nil, nil, fmt.Errorf("setting up logging: %w", err)
	}

	return cfg, logger, shutdown, nil
}
