package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/fleetmetry/fleetmetry/internal/config"
	"github.com/fleetmetry/fleetmetry/internal/introspect"
	"github.com/fleetmetry/fleetmetry/internal/logging"
	"github.com/fleetmetry/fleetmetry/internal/mongostore"
	"github.com/fleetmetry/fleetmetry/internal/pgstore"
	"github.com/fleetmetry/fleetmetry/internal/tools"
	"github.com/fleetmetry/fleetmetry/internal/toolserver"
)

// ToolServerCommand returns the toolserver command, the HTTP service that
// exposes the data tools over /tools and /call-tool.
func ToolServerCommand() *cli.Command {
	return &cli.Command{
		Name:  "toolserver",
		Usage: "Run the data tool server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on (overrides config)",
			},
		},
		Action: runToolServer,
	}
}

func runToolServer(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logging.Setup(cfg.Server.LogLevel, cfg.Server.Pretty)
	logger := logging.Component("toolserver")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	docs, err := mongostore.Connect(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to mongo: %w", err)
	}
	defer docs.Close(context.Background())

	warehouse, err := pgstore.Open(cfg.Postgres.URL, cfg.Postgres.Schema)
	if err != nil {
		return fmt.Errorf("failed to open postgres: %w", err)
	}
	defer warehouse.Close()
	if err := warehouse.Ping(ctx); err != nil {
		return fmt.Errorf("failed to reach postgres: %w", err)
	}

	inferrer := introspect.NewInferrer(docs)
	dispatcher := tools.NewDispatcher(docs, warehouse, inferrer, cfg.Chat.DefaultSamples)

	port := cfg.ToolServer.Port
	if c.Int("port") != 0 {
		port = c.Int("port")
	}

	logger.Info().Int("port", port).Msg("starting tool server")
	return toolserver.NewServer(dispatcher, port, cfg.ToolServer.AccessKey).Start()
}
