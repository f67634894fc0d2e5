package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/fleetmetry/fleetmetry/internal/ai/langchain"
	"github.com/fleetmetry/fleetmetry/internal/auth"
	"github.com/fleetmetry/fleetmetry/internal/chat"
	"github.com/fleetmetry/fleetmetry/internal/config"
	"github.com/fleetmetry/fleetmetry/internal/logging"
	"github.com/fleetmetry/fleetmetry/internal/toolclient"
)

// ServeCommand returns the serve command, the user-facing chat service.
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the chat service",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "port",
				Usage: "Port to listen on (overrides config)",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logging.Setup(cfg.Server.LogLevel, cfg.Server.Pretty)
	logger := logging.Component("serve")

	client, err := mongo.Connect(options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return fmt.Errorf("failed to connect to mongo: %w", err)
	}
	defer client.Disconnect(context.Background())

	authorizer := auth.NewAuthorizer(auth.NewMongoSessions(client.Database(cfg.Mongo.Database)))

	provider, err := langchain.New(langchain.Config{
		APIKey:      cfg.AI.APIKey,
		ModelName:   cfg.AI.Model,
		BaseURL:     cfg.AI.BaseURL,
		Temperature: cfg.AI.Temperature,
		MaxTokens:   cfg.AI.MaxTokens,
		Timeout:     cfg.ModelTimeout(),
	})
	if err != nil {
		return fmt.Errorf("failed to build model provider: %w", err)
	}

	runner := toolclient.New(cfg.ToolServer.URL, cfg.ToolServer.AccessKey,
		toolclient.WithTimeouts(cfg.ListTimeout(), cfg.ToolTimeout()))

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ListTimeout())
	defer cancel()
	catalog, err := runner.FetchCatalog(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch tool catalogue: %w", err)
	}
	logger.Info().Int("tools", len(catalog)).Msg("tool catalogue loaded")

	store := chat.NewStore(chat.StoreConfig{
		RatePerMinute: cfg.Chat.RatePerMinute,
		RateBurst:     cfg.Chat.RateBurst,
		HistoryLimit:  cfg.Chat.HistoryLimit,
		HistoryKeep:   cfg.Chat.HistoryKeep,
	})

	port := cfg.Server.Port
	if c.Int("port") != 0 {
		port = c.Int("port")
	}

	server := chat.NewServer(chat.ServerConfig{
		Port:          port,
		MaxIterations: cfg.Chat.MaxIterations,
		TurnTimeout:   time.Duration(cfg.Chat.MaxIterations) * cfg.ToolTimeout(),
	}, store, authorizer, provider, runner, catalog)

	logger.Info().Int("port", port).Msg("starting chat server")
	return server.Start()
}
