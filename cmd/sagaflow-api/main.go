package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/ispforge/sagaflow/pkg/cmd"
	"github.com/ispforge/sagaflow/pkg/eventbus"
	"github.com/ispforge/sagaflow/pkg/log"
	"github.com/ispforge/sagaflow/pkg/otelhelper"
	"github.com/ispforge/sagaflow/pkg/provisioning"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "sagaflow-api",
		Usage:                 "Run and inspect provisioning workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel); empty disables async submission",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the distributed run lock; empty uses a local no-op lock",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces via OTLP (endpoint from the standard OTEL_* environment)",
				Sources: cli.EnvVars("ENABLE_TRACING"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Sagaflow API")

			if command.Bool("tracing") {
				_, err := otelhelper.NewTracer(ctx, "sagaflow-api")
				if err != nil {
					logger.WarnContext(ctx, "Failed to initialize tracing", "error", err)
				}
			}

			registry, err := cmd.NewRegistry(provisioning.NewDevClients().Clients())
			if err != nil {
				return err
			}

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			var eventBus eventbus.EventBus

			if provider := command.String("event-bus"); provider != "" {
				eventBus, err = cmd.NewEventBus(provider, "sagaflow-api", logger)
				if err != nil {
					return err
				}

				defer func() {
					if err := eventBus.Close(); err != nil {
						logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
					}
				}()
			}

			lock, err := cmd.NewRunLock(command.String("redis-url"))
			if err != nil {
				return err
			}

			api := NewAPI(
				logger,
				persistence,
				registry,
				eventBus,
				lock,
			)

			err = api.Start(command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
