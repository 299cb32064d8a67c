package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/ispforge/sagaflow/pkg/cmd"
	"github.com/ispforge/sagaflow/pkg/log"
	"github.com/ispforge/sagaflow/pkg/otelhelper"
	"github.com/ispforge/sagaflow/pkg/provisioning"
	"github.com/ispforge/sagaflow/pkg/saga"
	"github.com/ispforge/sagaflow/pkg/services"
)

func main() {
	logger := log.WithModule("worker")

	command := &cli.Command{
		Name:                  "sagaflow-worker",
		Usage:                 "Execute workflows requested over the event bus",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus type (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the distributed run lock; empty uses a local no-op lock",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "worker-id",
				Usage:   "Stable worker identity; generated when empty",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:    "suspend-schedule",
				Usage:   "Cron expression for the scheduled suspension sweep",
				Sources: cli.EnvVars("SUSPEND_SCHEDULE"),
			},
			&cli.StringFlag{
				Name:    "suspend-tenant",
				Usage:   "Tenant the suspension sweep runs under",
				Sources: cli.EnvVars("SUSPEND_TENANT"),
			},
			&cli.StringFlag{
				Name:    "suspend-subscribers",
				Usage:   "Comma-separated subscriber ids for the suspension sweep",
				Sources: cli.EnvVars("SUSPEND_SUBSCRIBERS"),
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

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()
			}

			logger.InfoContext(ctx, "Initializing Sagaflow worker", "worker_id", workerID)

			if command.Bool("tracing") {
				_, err := otelhelper.NewTracer(ctx, "sagaflow-worker")
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

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), "sagaflow-worker", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			lock, err := cmd.NewRunLock(command.String("redis-url"))
			if err != nil {
				return err
			}

			executor := saga.NewExecutor(persistence, logger,
				saga.WithRunLock(lock),
				saga.WithEventPublisher(eventBus),
			)
			orchestration := services.NewOrchestration(persistence, registry, executor, logger,
				services.WithPublisher(eventBus))

			worker := NewWorker(workerID, logger, orchestration, eventBus)

			if schedule := command.String("suspend-schedule"); schedule != "" {
				err = worker.ScheduleSuspensionSweep(
					command.String("suspend-tenant"),
					schedule,
					command.String("suspend-subscribers"),
				)
				if err != nil {
					return err
				}
			}

			runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			return worker.Start(runCtx)
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
