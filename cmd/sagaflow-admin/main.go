// Package main provides the Sagaflow operator CLI: workflow export and
// per-tenant statistics.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/ispforge/sagaflow/pkg/cmd"
	"github.com/ispforge/sagaflow/pkg/log"
	"github.com/ispforge/sagaflow/pkg/models"
	"github.com/ispforge/sagaflow/pkg/persistence"
	"github.com/ispforge/sagaflow/pkg/services"
)

func main() {
	logger := log.WithModule("admin")

	command := &cli.Command{
		Name:                  "sagaflow-admin",
		Usage:                 "Operator tooling for workflow audit",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			exportCommand(logger),
			statsCommand(logger),
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func exportCommand(logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Dump workflows with step timelines as CSV or JSON",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "tenant",
				Usage:    "Tenant to export",
				Required: true,
				Sources:  cli.EnvVars("TENANT_ID"),
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "Export format (csv, json)",
				Value: "json",
			},
			&cli.StringFlag{
				Name:  "status",
				Usage: "Only export workflows with this status",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output file; stdout when empty",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.Root().String("log-level"))

			store, err := cmd.NewPersistence(ctx, logger, command.Root().String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			filter := persistence.WorkflowFilter{}
			if statusStr := command.String("status"); statusStr != "" {
				status := models.WorkflowStatus(statusStr)
				filter.Status = &status
			}

			var out io.Writer = os.Stdout

			if path := command.String("output"); path != "" {
				file, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer file.Close()

				out = file
			}

			exporter := services.NewExporter(store)

			return exporter.Export(ctx, command.String("tenant"), filter,
				services.ExportFormat(command.String("format")), out)
		},
	}
}

func statsCommand(logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Print per-tenant workflow statistics",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "tenant",
				Usage:    "Tenant to inspect",
				Required: true,
				Sources:  cli.EnvVars("TENANT_ID"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.Root().String("log-level"))

			store, err := cmd.NewPersistence(ctx, logger, command.Root().String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			stats, err := store.WorkflowStatistics(ctx, command.String("tenant"))
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")

			return encoder.Encode(stats)
		},
	}
}
