// Package main provides the resume sweeper worker: it periodically
// scans for paused runs whose delay has elapsed and resumes them.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"github.com/leadflowhq/leadflow/pkg/cmd"
	"github.com/leadflowhq/leadflow/pkg/log"
)

func main() {
	logger := log.WithModule("resumer")

	command := &cli.Command{
		Name:                  "leadflow-resumer",
		Usage:                 "Resume paused workflow runs whose delay has elapsed",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "schedule",
				Usage:   "Cron expression for the sweep interval",
				Value:   "@every 30s",
				Sources: cli.EnvVars("RESUMER_SCHEDULE"),
			},
			&cli.IntFlag{
				Name:    "batch-size",
				Usage:   "Maximum paused runs resumed per sweep",
				Value:   100,
				Sources: cli.EnvVars("RESUMER_BATCH_SIZE"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Leadflow resumer")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(ctx, command.String("event-bus"), "leadflow-resumer", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			sweeper := NewSweeper(logger, persistence, eventBus, command.Int("batch-size"))

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return sweeper.Start(ctx, command.String("schedule"))
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		logger.Error("leadflow-resumer exited", "error", err)
		os.Exit(1)
	}
}
