// Package main provides the leadflow CLI for validating and running
// workflows against a persistence backend.
package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/leadflowhq/leadflow/pkg/log"
)

func main() {
	command := &cli.Command{
		Name:                  "leadflow",
		Usage:                 "Validate and run lead workflows",
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
			NewValidateCommand(),
			NewExecuteCommand(),
			NewResumeCommand(),
			NewDryRunCommand(),
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		log.WithModule("cli").Error("leadflow exited", "error", err)
		os.Exit(1)
	}
}
