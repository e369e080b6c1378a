package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/leadflowhq/leadflow/pkg/cmd"
	"github.com/leadflowhq/leadflow/pkg/log"
	"github.com/leadflowhq/leadflow/pkg/persistence"
	"github.com/leadflowhq/leadflow/pkg/services"
	"github.com/leadflowhq/leadflow/pkg/validation"
)

// withRunService opens persistence and hands a run service to the
// action; lifecycle events and queued tasks are discarded in one-off
// CLI runs.
func withRunService(ctx context.Context, command *cli.Command, fn func(*services.Run, persistence.Persistence) error) error {
	log.Setup(command.String("log-level"))
	logger := log.WithModule("cli")

	store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := store.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	runService := services.NewRun(store,
		cmd.NewExecutor(store, nil, logger),
		cmd.NewDryRunner(store, logger))

	return fn(runService, store)
}

func printJSON(value any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")

	return encoder.Encode(value)
}

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Validate a workflow graph and print the result",
		ArgsUsage: "<workflow-id>",
		Action: func(ctx context.Context, command *cli.Command) error {
			workflowID := command.Args().First()
			if workflowID == "" {
				return fmt.Errorf("workflow id is required")
			}

			return withRunService(ctx, command, func(_ *services.Run, store persistence.Persistence) error {
				workflow, err := store.WorkflowRepository().WorkflowByID(ctx, workflowID)
				if err != nil {
					return err
				}

				result := validation.Validate(workflow)

				if err := printJSON(result); err != nil {
					return err
				}

				if !result.Valid {
					return fmt.Errorf("workflow %s is invalid", workflowID)
				}

				return nil
			})
		},
	}
}

func NewExecuteCommand() *cli.Command {
	return &cli.Command{
		Name:      "execute",
		Usage:     "Execute a workflow against a lead and print the trace",
		ArgsUsage: "<workflow-id> <lead-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "trigger-data",
				Usage: "JSON object passed to the trigger as external event data",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			workflowID := command.Args().Get(0)
			leadID := command.Args().Get(1)

			if workflowID == "" || leadID == "" {
				return fmt.Errorf("workflow id and lead id are required")
			}

			var triggerData map[string]any

			if raw := command.String("trigger-data"); raw != "" {
				if err := json.Unmarshal([]byte(raw), &triggerData); err != nil {
					return fmt.Errorf("invalid trigger-data: %w", err)
				}
			}

			return withRunService(ctx, command, func(runs *services.Run, _ persistence.Persistence) error {
				trace, err := runs.Execute(ctx, workflowID, leadID, triggerData)
				if err != nil {
					return err
				}

				return printJSON(trace)
			})
		},
	}
}

func NewResumeCommand() *cli.Command {
	return &cli.Command{
		Name:      "resume",
		Usage:     "Resume a paused run and print the trace",
		ArgsUsage: "<workflow-id> <lead-id>",
		Action: func(ctx context.Context, command *cli.Command) error {
			workflowID := command.Args().Get(0)
			leadID := command.Args().Get(1)

			if workflowID == "" || leadID == "" {
				return fmt.Errorf("workflow id and lead id are required")
			}

			return withRunService(ctx, command, func(runs *services.Run, _ persistence.Persistence) error {
				trace, err := runs.Resume(ctx, workflowID, leadID)
				if err != nil {
					return err
				}

				return printJSON(trace)
			})
		},
	}
}

func NewDryRunCommand() *cli.Command {
	return &cli.Command{
		Name:      "dry-run",
		Usage:     "Execute a workflow with side effects suppressed",
		ArgsUsage: "<workflow-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "lead-id",
				Usage: "Run against this lead instead of a synthetic one",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			workflowID := command.Args().First()
			if workflowID == "" {
				return fmt.Errorf("workflow id is required")
			}

			return withRunService(ctx, command, func(runs *services.Run, _ persistence.Persistence) error {
				trace, testRunID, err := runs.DryRun(ctx, workflowID, command.String("lead-id"))
				if err != nil {
					return err
				}

				return printJSON(map[string]any{
					"test_run_id": testRunID,
					"trace":       trace,
				})
			})
		},
	}
}
