package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/leadflowhq/leadflow/pkg/cmd"
	"github.com/leadflowhq/leadflow/pkg/engine"
	"github.com/leadflowhq/leadflow/pkg/eventbus"
	"github.com/leadflowhq/leadflow/pkg/persistence"
	"github.com/leadflowhq/leadflow/pkg/services"
)

// Sweeper resumes due paused runs in batches. Multiple sweepers can run
// against the same store: the checkpoint's version check makes sure each
// paused run is resumed exactly once.
type Sweeper struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	runs        *services.Run
	batchSize   int
}

func NewSweeper(logger *slog.Logger, store persistence.Persistence, bus eventbus.EventBus, batchSize int) *Sweeper {
	runs := services.NewRun(store,
		cmd.NewExecutor(store, bus, logger),
		cmd.NewDryRunner(store, logger))

	return &Sweeper{
		logger:      logger,
		persistence: store,
		runs:        runs,
		batchSize:   batchSize,
	}
}

// Start runs sweeps on the cron schedule until the context is cancelled.
func (s *Sweeper) Start(ctx context.Context, schedule string) error {
	scheduler := cron.New()

	_, err := scheduler.AddFunc(schedule, func() {
		s.Sweep(ctx)
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Resumer started", "schedule", schedule, "batch_size", s.batchSize)

	scheduler.Start()
	<-ctx.Done()

	stopCtx := scheduler.Stop()
	<-stopCtx.Done()

	return nil
}

// Sweep resumes every due paused run in one batch. Lost version races
// and runs paused again at a later delay node are both normal outcomes.
func (s *Sweeper) Sweep(ctx context.Context) {
	due, err := s.persistence.PausedStateRepository().ListDuePausedStates(ctx, time.Now().UTC(), s.batchSize)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list due paused runs", "error", err)

		return
	}

	if len(due) == 0 {
		return
	}

	s.logger.InfoContext(ctx, "Resuming due paused runs", "count", len(due))

	for _, state := range due {
		trace, err := s.runs.Resume(ctx, state.WorkflowID, state.LeadID)

		switch {
		case err == nil:
			s.logger.InfoContext(ctx, "Run resumed",
				"workflow_id", state.WorkflowID,
				"lead_id", state.LeadID,
				"status", trace.Status,
			)
		case errors.Is(err, services.ErrResumeConflict), errors.Is(err, engine.ErrNotPaused):
			// Another sweeper consumed this checkpoint first.
			s.logger.DebugContext(ctx, "Checkpoint already consumed",
				"workflow_id", state.WorkflowID,
				"lead_id", state.LeadID,
			)
		case errors.Is(err, engine.ErrWorkflowInactive):
			s.logger.WarnContext(ctx, "Paused run belongs to an inactive workflow",
				"workflow_id", state.WorkflowID,
				"lead_id", state.LeadID,
			)
		default:
			s.logger.ErrorContext(ctx, "Failed to resume run",
				"workflow_id", state.WorkflowID,
				"lead_id", state.LeadID,
				"error", err,
			)
		}
	}
}
