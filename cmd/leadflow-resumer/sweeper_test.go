package main

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadflowhq/leadflow/pkg/cmd"
	"github.com/leadflowhq/leadflow/pkg/models"
	"github.com/leadflowhq/leadflow/pkg/persistence"
	"github.com/leadflowhq/leadflow/pkg/persistence/file"
)

func seedPausedRun(t *testing.T, store persistence.Persistence) *models.Workflow {
	t.Helper()

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	workflow := &models.Workflow{
		Name:   "Nurture with delay",
		Status: models.WorkflowStatusActive,
		Nodes: []*models.Node{
			{ID: "t1", Kind: models.NodeKindTrigger, Subtype: "manual"},
			{ID: "d1", Kind: models.NodeKindDelay, Config: map[string]any{"delaySeconds": 3600}},
			{ID: "end", Kind: models.NodeKindEnd},
		},
		Edges: []*models.Edge{
			{ID: "e1", SourceNodeID: "t1", TargetNodeID: "d1"},
			{ID: "e2", SourceNodeID: "d1", TargetNodeID: "end"},
		},
	}
	require.NoError(t, store.WorkflowRepository().SaveWorkflow(ctx, workflow))
	require.NoError(t, store.LeadRepository().SaveLead(ctx, &models.Lead{ID: "lead-1"}))

	executor := cmd.NewExecutor(store, nil, logger)

	trace, err := executor.Execute(ctx, workflow, &models.Lead{ID: "lead-1"}, nil)
	require.NoError(t, err)
	require.Equal(t, models.ExecutionStatusPaused, trace.Status)

	// Backdate the checkpoint so the sweep sees it as due.
	state, err := store.PausedStateRepository().LoadPausedState(ctx, workflow.ID, "lead-1")
	require.NoError(t, err)
	past := time.Now().UTC().Add(-time.Minute)
	state.ResumeAt = &past
	require.NoError(t, store.PausedStateRepository().SavePausedState(ctx, state))

	return workflow
}

func TestSweepResumesDueRuns(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	workflow := seedPausedRun(t, store)

	sweeper := NewSweeper(slog.New(slog.NewTextHandler(io.Discard, nil)), store, nil, 10)
	sweeper.Sweep(context.Background())

	state, err := store.PausedStateRepository().LoadPausedState(context.Background(), workflow.ID, "lead-1")
	require.NoError(t, err)
	assert.Nil(t, state)

	stored, err := store.WorkflowRepository().WorkflowByID(context.Background(), workflow.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Stats.Runs)
	assert.Equal(t, int64(1), stored.Stats.Successes)
}

func TestSweepNoDueRuns(t *testing.T) {
	store := file.NewPersistence(t.TempDir())

	sweeper := NewSweeper(slog.New(slog.NewTextHandler(io.Discard, nil)), store, nil, 10)
	sweeper.Sweep(context.Background())
}
