package services

import (
	"context"
	"fmt"

	"github.com/leadflowhq/leadflow/pkg/engine"
	"github.com/leadflowhq/leadflow/pkg/models"
	"github.com/leadflowhq/leadflow/pkg/persistence"
)

// Run orchestrates workflow execution against stored workflows and leads.
type Run struct {
	persistence persistence.Persistence
	executor    *engine.Executor
	dryRunner   *engine.DryRunner
}

// NewRun creates a new run service.
func NewRun(persistence persistence.Persistence, executor *engine.Executor, dryRunner *engine.DryRunner) *Run {
	return &Run{
		persistence: persistence,
		executor:    executor,
		dryRunner:   dryRunner,
	}
}

// Execute starts a run of the workflow against the lead.
func (r *Run) Execute(ctx context.Context, workflowID, leadID string, triggerData map[string]any) (*models.ExecutionTrace, error) {
	workflow, err := r.persistence.WorkflowRepository().WorkflowByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	lead, err := r.persistence.LeadRepository().LeadByID(ctx, leadID)
	if err != nil {
		return nil, err
	}

	return r.executor.Execute(ctx, workflow, lead, triggerData)
}

// Resume continues a paused run. The stored checkpoint is consumed
// before any node executes; a concurrent resume of the same checkpoint
// loses with ErrResumeConflict.
func (r *Run) Resume(ctx context.Context, workflowID, leadID string) (*models.ExecutionTrace, error) {
	state, err := r.persistence.PausedStateRepository().LoadPausedState(ctx, workflowID, leadID)
	if err != nil {
		return nil, err
	}

	if state == nil {
		return nil, fmt.Errorf("workflow %s lead %s: %w", workflowID, leadID, engine.ErrNotPaused)
	}

	workflow, err := r.persistence.WorkflowRepository().WorkflowByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	lead, err := r.persistence.LeadRepository().LeadByID(ctx, leadID)
	if err != nil {
		return nil, err
	}

	trace, err := r.executor.Resume(ctx, workflow, lead, state)
	if err != nil {
		if persistence.IsVersionConflict(err) {
			return nil, fmt.Errorf("workflow %s lead %s: %w", workflowID, leadID, ErrResumeConflict)
		}

		return nil, err
	}

	return trace, nil
}

// DryRun executes the workflow with all side effects suppressed. An
// empty leadID runs against a synthetic lead.
func (r *Run) DryRun(ctx context.Context, workflowID, leadID string) (*models.ExecutionTrace, string, error) {
	workflow, err := r.persistence.WorkflowRepository().WorkflowByID(ctx, workflowID)
	if err != nil {
		return nil, "", err
	}

	var lead *models.Lead

	if leadID != "" {
		lead, err = r.persistence.LeadRepository().LeadByID(ctx, leadID)
		if err != nil {
			return nil, "", err
		}
	}

	return r.dryRunner.Run(ctx, workflow, lead)
}

// Trace loads a stored dry-run trace by test run identifier.
func (r *Run) Trace(ctx context.Context, testRunID string) (*models.ExecutionTrace, error) {
	return r.persistence.TraceRepository().TraceByID(ctx, testRunID)
}
