// Package persistence provides the data storage abstraction layer for
// workflows, leads, paused execution state, and dry-run traces.
package persistence

import (
	"context"
	"time"

	"github.com/leadflowhq/leadflow/pkg/models"
)

// Persistence is the root storage contract. Each backend exposes the
// same set of repositories.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	LeadRepository() LeadRepository
	PausedStateRepository() PausedStateRepository
	TraceRepository() TraceRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ListWorkflowsOptions filters and paginates workflow listings.
type ListWorkflowsOptions struct {
	OwnerID   string
	Status    *models.WorkflowStatus
	Limit     int
	Offset    int
	SortBy    string
	SortOrder string
}

// WorkflowListResult is one page of a workflow listing.
type WorkflowListResult struct {
	Workflows   []*models.Workflow
	TotalCount  int64
	HasNextPage bool
}

// WorkflowRepository stores workflow definitions and their run
// counters.
type WorkflowRepository interface {
	Workflows(ctx context.Context) ([]*models.Workflow, error)
	ListWorkflows(ctx context.Context, opts ListWorkflowsOptions) (*WorkflowListResult, error)
	WorkflowByID(ctx context.Context, id string) (*models.Workflow, error)
	SaveWorkflow(ctx context.Context, workflow *models.Workflow) error
	DeleteWorkflow(ctx context.Context, id string) error

	// IncrementRunStats atomically bumps the run counters so multiple
	// engine processes stay consistent.
	IncrementRunStats(ctx context.Context, workflowID string, success bool) error
}

// LeadRepository stores lead records and their activity log. It also
// serves the collection queries loop nodes iterate over.
type LeadRepository interface {
	LeadByID(ctx context.Context, id string) (*models.Lead, error)
	SaveLead(ctx context.Context, lead *models.Lead) error
	UpdateLead(ctx context.Context, leadID string, patch map[string]any) error
	DeleteLead(ctx context.Context, id string) error

	AddActivity(ctx context.Context, activity *models.Activity) error
	ActivitiesByLead(ctx context.Context, leadID string, limit int) ([]*models.Activity, error)

	LeadsMatching(ctx context.Context, filter map[string]any, limit int) ([]string, error)
	AudienceMembers(ctx context.Context, audience string, limit int) ([]string, error)
}

// PausedStateRepository holds pause checkpoints keyed by (workflow id,
// lead id). ClearPausedState must fail with ErrVersionConflict when the
// stored version differs, so concurrent resumes serialize.
type PausedStateRepository interface {
	SavePausedState(ctx context.Context, state *models.ExecutionState) error
	LoadPausedState(ctx context.Context, workflowID, leadID string) (*models.ExecutionState, error)
	ListDuePausedStates(ctx context.Context, before time.Time, limit int) ([]*models.ExecutionState, error)
	ClearPausedState(ctx context.Context, workflowID, leadID string, version int) error
}

// TraceRepository stores execution traces keyed by a test-run
// identifier.
type TraceRepository interface {
	SaveTrace(ctx context.Context, testRunID string, trace *models.ExecutionTrace) error
	TraceByID(ctx context.Context, testRunID string) (*models.ExecutionTrace, error)
}
