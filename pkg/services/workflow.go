package services

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/leadflowhq/leadflow/pkg/models"
	"github.com/leadflowhq/leadflow/pkg/persistence"
	"github.com/leadflowhq/leadflow/pkg/validation"
)

// ErrWorkflowNotFound is returned when a workflow is not found.
var ErrWorkflowNotFound = persistence.ErrWorkflowNotFound

type Workflow struct {
	persistence persistence.Persistence
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(persistence persistence.Persistence) *Workflow {
	return &Workflow{
		persistence: persistence,
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListWorkflowsRequest contains options for listing workflows.
type ListWorkflowsRequest struct {
	// Pagination
	Limit  int `validate:"min=0,max=100"`
	Offset int `validate:"min=0"`

	// Filtering
	OwnerID string
	Status  *models.WorkflowStatus

	// Sorting
	SortBy    string
	SortOrder string
}

// ListWorkflowsResponse contains the result of listing workflows.
type ListWorkflowsResponse struct {
	Workflows   []*models.Workflow `json:"workflows"`
	TotalCount  int64              `json:"total_count"`
	HasNextPage bool               `json:"has_next_page"`
}

// ListWorkflows retrieves workflows with filtering, sorting, and pagination.
func (w *Workflow) ListWorkflows(ctx context.Context, req ListWorkflowsRequest) (*ListWorkflowsResponse, error) {
	if err := w.validateListWorkflowsRequest(&req); err != nil {
		return nil, err
	}

	opts := persistence.ListWorkflowsOptions{
		Limit:     req.Limit,
		Offset:    req.Offset,
		OwnerID:   req.OwnerID,
		Status:    req.Status,
		SortBy:    req.SortBy,
		SortOrder: req.SortOrder,
	}

	result, err := w.persistence.WorkflowRepository().ListWorkflows(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return &ListWorkflowsResponse{
		Workflows:   result.Workflows,
		TotalCount:  result.TotalCount,
		HasNextPage: result.HasNextPage,
	}, nil
}

// validateListWorkflowsRequest validates and sets defaults for the request.
func (w *Workflow) validateListWorkflowsRequest(req *ListWorkflowsRequest) error {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	if req.Limit > 100 {
		req.Limit = 100
	}

	if req.Offset < 0 {
		req.Offset = 0
	}

	if req.SortBy == "" {
		req.SortBy = "created_at"
	}

	if req.SortOrder == "" {
		req.SortOrder = "desc"
	}

	if !slices.Contains([]string{"created_at", "updated_at", "name"}, req.SortBy) {
		return ErrInvalidSortField
	}

	if !slices.Contains([]string{"asc", "desc"}, strings.ToLower(req.SortOrder)) {
		return ErrInvalidSortOrder
	}

	if req.Status != nil {
		switch *req.Status {
		case models.WorkflowStatusDraft, models.WorkflowStatusActive, models.WorkflowStatusArchived:
		default:
			return ErrInvalidStatus
		}
	}

	return nil
}

// FetchByID retrieves a workflow by its identifier.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	return w.persistence.WorkflowRepository().WorkflowByID(ctx, id)
}

// Create stores a new workflow in draft status. The graph may be
// incomplete at this point; structural validation gates activation, not
// creation.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	workflow.ID = ""
	workflow.Status = models.WorkflowStatusDraft
	workflow.Stats = models.RunStats{}

	if err := w.persistence.WorkflowRepository().SaveWorkflow(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	return workflow, nil
}

// Update overwrites the workflow definition. Archived workflows are
// frozen; an active workflow whose updated graph no longer validates is
// rejected so the engine never sees an invalid active definition.
func (w *Workflow) Update(ctx context.Context, id string, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	existing, err := w.persistence.WorkflowRepository().WorkflowByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if existing.Status == models.WorkflowStatusArchived {
		return nil, ErrCannotEditArchived
	}

	workflow.ID = existing.ID
	workflow.Status = existing.Status
	workflow.Stats = existing.Stats
	workflow.CreatedAt = existing.CreatedAt

	if existing.Status == models.WorkflowStatusActive {
		if result := validation.Validate(workflow); !result.Valid {
			return nil, NewValidationError("Update", "graph_invalid",
				validationSummary(result), ErrGraphInvalid)
		}
	}

	if err := w.persistence.WorkflowRepository().SaveWorkflow(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to update workflow %s: %w", id, err)
	}

	return workflow, nil
}

// Activate transitions a workflow to active status after a full
// structural validation of its graph.
func (w *Workflow) Activate(ctx context.Context, id string) (*models.Workflow, error) {
	workflow, err := w.persistence.WorkflowRepository().WorkflowByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if workflow.Status == models.WorkflowStatusArchived {
		return nil, ErrCannotEditArchived
	}

	if result := validation.Validate(workflow); !result.Valid {
		return nil, NewValidationError("Activate", "graph_invalid",
			validationSummary(result), ErrGraphInvalid)
	}

	workflow.Status = models.WorkflowStatusActive

	if err := w.persistence.WorkflowRepository().SaveWorkflow(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to activate workflow %s: %w", id, err)
	}

	return workflow, nil
}

// Archive transitions a workflow to archived status. Paused runs keyed
// to it stay stored; resuming them fails the active-status gate.
func (w *Workflow) Archive(ctx context.Context, id string) (*models.Workflow, error) {
	workflow, err := w.persistence.WorkflowRepository().WorkflowByID(ctx, id)
	if err != nil {
		return nil, err
	}

	workflow.Status = models.WorkflowStatusArchived

	if err := w.persistence.WorkflowRepository().SaveWorkflow(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to archive workflow %s: %w", id, err)
	}

	return workflow, nil
}

// Delete soft-deletes a workflow.
func (w *Workflow) Delete(ctx context.Context, workflowID string) error {
	return w.persistence.WorkflowRepository().DeleteWorkflow(ctx, workflowID)
}

// ValidateGraph runs structural validation without changing anything.
func (w *Workflow) ValidateGraph(ctx context.Context, id string) (*validation.Result, error) {
	workflow, err := w.persistence.WorkflowRepository().WorkflowByID(ctx, id)
	if err != nil {
		return nil, err
	}

	result := validation.Validate(workflow)

	return &result, nil
}

func validationSummary(result validation.Result) string {
	messages := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		messages = append(messages, e.Message)
	}

	return strings.Join(messages, "; ")
}
