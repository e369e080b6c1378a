// Package web provides the HTTP API for workflow and lead management.
package web

import (
	"github.com/leadflowhq/leadflow/pkg/models"
	"github.com/leadflowhq/leadflow/pkg/scoring"
)

// CreateWorkflowRequest is the request body for creating a workflow.
type CreateWorkflowRequest struct {
	Name        string         `json:"name"        validate:"required,min=3"`
	Description string         `json:"description"`
	Owner       string         `json:"owner"`
	Nodes       []*models.Node `json:"nodes,omitempty"`
	Edges       []*models.Edge `json:"edges,omitempty"`
}

// UpdateWorkflowRequest is the request body for replacing a workflow
// definition. Name keeps its previous value when omitted.
type UpdateWorkflowRequest struct {
	Name        *string        `json:"name,omitempty" validate:"omitempty,min=3"`
	Description *string        `json:"description,omitempty"`
	Nodes       []*models.Node `json:"nodes"`
	Edges       []*models.Edge `json:"edges"`
}

// ExecuteRequest is the request body for starting a run.
type ExecuteRequest struct {
	LeadID      string         `json:"lead_id"      validate:"required"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
}

// ResumeRequest is the request body for resuming a paused run.
type ResumeRequest struct {
	LeadID string `json:"lead_id" validate:"required"`
}

// DryRunRequest is the request body for a dry run. LeadID is optional; a
// synthetic lead is used when it is empty.
type DryRunRequest struct {
	LeadID string `json:"lead_id,omitempty"`
}

// DryRunResponse pairs the trace with the identifier it is stored under.
type DryRunResponse struct {
	TestRunID string                 `json:"test_run_id"`
	Trace     *models.ExecutionTrace `json:"trace"`
}

// PatchLeadRequest is the request body for a partial lead update.
type PatchLeadRequest struct {
	Patch map[string]any `json:"patch" validate:"required,min=1"`
}

// RescoreRequest is the request body for recomputing a lead's score.
type RescoreRequest struct {
	Model scoring.Model `json:"model" validate:"required"`
}

// EnrichRequest is the request body for merging enrichment data into a
// lead.
type EnrichRequest struct {
	Payload   map[string]any `json:"payload" validate:"required,min=1"`
	Overwrite bool           `json:"overwrite,omitempty"`
}
