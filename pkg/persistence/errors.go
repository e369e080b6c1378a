// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrLeadNotFound indicates a lead was not found by the given identifier.
	ErrLeadNotFound = errors.New("lead not found")

	// ErrPausedStateNotFound indicates no pause checkpoint exists for the given key.
	ErrPausedStateNotFound = errors.New("paused state not found")

	// ErrVersionConflict indicates a pause checkpoint was modified or consumed
	// by another writer since it was read.
	ErrVersionConflict = errors.New("paused state version conflict")

	// ErrTraceNotFound indicates no trace exists for the given test-run identifier.
	ErrTraceNotFound = errors.New("trace not found")

	// ErrInvalidWorkflowStatus indicates an invalid workflow status was provided.
	ErrInvalidWorkflowStatus = errors.New("invalid workflow status")
)

// WorkflowError wraps workflow-related errors with additional context.
type WorkflowError struct {
	Op         string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	WorkflowID string // Workflow ID if applicable
	Err        error  // Underlying error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for workflow errors.
func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWorkflowError creates a new workflow error with context.
func NewWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{
		Op:         op,
		WorkflowID: workflowID,
		Err:        err,
	}
}

// LeadError wraps lead-related errors with additional context.
type LeadError struct {
	Op     string // Operation being performed
	LeadID string // Lead ID
	Err    error  // Underlying error
}

func (e *LeadError) Error() string {
	return fmt.Sprintf("%s operation failed for lead %s: %v", e.Op, e.LeadID, e.Err)
}

func (e *LeadError) Unwrap() error {
	return e.Err
}

func (e *LeadError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewLeadError creates a new lead error with context.
func NewLeadError(op, leadID string, err error) *LeadError {
	return &LeadError{
		Op:     op,
		LeadID: leadID,
		Err:    err,
	}
}

// StateError wraps pause-checkpoint errors with the checkpoint key.
type StateError struct {
	Op         string // Operation being performed
	WorkflowID string // Workflow ID
	LeadID     string // Lead ID
	Err        error  // Underlying error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s operation failed for paused state (workflow %s, lead %s): %v", e.Op, e.WorkflowID, e.LeadID, e.Err)
}

func (e *StateError) Unwrap() error {
	return e.Err
}

func (e *StateError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewStateError creates a new paused-state error with context.
func NewStateError(op, workflowID, leadID string, err error) *StateError {
	return &StateError{
		Op:         op,
		WorkflowID: workflowID,
		LeadID:     leadID,
		Err:        err,
	}
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsLeadNotFound checks if an error indicates a lead was not found.
func IsLeadNotFound(err error) bool {
	return errors.Is(err, ErrLeadNotFound)
}

// IsVersionConflict checks if an error indicates a paused-state version conflict.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}
