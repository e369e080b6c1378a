// Package services provides the business operations behind the API and
// CLI: workflow lifecycle, lead operations, and run orchestration.
package services

import (
	"errors"
	"fmt"
)

// Business logic errors. These indicate client errors (4xx responses).
var (
	// Validation errors (400 Bad Request).
	ErrInvalidRequest   = errors.New("invalid request")
	ErrInvalidSortField = errors.New("invalid sort field")
	ErrInvalidSortOrder = errors.New("invalid sort order")
	ErrInvalidStatus    = errors.New("invalid workflow status")
	ErrWorkflowNil      = errors.New("workflow cannot be nil")
	ErrLeadNil          = errors.New("lead cannot be nil")
	ErrGraphInvalid     = errors.New("workflow graph is invalid")

	// Business logic conflicts (409 Conflict).
	ErrCannotEditArchived = errors.New("cannot modify archived workflow")
	ErrWorkflowNotActive  = errors.New("workflow is not active")
	ErrResumeConflict     = errors.New("resume already in progress")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidSortField) ||
		errors.Is(err, ErrInvalidSortOrder) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrWorkflowNil) ||
		errors.Is(err, ErrLeadNil) ||
		errors.Is(err, ErrGraphInvalid)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrCannotEditArchived) ||
		errors.Is(err, ErrWorkflowNotActive) ||
		errors.Is(err, ErrResumeConflict)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
