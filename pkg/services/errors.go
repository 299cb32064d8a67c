// Package services implements the orchestration service: the workflow-type
// entry points callers use to start, inspect, retry, and export workflows.
package services

import (
	"errors"
	"fmt"

	"github.com/ispforge/sagaflow/pkg/persistence"
)

// Business Logic Errors - These indicate client errors (4xx responses).
var (
	// Validation Errors (400 Bad Request).
	ErrInvalidRequest      = errors.New("invalid request")
	ErrTenantRequired      = errors.New("tenant ID is required")
	ErrInvalidWorkflowType = errors.New("invalid workflow type")
	ErrInvalidInputData    = errors.New("input data does not match the workflow schema")
	ErrInvalidStatusFilter = errors.New("invalid status filter")
	ErrInvalidFormat       = errors.New("invalid export format")

	// Business Logic Conflicts (409 Conflict).
	ErrWorkflowNotRetryable = errors.New("only failed workflows can be retried")
	ErrRetryBudgetExhausted = errors.New("workflow retry budget exhausted")
)

// ErrWorkflowNotFound is returned when a workflow is not found.
var ErrWorkflowNotFound = persistence.ErrWorkflowNotFound

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
		errors.Is(err, ErrTenantRequired) ||
		errors.Is(err, ErrInvalidWorkflowType) ||
		errors.Is(err, ErrInvalidInputData) ||
		errors.Is(err, ErrInvalidStatusFilter) ||
		errors.Is(err, ErrInvalidFormat)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return errors.Is(err, persistence.ErrWorkflowNotFound) ||
		errors.Is(err, persistence.ErrStepNotFound)
}

// IsConflictError checks if an error is a business logic conflict that should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrWorkflowNotRetryable) ||
		errors.Is(err, ErrRetryBudgetExhausted) ||
		errors.Is(err, persistence.ErrWorkflowExists) ||
		errors.Is(err, persistence.ErrWorkflowTerminal)
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
