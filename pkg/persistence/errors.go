// Package persistence provides standardized error types for storage operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates no workflow exists for the tenant and identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrWorkflowExists indicates a workflow with the same identifier already
	// exists for the tenant.
	ErrWorkflowExists = errors.New("workflow already exists")

	// ErrWorkflowTerminal indicates a mutation was attempted on a workflow in
	// a terminal status over an edge the state machine does not allow.
	ErrWorkflowTerminal = errors.New("workflow is terminal")

	// ErrStepNotFound indicates a workflow step was not found by its identifier.
	ErrStepNotFound = errors.New("workflow step not found")

	// ErrInvalidTransition indicates a status update that the state machine forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// WorkflowError wraps workflow-related storage errors with operation context.
type WorkflowError struct {
	Op         string // Operation being performed (e.g. "CreateWorkflow")
	TenantID   string
	WorkflowID string
	Err        error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s failed for workflow %s (tenant %s): %v", e.Op, e.WorkflowID, e.TenantID, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWorkflowError creates a new workflow storage error with context.
func NewWorkflowError(op, tenantID, workflowID string, err error) *WorkflowError {
	return &WorkflowError{
		Op:         op,
		TenantID:   tenantID,
		WorkflowID: workflowID,
		Err:        err,
	}
}

// StepError wraps step-related storage errors with operation context.
type StepError struct {
	Op         string
	WorkflowID string
	StepID     string
	Err        error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s failed for step %s in workflow %s: %v", e.Op, e.StepID, e.WorkflowID, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func (e *StepError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsWorkflowNotFound checks if an error indicates a missing workflow.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsWorkflowTerminal checks if an error indicates a forbidden terminal-state mutation.
func IsWorkflowTerminal(err error) bool {
	return errors.Is(err, ErrWorkflowTerminal)
}

// IsStepNotFound checks if an error indicates a missing workflow step.
func IsStepNotFound(err error) bool {
	return errors.Is(err, ErrStepNotFound)
}
