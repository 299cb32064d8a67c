package saga

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is support.
var (
	ErrNilDefinition       = errors.New("definition is nil")
	ErrEmptyDefinition     = errors.New("definition has no steps")
	ErrInvalidStep         = errors.New("step needs a name and a handler")
	ErrDuplicateStep       = errors.New("duplicate step name")
	ErrDuplicateDefinition = errors.New("workflow type already registered")
	ErrUnknownWorkflowType = errors.New("unknown workflow type")

	// ErrWorkflowNotPending indicates Execute was called for a workflow that
	// is not in pending status (e.g. a second trigger for a running workflow).
	ErrWorkflowNotPending = errors.New("workflow is not pending")

	// ErrWorkflowLocked indicates another process is already executing this
	// workflow instance.
	ErrWorkflowLocked = errors.New("workflow is locked by another execution")
)

// HandlerError records a forward step failure. The workflow and step records
// capture the failure before this error reaches the caller.
type HandlerError struct {
	WorkflowID     string
	StepName       string
	SequenceNumber int
	Err            error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("step %s (#%d) of workflow %s failed: %v", e.StepName, e.SequenceNumber, e.WorkflowID, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// CompensationError records a single failed undo during rollback.
type CompensationError struct {
	WorkflowID     string
	StepName       string
	SequenceNumber int
	Err            error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("compensation of step %s (#%d) in workflow %s failed: %v", e.StepName, e.SequenceNumber, e.WorkflowID, e.Err)
}

func (e *CompensationError) Unwrap() error {
	return e.Err
}

// IsHandlerError checks whether err carries a forward step failure.
func IsHandlerError(err error) bool {
	var handlerErr *HandlerError

	return errors.As(err, &handlerErr)
}
