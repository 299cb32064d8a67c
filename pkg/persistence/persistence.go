// Package persistence provides the data storage abstraction for workflows and
// their step records.
package persistence

import (
	"context"
	"time"

	"github.com/ispforge/sagaflow/pkg/models"
)

// WorkflowFilter narrows ListWorkflows results. Zero values mean "no filter".
type WorkflowFilter struct {
	Status *models.WorkflowStatus
	Type   *models.WorkflowType
	Limit  int
	Offset int
}

// WorkflowStatistics aggregates per-tenant workflow counts and durations.
type WorkflowStatistics struct {
	TotalCount      int64                           `json:"total_count"`
	ByStatus        map[models.WorkflowStatus]int64 `json:"by_status"`
	ByType          map[models.WorkflowType]int64   `json:"by_type"`
	AverageDuration time.Duration                   `json:"average_duration"`
}

// Persistence is the durability unit for saga state. Implementations must
// commit after each call so that a crash mid-saga leaves a resumable,
// inspectable record. Every read and write is scoped by tenant.
type Persistence interface {
	CreateWorkflow(ctx context.Context, workflow *models.Workflow) error
	UpdateWorkflow(ctx context.Context, workflow *models.Workflow) error
	WorkflowByID(ctx context.Context, tenantID, workflowID string) (*models.Workflow, error)
	ListWorkflows(ctx context.Context, tenantID string, filter WorkflowFilter) ([]*models.Workflow, int64, error)
	WorkflowStatistics(ctx context.Context, tenantID string) (*WorkflowStatistics, error)

	CreateWorkflowStep(ctx context.Context, step *models.WorkflowStep) error
	UpdateWorkflowStep(ctx context.Context, step *models.WorkflowStep) error
	WorkflowSteps(ctx context.Context, tenantID, workflowID string) ([]*models.WorkflowStep, error)

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ValidateTransition enforces the workflow state machine on status updates.
// Implementations call it before persisting a status change so that terminal
// workflows are never silently overwritten.
func ValidateTransition(current, next models.WorkflowStatus) error {
	if current == next {
		return nil
	}

	if !current.CanTransitionTo(next) {
		if current.Terminal() {
			return ErrWorkflowTerminal
		}

		return ErrInvalidTransition
	}

	return nil
}

// ValidateStepTransition enforces the per-step state machine on status updates.
func ValidateStepTransition(current, next models.StepStatus) error {
	if current == next {
		return nil
	}

	if !current.CanTransitionTo(next) {
		return ErrInvalidTransition
	}

	return nil
}
