// Package models defines the core domain records for saga-driven provisioning workflows.
package models

import "time"

// WorkflowType identifies one of the supported business processes. Each type
// maps to an ordered step list in the workflow definition registry.
type WorkflowType string

const (
	WorkflowTypeProvisionSubscriber   WorkflowType = "provision_subscriber"
	WorkflowTypeDeprovisionSubscriber WorkflowType = "deprovision_subscriber"
	WorkflowTypeActivateService       WorkflowType = "activate_service"
	WorkflowTypeSuspendService        WorkflowType = "suspend_service"
	WorkflowTypeChangeServicePlan     WorkflowType = "change_service_plan"
	WorkflowTypeUpdateNetworkConfig   WorkflowType = "update_network_config"
	WorkflowTypeMigrateSubscriber     WorkflowType = "migrate_subscriber"
)

// WorkflowTypes lists every supported workflow type.
func WorkflowTypes() []WorkflowType {
	return []WorkflowType{
		WorkflowTypeProvisionSubscriber,
		WorkflowTypeDeprovisionSubscriber,
		WorkflowTypeActivateService,
		WorkflowTypeSuspendService,
		WorkflowTypeChangeServicePlan,
		WorkflowTypeUpdateNetworkConfig,
		WorkflowTypeMigrateSubscriber,
	}
}

func (t WorkflowType) Valid() bool {
	for _, known := range WorkflowTypes() {
		if t == known {
			return true
		}
	}

	return false
}

// WorkflowStatus represents the lifecycle state of a workflow run.
type WorkflowStatus string

const (
	WorkflowStatusPending     WorkflowStatus = "pending"
	WorkflowStatusRunning     WorkflowStatus = "running"
	WorkflowStatusCompleted   WorkflowStatus = "completed"
	WorkflowStatusFailed      WorkflowStatus = "failed"
	WorkflowStatusRollingBack WorkflowStatus = "rolling_back"
	WorkflowStatusRolledBack  WorkflowStatus = "rolled_back"
	WorkflowStatusCompensated WorkflowStatus = "compensated"
)

// Terminal reports whether the status permits no further forward execution.
// A failed workflow is terminal too, but may still take the explicit retry
// edge back to pending while its retry budget lasts.
func (s WorkflowStatus) Terminal() bool {
	switch s {
	case WorkflowStatusCompleted, WorkflowStatusFailed, WorkflowStatusRolledBack, WorkflowStatusCompensated:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the transition s -> next is legal.
func (s WorkflowStatus) CanTransitionTo(next WorkflowStatus) bool {
	switch s {
	case WorkflowStatusPending:
		return next == WorkflowStatusRunning
	case WorkflowStatusRunning:
		return next == WorkflowStatusCompleted || next == WorkflowStatusFailed || next == WorkflowStatusRollingBack
	case WorkflowStatusFailed:
		// pending is the manual retry edge, rolling_back covers late compensation.
		return next == WorkflowStatusPending || next == WorkflowStatusRollingBack
	case WorkflowStatusRollingBack:
		return next == WorkflowStatusRolledBack || next == WorkflowStatusCompensated || next == WorkflowStatusFailed
	default:
		return false
	}
}

// InitiatorType identifies what kind of actor started a workflow.
type InitiatorType string

const (
	InitiatorTypeUser      InitiatorType = "user"
	InitiatorTypeSystem    InitiatorType = "system"
	InitiatorTypeScheduler InitiatorType = "scheduler"
)

// Workflow is one saga instance. It is created in pending by the orchestration
// service and mutated only by the saga executor thereafter. All reads and
// writes are scoped by TenantID.
type Workflow struct {
	ID            string         `json:"id"`
	WorkflowID    string         `json:"workflow_id"   validate:"required"`
	TenantID      string         `json:"tenant_id"     validate:"required"`
	Type          WorkflowType   `json:"workflow_type" validate:"required"`
	Status        WorkflowStatus `json:"status"        validate:"required"`
	InputData     map[string]any `json:"input_data"`
	Context       map[string]any `json:"context"`
	OutputData    map[string]any `json:"output_data,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	ErrorDetails  map[string]any `json:"error_details,omitempty"`
	RetryCount    int            `json:"retry_count"`
	MaxRetries    int            `json:"max_retries"`
	InitiatorID   string         `json:"initiator_id,omitempty"`
	InitiatorType InitiatorType  `json:"initiator_type,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`

	// Steps are owned by the workflow; deleting a workflow deletes its steps.
	Steps []*WorkflowStep `json:"steps,omitempty"`
}

// ContextValue returns a string value from the accumulated workflow context.
func (w *Workflow) ContextValue(key string) string {
	if w.Context == nil {
		return ""
	}

	value, _ := w.Context[key].(string)

	return value
}
