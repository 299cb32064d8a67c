package models

import "time"

// StepStatus represents the per-step state machine.
type StepStatus string

const (
	StepStatusPending            StepStatus = "pending"
	StepStatusRunning            StepStatus = "running"
	StepStatusCompleted          StepStatus = "completed"
	StepStatusFailed             StepStatus = "failed"
	StepStatusSkipped            StepStatus = "skipped"
	StepStatusCompensating       StepStatus = "compensating"
	StepStatusCompensated        StepStatus = "compensated"
	StepStatusCompensationFailed StepStatus = "compensation_failed"
)

// CanTransitionTo reports whether the transition s -> next is legal.
func (s StepStatus) CanTransitionTo(next StepStatus) bool {
	switch s {
	case StepStatusPending:
		return next == StepStatusRunning || next == StepStatusSkipped
	case StepStatusRunning:
		return next == StepStatusCompleted || next == StepStatusFailed || next == StepStatusSkipped
	case StepStatusCompleted:
		return next == StepStatusCompensating
	case StepStatusCompensating:
		return next == StepStatusCompensated || next == StepStatusCompensationFailed
	default:
		return false
	}
}

// WorkflowStep is one step execution within a workflow run. Rows are created
// lazily, one at a time, immediately before each step executes, so a crash
// mid-workflow leaves an accurate record of exactly which steps ran.
type WorkflowStep struct {
	ID               string         `json:"id"`
	WorkflowID       string         `json:"workflow_id" validate:"required"`
	TenantID         string         `json:"tenant_id"   validate:"required"`
	StepName         string         `json:"step_name"   validate:"required"`
	StepType         string         `json:"step_type"`
	SequenceNumber   int            `json:"sequence_number"`
	Status           StepStatus     `json:"status"`
	InputData        map[string]any `json:"input_data,omitempty"`
	OutputData       map[string]any `json:"output_data,omitempty"`
	CompensationData map[string]any `json:"compensation_data,omitempty"`
	ErrorMessage     string         `json:"error_message,omitempty"`
	RetryCount       int            `json:"retry_count"`

	StartedAt               *time.Time `json:"started_at,omitempty"`
	CompletedAt             *time.Time `json:"completed_at,omitempty"`
	CompensationStartedAt   *time.Time `json:"compensation_started_at,omitempty"`
	CompensationCompletedAt *time.Time `json:"compensation_completed_at,omitempty"`
}
