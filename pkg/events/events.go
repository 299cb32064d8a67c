// Package events defines event types for workflow lifecycle notifications.
package events

import (
	"time"

	"github.com/ispforge/sagaflow/pkg/models"
)

type EventType string

// Topic carries every workflow lifecycle event.
const Topic = "sagaflow.workflows"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// WorkflowRequestedEvent asks the worker to run a pending workflow out-of-band.
	WorkflowRequestedEvent EventType = "workflow.requested"

	// Execution lifecycle events.
	WorkflowExecutionStartedEvent   EventType = "workflow.execution.started"
	WorkflowExecutionCompletedEvent EventType = "workflow.execution.completed"
	WorkflowExecutionFailedEvent    EventType = "workflow.execution.failed"

	// Step lifecycle events.
	StepCompletedEvent   EventType = "workflow.step.completed"
	StepCompensatedEvent EventType = "workflow.step.compensated"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	TenantID   string         `json:"tenant_id"`
	WorkflowID string         `json:"workflow_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// WorkflowRequested is published by the orchestration service's async entry
// points. All fields are primitive and serializable because the event crosses
// a process boundary.
type WorkflowRequested struct {
	BaseEvent

	WorkflowType  string         `json:"workflow_type"`
	InputData     map[string]any `json:"input_data,omitempty"`
	InitiatorID   string         `json:"initiator_id,omitempty"`
	InitiatorType string         `json:"initiator_type,omitempty"`
}

func (w WorkflowRequested) GetType() EventType {
	return WorkflowRequestedEvent
}

type WorkflowExecutionStarted struct {
	BaseEvent

	WorkflowType models.WorkflowType `json:"workflow_type"`
	StepCount    int                 `json:"step_count"`
}

func (w WorkflowExecutionStarted) GetType() EventType {
	return WorkflowExecutionStartedEvent
}

type WorkflowExecutionCompleted struct {
	BaseEvent

	WorkflowType models.WorkflowType `json:"workflow_type"`
	Status       string              `json:"status"`
	Duration     time.Duration       `json:"duration"`
}

func (w WorkflowExecutionCompleted) GetType() EventType {
	return WorkflowExecutionCompletedEvent
}

type WorkflowExecutionFailed struct {
	BaseEvent

	WorkflowType models.WorkflowType `json:"workflow_type"`
	Status       string              `json:"status"`
	FailedStep   string              `json:"failed_step,omitempty"`
	Error        string              `json:"error"`
	Duration     time.Duration       `json:"duration"`
}

func (w WorkflowExecutionFailed) GetType() EventType {
	return WorkflowExecutionFailedEvent
}

type StepCompleted struct {
	BaseEvent

	StepName       string        `json:"step_name"`
	SequenceNumber int           `json:"sequence_number"`
	Duration       time.Duration `json:"duration"`
}

func (s StepCompleted) GetType() EventType {
	return StepCompletedEvent
}

type StepCompensated struct {
	BaseEvent

	StepName       string `json:"step_name"`
	SequenceNumber int    `json:"sequence_number"`
	Error          string `json:"error,omitempty"`
}

func (s StepCompensated) GetType() EventType {
	return StepCompensatedEvent
}
