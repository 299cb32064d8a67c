package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkflowType_Valid(t *testing.T) {
	for _, workflowType := range WorkflowTypes() {
		assert.True(t, workflowType.Valid(), "type %s should be valid", workflowType)
	}

	assert.False(t, WorkflowType("reboot_core_router").Valid())
	assert.False(t, WorkflowType("").Valid())
}

func TestWorkflowStatus_Terminal(t *testing.T) {
	terminal := []WorkflowStatus{
		WorkflowStatusCompleted,
		WorkflowStatusFailed,
		WorkflowStatusRolledBack,
		WorkflowStatusCompensated,
	}
	for _, status := range terminal {
		assert.True(t, status.Terminal(), "%s should be terminal", status)
	}

	nonTerminal := []WorkflowStatus{
		WorkflowStatusPending,
		WorkflowStatusRunning,
		WorkflowStatusRollingBack,
	}
	for _, status := range nonTerminal {
		assert.False(t, status.Terminal(), "%s should not be terminal", status)
	}
}

func TestWorkflowStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from    WorkflowStatus
		to      WorkflowStatus
		allowed bool
	}{
		{WorkflowStatusPending, WorkflowStatusRunning, true},
		{WorkflowStatusPending, WorkflowStatusCompleted, false},
		{WorkflowStatusRunning, WorkflowStatusCompleted, true},
		{WorkflowStatusRunning, WorkflowStatusFailed, true},
		{WorkflowStatusRunning, WorkflowStatusRollingBack, true},
		{WorkflowStatusRunning, WorkflowStatusPending, false},
		// The explicit manual retry edge.
		{WorkflowStatusFailed, WorkflowStatusPending, true},
		{WorkflowStatusFailed, WorkflowStatusRollingBack, true},
		{WorkflowStatusFailed, WorkflowStatusRunning, false},
		{WorkflowStatusRollingBack, WorkflowStatusRolledBack, true},
		{WorkflowStatusRollingBack, WorkflowStatusCompensated, true},
		{WorkflowStatusRollingBack, WorkflowStatusFailed, true},
		{WorkflowStatusRollingBack, WorkflowStatusRunning, false},
		// Terminal states permit nothing.
		{WorkflowStatusCompleted, WorkflowStatusRunning, false},
		{WorkflowStatusCompleted, WorkflowStatusPending, false},
		{WorkflowStatusRolledBack, WorkflowStatusPending, false},
		{WorkflowStatusCompensated, WorkflowStatusPending, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestStepStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from    StepStatus
		to      StepStatus
		allowed bool
	}{
		{StepStatusPending, StepStatusRunning, true},
		{StepStatusPending, StepStatusSkipped, true},
		{StepStatusPending, StepStatusCompleted, false},
		{StepStatusRunning, StepStatusCompleted, true},
		{StepStatusRunning, StepStatusFailed, true},
		{StepStatusCompleted, StepStatusCompensating, true},
		{StepStatusCompleted, StepStatusRunning, false},
		{StepStatusCompensating, StepStatusCompensated, true},
		{StepStatusCompensating, StepStatusCompensationFailed, true},
		{StepStatusCompensated, StepStatusCompensating, false},
		{StepStatusFailed, StepStatusRunning, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestWorkflow_ContextValue(t *testing.T) {
	workflow := &Workflow{Context: map[string]any{"ipv4_address": "100.64.0.1", "count": 3}}

	assert.Equal(t, "100.64.0.1", workflow.ContextValue("ipv4_address"))
	assert.Empty(t, workflow.ContextValue("count"), "non-string values read as empty")
	assert.Empty(t, workflow.ContextValue("missing"))

	var empty Workflow

	assert.Empty(t, empty.ContextValue("anything"))
}
