package services

import (
	"github.com/ispforge/sagaflow/pkg/models"
)

// ProvisionSubscriberRequest starts the full provisioning saga: IP allocation,
// RADIUS account, ONU activation, CPE configuration.
type ProvisionSubscriberRequest struct {
	TenantID      string `json:"tenant_id"      validate:"required"`
	SubscriberID  string `json:"subscriber_id"  validate:"required"`
	ServicePlan   string `json:"service_plan"   validate:"required"`
	ONUSerial     string `json:"onu_serial,omitempty"`
	CPEMAC        string `json:"cpe_mac,omitempty"`
	InitiatorID   string `json:"initiator_id,omitempty"`
	InitiatorType string `json:"initiator_type,omitempty" validate:"omitempty,oneof=user system scheduler"`
}

func (r ProvisionSubscriberRequest) inputData() map[string]any {
	input := map[string]any{
		"subscriber_id": r.SubscriberID,
		"service_plan":  r.ServicePlan,
	}

	if r.ONUSerial != "" {
		input["onu_serial"] = r.ONUSerial
	}

	if r.CPEMAC != "" {
		input["cpe_mac"] = r.CPEMAC
	}

	return input
}

// ProvisionSubscriberResponse carries the identifiers the saga produced,
// extracted from the terminal workflow's context.
type ProvisionSubscriberResponse struct {
	WorkflowID   string                `json:"workflow_id"`
	Status       models.WorkflowStatus `json:"status"`
	SubscriberID string                `json:"subscriber_id"`
	IPv4Address  string                `json:"ipv4_address,omitempty"`
	ONUID        string                `json:"onu_id,omitempty"`
	CPEID        string                `json:"cpe_id,omitempty"`
}

type DeprovisionSubscriberRequest struct {
	TenantID      string `json:"tenant_id"     validate:"required"`
	SubscriberID  string `json:"subscriber_id" validate:"required"`
	InitiatorID   string `json:"initiator_id,omitempty"`
	InitiatorType string `json:"initiator_type,omitempty" validate:"omitempty,oneof=user system scheduler"`
}

func (r DeprovisionSubscriberRequest) inputData() map[string]any {
	return map[string]any{"subscriber_id": r.SubscriberID}
}

type ActivateServiceRequest struct {
	TenantID      string `json:"tenant_id"     validate:"required"`
	SubscriberID  string `json:"subscriber_id" validate:"required"`
	InitiatorID   string `json:"initiator_id,omitempty"`
	InitiatorType string `json:"initiator_type,omitempty" validate:"omitempty,oneof=user system scheduler"`
}

func (r ActivateServiceRequest) inputData() map[string]any {
	return map[string]any{"subscriber_id": r.SubscriberID}
}

type SuspendServiceRequest struct {
	TenantID      string `json:"tenant_id"     validate:"required"`
	SubscriberID  string `json:"subscriber_id" validate:"required"`
	Reason        string `json:"reason,omitempty"`
	InitiatorID   string `json:"initiator_id,omitempty"`
	InitiatorType string `json:"initiator_type,omitempty" validate:"omitempty,oneof=user system scheduler"`
}

func (r SuspendServiceRequest) inputData() map[string]any {
	input := map[string]any{"subscriber_id": r.SubscriberID}
	if r.Reason != "" {
		input["reason"] = r.Reason
	}

	return input
}

type ChangeServicePlanRequest struct {
	TenantID      string `json:"tenant_id"     validate:"required"`
	SubscriberID  string `json:"subscriber_id" validate:"required"`
	NewPlan       string `json:"new_plan"      validate:"required"`
	InitiatorID   string `json:"initiator_id,omitempty"`
	InitiatorType string `json:"initiator_type,omitempty" validate:"omitempty,oneof=user system scheduler"`
}

func (r ChangeServicePlanRequest) inputData() map[string]any {
	return map[string]any{
		"subscriber_id": r.SubscriberID,
		"new_plan":      r.NewPlan,
	}
}

// WorkflowResponse is the generic terminal-state view used by the service
// entry points that have no richer typed response.
type WorkflowResponse struct {
	WorkflowID   string                `json:"workflow_id"`
	Status       models.WorkflowStatus `json:"status"`
	SubscriberID string                `json:"subscriber_id,omitempty"`
	OutputData   map[string]any        `json:"output_data,omitempty"`
	ErrorMessage string                `json:"error_message,omitempty"`
}

// SubmitResponse is returned by the async Submit* variants: the caller gets
// the workflow id immediately and polls GetWorkflow for the terminal status.
type SubmitResponse struct {
	WorkflowID string                `json:"workflow_id"`
	Status     models.WorkflowStatus `json:"status"`
}

// ListWorkflowsRequest contains options for listing workflows.
type ListWorkflowsRequest struct {
	// Filtering
	Status *models.WorkflowStatus
	Type   *models.WorkflowType

	// Pagination
	Limit  int `validate:"min=0,max=100"`
	Offset int `validate:"min=0"`
}

// ListWorkflowsResponse contains the result of listing workflows.
type ListWorkflowsResponse struct {
	Workflows   []*models.Workflow `json:"workflows"`
	TotalCount  int64              `json:"total_count"`
	HasNextPage bool               `json:"has_next_page"`
}

func newWorkflowResponse(workflow *models.Workflow) *WorkflowResponse {
	subscriberID, _ := workflow.InputData["subscriber_id"].(string)

	return &WorkflowResponse{
		WorkflowID:   workflow.WorkflowID,
		Status:       workflow.Status,
		SubscriberID: subscriberID,
		OutputData:   workflow.OutputData,
		ErrorMessage: workflow.ErrorMessage,
	}
}

func newProvisionResponse(workflow *models.Workflow) *ProvisionSubscriberResponse {
	subscriberID, _ := workflow.InputData["subscriber_id"].(string)

	return &ProvisionSubscriberResponse{
		WorkflowID:   workflow.WorkflowID,
		Status:       workflow.Status,
		SubscriberID: subscriberID,
		IPv4Address:  workflow.ContextValue("ipv4_address"),
		ONUID:        workflow.ContextValue("onu_id"),
		CPEID:        workflow.ContextValue("cpe_id"),
	}
}
