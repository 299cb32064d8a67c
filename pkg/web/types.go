package web

// TenantHeader carries the caller's tenant, resolved by the gateway upstream.
const TenantHeader = "X-Tenant-ID"

// StartWorkflowRequest is the generic body for POST /workflows, used by the
// workflow types without a dedicated endpoint.
type StartWorkflowRequest struct {
	WorkflowType  string         `json:"workflow_type" validate:"required"`
	InputData     map[string]any `json:"input_data"    validate:"required"`
	InitiatorID   string         `json:"initiator_id,omitempty"`
	InitiatorType string         `json:"initiator_type,omitempty"`
}

// ProvisionBody is the body for POST /workflows/provision; the tenant comes
// from the header, everything else from the body.
type ProvisionBody struct {
	SubscriberID  string `json:"subscriber_id"`
	ServicePlan   string `json:"service_plan"`
	ONUSerial     string `json:"onu_serial,omitempty"`
	CPEMAC        string `json:"cpe_mac,omitempty"`
	InitiatorID   string `json:"initiator_id,omitempty"`
	InitiatorType string `json:"initiator_type,omitempty"`
}

type SubscriberBody struct {
	SubscriberID  string `json:"subscriber_id"`
	Reason        string `json:"reason,omitempty"`
	InitiatorID   string `json:"initiator_id,omitempty"`
	InitiatorType string `json:"initiator_type,omitempty"`
}

type ChangePlanBody struct {
	SubscriberID  string `json:"subscriber_id"`
	NewPlan       string `json:"new_plan"`
	InitiatorID   string `json:"initiator_id,omitempty"`
	InitiatorType string `json:"initiator_type,omitempty"`
}
