package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/ispforge/sagaflow/pkg/eventbus"
	"github.com/ispforge/sagaflow/pkg/events"
	"github.com/ispforge/sagaflow/pkg/models"
	"github.com/ispforge/sagaflow/pkg/persistence"
	"github.com/ispforge/sagaflow/pkg/saga"
)

const (
	defaultMaxRetries = 3
	defaultListLimit  = 20
	maxListLimit      = 100
)

// Orchestration is the composition root for workflow execution: it validates
// typed requests, creates the initial workflow row, and delegates to the saga
// executor (sync) or publishes a request event for the worker (async).
type Orchestration struct {
	persistence persistence.Persistence
	registry    *saga.Registry
	executor    *saga.Executor
	publisher   eventbus.EventPublisher
	validate    *validator.Validate
	logger      *slog.Logger
}

type OrchestrationOption func(*Orchestration)

// WithPublisher enables the async Submit* entry points.
func WithPublisher(publisher eventbus.EventPublisher) OrchestrationOption {
	return func(o *Orchestration) { o.publisher = publisher }
}

// NewOrchestration creates the orchestration service.
func NewOrchestration(
	store persistence.Persistence,
	registry *saga.Registry,
	executor *saga.Executor,
	logger *slog.Logger,
	opts ...OrchestrationOption,
) *Orchestration {
	service := &Orchestration{
		persistence: store,
		registry:    registry,
		executor:    executor,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service
}

// HealthCheck checks the health of the persistence layer.
func (o *Orchestration) HealthCheck(ctx context.Context) (string, bool) {
	if o.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := o.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ProvisionSubscriber runs the full provisioning saga synchronously. On a
// step failure the returned error carries the workflow id; the workflow row
// has already captured the failure.
func (o *Orchestration) ProvisionSubscriber(ctx context.Context, req ProvisionSubscriberRequest) (*ProvisionSubscriberResponse, error) {
	if err := o.ValidateRequest(req); err != nil {
		return nil, err
	}

	workflow, err := o.startAndRun(ctx, req.TenantID, models.WorkflowTypeProvisionSubscriber, req.inputData(), req.InitiatorID, req.InitiatorType)
	if err != nil {
		return nil, err
	}

	return newProvisionResponse(workflow), nil
}

// SubmitProvisionSubscriber creates the workflow row and hands execution to
// the worker via the event bus.
func (o *Orchestration) SubmitProvisionSubscriber(ctx context.Context, req ProvisionSubscriberRequest) (*SubmitResponse, error) {
	if err := o.ValidateRequest(req); err != nil {
		return nil, err
	}

	return o.submit(ctx, req.TenantID, models.WorkflowTypeProvisionSubscriber, req.inputData(), req.InitiatorID, req.InitiatorType)
}

// DeprovisionSubscriber tears down a subscriber's network state synchronously.
func (o *Orchestration) DeprovisionSubscriber(ctx context.Context, req DeprovisionSubscriberRequest) (*WorkflowResponse, error) {
	if err := o.ValidateRequest(req); err != nil {
		return nil, err
	}

	workflow, err := o.startAndRun(ctx, req.TenantID, models.WorkflowTypeDeprovisionSubscriber, req.inputData(), req.InitiatorID, req.InitiatorType)
	if err != nil {
		return nil, err
	}

	return newWorkflowResponse(workflow), nil
}

func (o *Orchestration) SubmitDeprovisionSubscriber(ctx context.Context, req DeprovisionSubscriberRequest) (*SubmitResponse, error) {
	if err := o.ValidateRequest(req); err != nil {
		return nil, err
	}

	return o.submit(ctx, req.TenantID, models.WorkflowTypeDeprovisionSubscriber, req.inputData(), req.InitiatorID, req.InitiatorType)
}

// ActivateService enables service delivery for an already provisioned subscriber.
func (o *Orchestration) ActivateService(ctx context.Context, req ActivateServiceRequest) (*WorkflowResponse, error) {
	if err := o.ValidateRequest(req); err != nil {
		return nil, err
	}

	workflow, err := o.startAndRun(ctx, req.TenantID, models.WorkflowTypeActivateService, req.inputData(), req.InitiatorID, req.InitiatorType)
	if err != nil {
		return nil, err
	}

	return newWorkflowResponse(workflow), nil
}

func (o *Orchestration) SubmitActivateService(ctx context.Context, req ActivateServiceRequest) (*SubmitResponse, error) {
	if err := o.ValidateRequest(req); err != nil {
		return nil, err
	}

	return o.submit(ctx, req.TenantID, models.WorkflowTypeActivateService, req.inputData(), req.InitiatorID, req.InitiatorType)
}

// SuspendService suspends service delivery, e.g. for non-payment.
func (o *Orchestration) SuspendService(ctx context.Context, req SuspendServiceRequest) (*WorkflowResponse, error) {
	if err := o.ValidateRequest(req); err != nil {
		return nil, err
	}

	workflow, err := o.startAndRun(ctx, req.TenantID, models.WorkflowTypeSuspendService, req.inputData(), req.InitiatorID, req.InitiatorType)
	if err != nil {
		return nil, err
	}

	return newWorkflowResponse(workflow), nil
}

func (o *Orchestration) SubmitSuspendService(ctx context.Context, req SuspendServiceRequest) (*SubmitResponse, error) {
	if err := o.ValidateRequest(req); err != nil {
		return nil, err
	}

	return o.submit(ctx, req.TenantID, models.WorkflowTypeSuspendService, req.inputData(), req.InitiatorID, req.InitiatorType)
}

// ChangeServicePlan moves a subscriber to a different plan.
func (o *Orchestration) ChangeServicePlan(ctx context.Context, req ChangeServicePlanRequest) (*WorkflowResponse, error) {
	if err := o.ValidateRequest(req); err != nil {
		return nil, err
	}

	workflow, err := o.startAndRun(ctx, req.TenantID, models.WorkflowTypeChangeServicePlan, req.inputData(), req.InitiatorID, req.InitiatorType)
	if err != nil {
		return nil, err
	}

	return newWorkflowResponse(workflow), nil
}

func (o *Orchestration) SubmitChangeServicePlan(ctx context.Context, req ChangeServicePlanRequest) (*SubmitResponse, error) {
	if err := o.ValidateRequest(req); err != nil {
		return nil, err
	}

	return o.submit(ctx, req.TenantID, models.WorkflowTypeChangeServicePlan, req.inputData(), req.InitiatorID, req.InitiatorType)
}

// StartWorkflow is the generic entry point for workflow types without a typed
// request (update_network_config, migrate_subscriber). Input is validated
// against the type's JSON schema.
func (o *Orchestration) StartWorkflow(ctx context.Context, tenantID string, workflowType models.WorkflowType, input map[string]any, initiatorID, initiatorType string) (*WorkflowResponse, error) {
	workflow, err := o.startAndRun(ctx, tenantID, workflowType, input, initiatorID, initiatorType)
	if err != nil {
		return nil, err
	}

	return newWorkflowResponse(workflow), nil
}

// SubmitWorkflow is the generic async entry point.
func (o *Orchestration) SubmitWorkflow(ctx context.Context, tenantID string, workflowType models.WorkflowType, input map[string]any, initiatorID, initiatorType string) (*SubmitResponse, error) {
	return o.submit(ctx, tenantID, workflowType, input, initiatorID, initiatorType)
}

// RunWorkflow executes an already persisted pending workflow. The worker
// calls this when it consumes a workflow.requested event.
func (o *Orchestration) RunWorkflow(ctx context.Context, tenantID, workflowID string) (*models.Workflow, error) {
	workflow, err := o.persistence.WorkflowByID(ctx, tenantID, workflowID)
	if err != nil {
		return nil, err
	}

	return o.run(ctx, workflow)
}

// GetWorkflow returns a workflow with its step records, tenant-scoped.
func (o *Orchestration) GetWorkflow(ctx context.Context, tenantID, workflowID string) (*models.Workflow, error) {
	workflow, err := o.persistence.WorkflowByID(ctx, tenantID, workflowID)
	if err != nil {
		return nil, err
	}

	steps, err := o.persistence.WorkflowSteps(ctx, tenantID, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow steps: %w", err)
	}

	workflow.Steps = steps

	return workflow, nil
}

// ListWorkflows retrieves workflows with filtering and pagination.
func (o *Orchestration) ListWorkflows(ctx context.Context, tenantID string, req ListWorkflowsRequest) (*ListWorkflowsResponse, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}

	if req.Limit <= 0 {
		req.Limit = defaultListLimit
	}

	if req.Limit > maxListLimit {
		req.Limit = maxListLimit
	}

	if req.Offset < 0 {
		req.Offset = 0
	}

	if req.Status != nil && !validStatus(*req.Status) {
		return nil, NewValidationError(
			"ListWorkflows",
			"INVALID_STATUS",
			fmt.Sprintf("invalid status %q", *req.Status),
			ErrInvalidStatusFilter,
		)
	}

	if req.Type != nil && !req.Type.Valid() {
		return nil, NewValidationError(
			"ListWorkflows",
			"INVALID_WORKFLOW_TYPE",
			fmt.Sprintf("invalid workflow type %q", *req.Type),
			ErrInvalidWorkflowType,
		)
	}

	workflows, total, err := o.persistence.ListWorkflows(ctx, tenantID, persistence.WorkflowFilter{
		Status: req.Status,
		Type:   req.Type,
		Limit:  req.Limit,
		Offset: req.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return &ListWorkflowsResponse{
		Workflows:   workflows,
		TotalCount:  total,
		HasNextPage: int64(req.Offset+len(workflows)) < total,
	}, nil
}

// Statistics returns per-tenant workflow counts and average duration.
func (o *Orchestration) Statistics(ctx context.Context, tenantID string) (*persistence.WorkflowStatistics, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}

	return o.persistence.WorkflowStatistics(ctx, tenantID)
}

// RetryWorkflow takes the explicit failed -> pending edge and re-runs the
// whole saga from step 1 under the same workflow id. Refused once the retry
// budget is spent. Step rows from earlier attempts are kept for audit.
func (o *Orchestration) RetryWorkflow(ctx context.Context, tenantID, workflowID string) (*WorkflowResponse, error) {
	workflow, err := o.resetForRetry(ctx, tenantID, workflowID)
	if err != nil {
		return nil, err
	}

	workflow, err = o.run(ctx, workflow)
	if err != nil {
		return nil, err
	}

	return newWorkflowResponse(workflow), nil
}

// SubmitRetryWorkflow resets a failed workflow to pending and hands the
// re-run to the worker.
func (o *Orchestration) SubmitRetryWorkflow(ctx context.Context, tenantID, workflowID string) (*SubmitResponse, error) {
	workflow, err := o.resetForRetry(ctx, tenantID, workflowID)
	if err != nil {
		return nil, err
	}

	err = o.publishRequested(ctx, workflow)
	if err != nil {
		return nil, err
	}

	return &SubmitResponse{WorkflowID: workflow.WorkflowID, Status: workflow.Status}, nil
}

func (o *Orchestration) resetForRetry(ctx context.Context, tenantID, workflowID string) (*models.Workflow, error) {
	workflow, err := o.persistence.WorkflowByID(ctx, tenantID, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow.Status != models.WorkflowStatusFailed {
		return nil, fmt.Errorf("workflow %s is %s: %w", workflowID, workflow.Status, ErrWorkflowNotRetryable)
	}

	if workflow.RetryCount >= workflow.MaxRetries {
		return nil, fmt.Errorf("workflow %s used %d of %d retries: %w",
			workflowID, workflow.RetryCount, workflow.MaxRetries, ErrRetryBudgetExhausted)
	}

	workflow.RetryCount++
	workflow.Status = models.WorkflowStatusPending
	workflow.Context = make(map[string]any)
	workflow.OutputData = nil
	workflow.ErrorMessage = ""
	workflow.ErrorDetails = nil
	workflow.StartedAt = nil
	workflow.CompletedAt = nil

	err = o.persistence.UpdateWorkflow(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to reset workflow for retry: %w", err)
	}

	o.logger.InfoContext(ctx, "Workflow reset for retry",
		"tenant_id", tenantID, "workflow_id", workflowID, "retry_count", workflow.RetryCount)

	return workflow, nil
}

// ValidateRequest runs struct-tag validation on a typed request.
func (o *Orchestration) ValidateRequest(req any) error {
	err := o.validate.Struct(req)
	if err != nil {
		return NewValidationError("ValidateRequest", "INVALID_REQUEST", err.Error(), ErrInvalidRequest)
	}

	return nil
}

func (o *Orchestration) startAndRun(ctx context.Context, tenantID string, workflowType models.WorkflowType, input map[string]any, initiatorID, initiatorType string) (*models.Workflow, error) {
	workflow, err := o.createWorkflow(ctx, tenantID, workflowType, input, initiatorID, initiatorType)
	if err != nil {
		return nil, err
	}

	return o.run(ctx, workflow)
}

func (o *Orchestration) submit(ctx context.Context, tenantID string, workflowType models.WorkflowType, input map[string]any, initiatorID, initiatorType string) (*SubmitResponse, error) {
	workflow, err := o.createWorkflow(ctx, tenantID, workflowType, input, initiatorID, initiatorType)
	if err != nil {
		return nil, err
	}

	err = o.publishRequested(ctx, workflow)
	if err != nil {
		return nil, err
	}

	return &SubmitResponse{WorkflowID: workflow.WorkflowID, Status: workflow.Status}, nil
}

// createWorkflow validates the tenant and input, then persists the initial
// pending row. Validation failures never create a workflow row.
func (o *Orchestration) createWorkflow(ctx context.Context, tenantID string, workflowType models.WorkflowType, input map[string]any, initiatorID, initiatorType string) (*models.Workflow, error) {
	if tenantID == "" {
		return nil, ErrTenantRequired
	}

	if !workflowType.Valid() {
		return nil, fmt.Errorf("workflow type %q: %w", workflowType, ErrInvalidWorkflowType)
	}

	// Fail before the row exists when the type has no registered definition.
	_, err := o.registry.Definition(workflowType)
	if err != nil {
		return nil, err
	}

	err = validateInputData(workflowType, input)
	if err != nil {
		return nil, err
	}

	if initiatorType == "" {
		initiatorType = string(models.InitiatorTypeSystem)
	}

	workflow := &models.Workflow{
		WorkflowID:    "wf-" + uuid.New().String(),
		TenantID:      tenantID,
		Type:          workflowType,
		Status:        models.WorkflowStatusPending,
		InputData:     input,
		Context:       make(map[string]any),
		MaxRetries:    defaultMaxRetries,
		InitiatorID:   initiatorID,
		InitiatorType: models.InitiatorType(initiatorType),
		CreatedAt:     time.Now().UTC(),
	}

	err = o.persistence.CreateWorkflow(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	o.logger.InfoContext(ctx, "Workflow created",
		"tenant_id", tenantID, "workflow_id", workflow.WorkflowID, "workflow_type", workflowType)

	return workflow, nil
}

func (o *Orchestration) run(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	def, err := o.registry.Definition(workflow.Type)
	if err != nil {
		return nil, err
	}

	return o.executor.Execute(ctx, def, workflow)
}

func (o *Orchestration) publishRequested(ctx context.Context, workflow *models.Workflow) error {
	if o.publisher == nil {
		return fmt.Errorf("async submission requires an event publisher: %w", ErrInvalidRequest)
	}

	event := events.WorkflowRequested{
		BaseEvent: events.BaseEvent{
			ID:         uuid.New().String(),
			Type:       events.WorkflowRequestedEvent,
			Timestamp:  time.Now().UTC(),
			TenantID:   workflow.TenantID,
			WorkflowID: workflow.WorkflowID,
		},
		WorkflowType:  string(workflow.Type),
		InputData:     workflow.InputData,
		InitiatorID:   workflow.InitiatorID,
		InitiatorType: string(workflow.InitiatorType),
	}

	err := o.publisher.Publish(ctx, workflow.TenantID+":"+workflow.WorkflowID, event)
	if err != nil {
		return fmt.Errorf("failed to publish workflow request: %w", err)
	}

	return nil
}

func validStatus(status models.WorkflowStatus) bool {
	switch status {
	case models.WorkflowStatusPending, models.WorkflowStatusRunning, models.WorkflowStatusCompleted,
		models.WorkflowStatusFailed, models.WorkflowStatusRollingBack, models.WorkflowStatusRolledBack,
		models.WorkflowStatusCompensated:
		return true
	default:
		return false
	}
}
