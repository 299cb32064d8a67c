package saga

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ispforge/sagaflow/pkg/eventbus"
	"github.com/ispforge/sagaflow/pkg/events"
	"github.com/ispforge/sagaflow/pkg/models"
	"github.com/ispforge/sagaflow/pkg/otelhelper"
	"github.com/ispforge/sagaflow/pkg/persistence"
)

// defaultLockTTL bounds how long a crashed execution can keep a workflow
// locked before another worker may pick it up.
const defaultLockTTL = 15 * time.Minute

// Executor runs one workflow instance start-to-finish on a single logical
// thread of control. Different instances may execute concurrently; the only
// shared mutable state is the persistence layer.
type Executor struct {
	store     persistence.Persistence
	lock      RunLock
	publisher eventbus.EventPublisher
	logger    *slog.Logger
	tracer    trace.Tracer
	lockTTL   time.Duration
}

type ExecutorOption func(*Executor)

// WithRunLock guards executions with a distributed lock so that no two
// processes run the same workflow instance concurrently.
func WithRunLock(lock RunLock) ExecutorOption {
	return func(e *Executor) { e.lock = lock }
}

// WithEventPublisher publishes workflow lifecycle events to the bus.
func WithEventPublisher(publisher eventbus.EventPublisher) ExecutorOption {
	return func(e *Executor) { e.publisher = publisher }
}

// WithLockTTL overrides the run-lock expiry.
func WithLockTTL(ttl time.Duration) ExecutorOption {
	return func(e *Executor) { e.lockTTL = ttl }
}

// NewExecutor creates a saga executor over the given persistence layer.
func NewExecutor(store persistence.Persistence, logger *slog.Logger, opts ...ExecutorOption) *Executor {
	executor := &Executor{
		store:   store,
		lock:    &NoopLock{},
		logger:  logger,
		tracer:  otel.Tracer("sagaflow/saga"),
		lockTTL: defaultLockTTL,
	}

	for _, opt := range opts {
		opt(executor)
	}

	return executor
}

// completedStep pairs a persisted step record with its definition so that
// compensation can find the right undo handler.
type completedStep struct {
	record *models.WorkflowStep
	def    StepDefinition
}

// Execute runs the workflow through the definition's step list. The workflow
// must already be persisted in pending status. On any step failure, completed
// predecessors are compensated in reverse order before the terminal status is
// written. The returned workflow always reflects the persisted terminal (or
// last reached) state, even when an error is returned.
func (e *Executor) Execute(ctx context.Context, def *Definition, workflow *models.Workflow) (*models.Workflow, error) {
	if def.Type != workflow.Type {
		return workflow, fmt.Errorf("definition %q cannot run workflow of type %q", def.Type, workflow.Type)
	}

	if workflow.Status != models.WorkflowStatusPending {
		return workflow, fmt.Errorf("workflow %s is %s: %w", workflow.WorkflowID, workflow.Status, ErrWorkflowNotPending)
	}

	logger := e.logger.With(
		"tenant_id", workflow.TenantID,
		"workflow_id", workflow.WorkflowID,
		"workflow_type", workflow.Type,
	)

	token, err := e.lock.Acquire(ctx, workflow.TenantID, workflow.WorkflowID, e.lockTTL)
	if err != nil {
		return workflow, fmt.Errorf("failed to lock workflow %s: %w", workflow.WorkflowID, err)
	}

	defer func() {
		releaseErr := e.lock.Release(ctx, workflow.TenantID, workflow.WorkflowID, token)
		if releaseErr != nil {
			logger.ErrorContext(ctx, "Failed to release run lock", "error", releaseErr)
		}
	}()

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "saga.execute",
		attribute.String(otelhelper.WorkflowIDKey, workflow.WorkflowID),
		attribute.String(otelhelper.WorkflowTypeKey, string(workflow.Type)),
		attribute.String(otelhelper.TenantIDKey, workflow.TenantID),
	)
	defer span.End()

	startedAt := time.Now().UTC()
	workflow.Status = models.WorkflowStatusRunning
	workflow.StartedAt = &startedAt

	if workflow.Context == nil {
		workflow.Context = make(map[string]any)
	}

	err = e.store.UpdateWorkflow(ctx, workflow)
	if err != nil {
		otelhelper.SetError(span, err)

		return workflow, fmt.Errorf("failed to mark workflow running: %w", err)
	}

	logger.InfoContext(ctx, "Starting workflow execution", "steps", len(def.Steps))
	e.publish(ctx, workflow, events.WorkflowExecutionStarted{
		BaseEvent:    e.baseEvent(events.WorkflowExecutionStartedEvent, workflow),
		WorkflowType: workflow.Type,
		StepCount:    len(def.Steps),
	})

	completed := make([]completedStep, 0, len(def.Steps))

	for i, stepDef := range def.Steps {
		record, stepErr := e.runStep(ctx, workflow, stepDef, i+1, logger)
		if stepErr != nil {
			otelhelper.SetError(span, stepErr)

			handlerErr := &HandlerError{
				WorkflowID:     workflow.WorkflowID,
				StepName:       stepDef.Name,
				SequenceNumber: i + 1,
				Err:            stepErr,
			}

			// A handler that succeeded but whose completion could not be
			// persisted has already made its external side effect; unwind it
			// along with its predecessors.
			if record != nil && record.Status == models.StepStatusCompleted {
				completed = append(completed, completedStep{record: record, def: stepDef})
			}

			e.compensate(ctx, workflow, completed, handlerErr, logger)

			return workflow, handlerErr
		}

		completed = append(completed, completedStep{record: record, def: stepDef})
	}

	completedAt := time.Now().UTC()
	workflow.Status = models.WorkflowStatusCompleted
	workflow.CompletedAt = &completedAt
	workflow.OutputData = cloneMap(workflow.Context)

	err = e.store.UpdateWorkflow(ctx, workflow)
	if err != nil {
		otelhelper.SetError(span, err)

		return workflow, fmt.Errorf("failed to mark workflow completed: %w", err)
	}

	logger.InfoContext(ctx, "Workflow completed", "duration", completedAt.Sub(startedAt))
	e.publish(ctx, workflow, events.WorkflowExecutionCompleted{
		BaseEvent:    e.baseEvent(events.WorkflowExecutionCompletedEvent, workflow),
		WorkflowType: workflow.Type,
		Status:       string(workflow.Status),
		Duration:     completedAt.Sub(startedAt),
	})

	return workflow, nil
}

// runStep creates the step row, invokes the forward handler, and persists the
// outcome. State transitions are committed before and after the handler call;
// no storage transaction is held across the handler's network I/O.
func (e *Executor) runStep(ctx context.Context, workflow *models.Workflow, stepDef StepDefinition, sequence int, logger *slog.Logger) (*models.WorkflowStep, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "saga.step",
		attribute.String(otelhelper.StepNameKey, stepDef.Name),
		attribute.Int(otelhelper.StepSequenceKey, sequence),
	)
	defer span.End()

	record := &models.WorkflowStep{
		WorkflowID:     workflow.WorkflowID,
		TenantID:       workflow.TenantID,
		StepName:       stepDef.Name,
		StepType:       stepDef.Type,
		SequenceNumber: sequence,
		Status:         models.StepStatusPending,
		InputData:      workflow.InputData,
	}

	err := e.store.CreateWorkflowStep(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("failed to create step record: %w", err)
	}

	startedAt := time.Now().UTC()
	record.Status = models.StepStatusRunning
	record.StartedAt = &startedAt

	err = e.store.UpdateWorkflowStep(ctx, record)
	if err != nil {
		return nil, fmt.Errorf("failed to mark step running: %w", err)
	}

	logger.InfoContext(ctx, "Executing step", "step", stepDef.Name, "sequence", sequence)

	result, err := stepDef.Handler(ctx, workflow.InputData, workflow.Context, e.store)

	finishedAt := time.Now().UTC()
	record.CompletedAt = &finishedAt

	if err != nil {
		otelhelper.SetError(span, err)
		logger.ErrorContext(ctx, "Step failed", "step", stepDef.Name, "sequence", sequence, "error", err)

		record.Status = models.StepStatusFailed
		record.ErrorMessage = err.Error()

		persistErr := e.store.UpdateWorkflowStep(ctx, record)
		if persistErr != nil {
			logger.ErrorContext(ctx, "Failed to persist step failure", "step", stepDef.Name, "error", persistErr)
		}

		return record, err
	}

	if result == nil {
		result = &StepResult{}
	}

	for key, value := range result.ContextUpdates {
		workflow.Context[key] = value
	}

	record.Status = models.StepStatusCompleted
	record.OutputData = result.Output
	record.CompensationData = result.CompensationData

	err = e.store.UpdateWorkflowStep(ctx, record)
	if err != nil {
		return record, fmt.Errorf("failed to persist step completion: %w", err)
	}

	// Commit the accumulated context so a crash after this step resumes with
	// an accurate view of what ran.
	err = e.store.UpdateWorkflow(ctx, workflow)
	if err != nil {
		return record, fmt.Errorf("failed to persist workflow context: %w", err)
	}

	e.publish(ctx, workflow, events.StepCompleted{
		BaseEvent:      e.baseEvent(events.StepCompletedEvent, workflow),
		StepName:       stepDef.Name,
		SequenceNumber: sequence,
		Duration:       finishedAt.Sub(startedAt),
	})

	return record, nil
}

// compensate unwinds completed steps in strict reverse order. Every step with
// a compensation handler gets a best-effort undo attempt; a failed undo is
// recorded and does not stop earlier steps from being compensated.
func (e *Executor) compensate(ctx context.Context, workflow *models.Workflow, completed []completedStep, cause *HandlerError, logger *slog.Logger) {
	workflow.Status = models.WorkflowStatusRollingBack

	err := e.store.UpdateWorkflow(ctx, workflow)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to mark workflow rolling back", "error", err)
	}

	var (
		compensationErrors []string
		partial            bool
	)

	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]

		if step.def.Compensation == nil {
			// No externally visible side effect to undo; the step stays completed.
			partial = true

			continue
		}

		compensationStarted := time.Now().UTC()
		step.record.Status = models.StepStatusCompensating
		step.record.CompensationStartedAt = &compensationStarted

		err = e.store.UpdateWorkflowStep(ctx, step.record)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to mark step compensating", "step", step.record.StepName, "error", err)
		}

		logger.InfoContext(ctx, "Compensating step", "step", step.record.StepName, "sequence", step.record.SequenceNumber)

		compErr := step.def.Compensation(ctx, step.record.CompensationData, workflow.Context, e.store)

		compensationFinished := time.Now().UTC()
		step.record.CompensationCompletedAt = &compensationFinished

		if compErr != nil {
			logger.ErrorContext(ctx, "Compensation failed", "step", step.record.StepName, "error", compErr)

			step.record.Status = models.StepStatusCompensationFailed
			step.record.ErrorMessage = compErr.Error()
			compensationErrors = append(compensationErrors, (&CompensationError{
				WorkflowID:     workflow.WorkflowID,
				StepName:       step.record.StepName,
				SequenceNumber: step.record.SequenceNumber,
				Err:            compErr,
			}).Error())
		} else {
			step.record.Status = models.StepStatusCompensated
		}

		err = e.store.UpdateWorkflowStep(ctx, step.record)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to persist compensation result", "step", step.record.StepName, "error", err)
		}

		errMessage := ""
		if compErr != nil {
			errMessage = compErr.Error()
		}

		e.publish(ctx, workflow, events.StepCompensated{
			BaseEvent:      e.baseEvent(events.StepCompensatedEvent, workflow),
			StepName:       step.record.StepName,
			SequenceNumber: step.record.SequenceNumber,
			Error:          errMessage,
		})
	}

	switch {
	case len(compensationErrors) > 0:
		workflow.Status = models.WorkflowStatusFailed
	case partial:
		workflow.Status = models.WorkflowStatusCompensated
	default:
		workflow.Status = models.WorkflowStatusRolledBack
	}

	completedAt := time.Now().UTC()
	workflow.CompletedAt = &completedAt
	workflow.ErrorMessage = cause.Error()
	workflow.ErrorDetails = map[string]any{
		"failed_step":     cause.StepName,
		"failed_sequence": cause.SequenceNumber,
	}

	if len(compensationErrors) > 0 {
		workflow.ErrorDetails["compensation_errors"] = compensationErrors
	}

	err = e.store.UpdateWorkflow(ctx, workflow)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to persist workflow terminal status", "error", err)
	}

	logger.InfoContext(ctx, "Workflow unwound", "status", workflow.Status, "failed_step", cause.StepName)

	var duration time.Duration
	if workflow.StartedAt != nil {
		duration = completedAt.Sub(*workflow.StartedAt)
	}

	e.publish(ctx, workflow, events.WorkflowExecutionFailed{
		BaseEvent:    e.baseEvent(events.WorkflowExecutionFailedEvent, workflow),
		WorkflowType: workflow.Type,
		Status:       string(workflow.Status),
		FailedStep:   cause.StepName,
		Error:        cause.Error(),
		Duration:     duration,
	})
}

func (e *Executor) baseEvent(eventType events.EventType, workflow *models.Workflow) events.BaseEvent {
	return events.BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		TenantID:   workflow.TenantID,
		WorkflowID: workflow.WorkflowID,
	}
}

func (e *Executor) publish(ctx context.Context, workflow *models.Workflow, event eventbus.Event) {
	if e.publisher == nil {
		return
	}

	err := e.publisher.Publish(ctx, workflow.TenantID+":"+workflow.WorkflowID, event)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to publish workflow event", "event_type", event.GetType(), "error", err)
	}
}

func cloneMap(source map[string]any) map[string]any {
	clone := make(map[string]any, len(source))
	for key, value := range source {
		clone[key] = value
	}

	return clone
}
