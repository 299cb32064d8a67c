package saga

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ispforge/sagaflow/pkg/eventbus"
	"github.com/ispforge/sagaflow/pkg/events"
	"github.com/ispforge/sagaflow/pkg/models"
	"github.com/ispforge/sagaflow/pkg/persistence"
	"github.com/ispforge/sagaflow/pkg/persistence/file"
)

func newTestStore(t *testing.T) persistence.Persistence {
	t.Helper()

	return file.NewPersistence(t.TempDir())
}

func newTestWorkflow(t *testing.T, store persistence.Persistence, workflowType models.WorkflowType) *models.Workflow {
	t.Helper()

	workflow := &models.Workflow{
		WorkflowID: "wf-" + uuid.New().String(),
		TenantID:   "tenant-a",
		Type:       workflowType,
		Status:     models.WorkflowStatusPending,
		InputData:  map[string]any{"subscriber_id": "sub-1"},
		Context:    map[string]any{},
		MaxRetries: 3,
		CreatedAt:  time.Now().UTC(),
	}

	require.NoError(t, store.CreateWorkflow(t.Context(), workflow))

	return workflow
}

// recordingStep builds a step whose handler and compensation append their
// invocations to the shared trace slice.
func recordingStep(name string, trace *[]string, contextUpdates map[string]any, fail error) StepDefinition {
	return StepDefinition{
		Name: name,
		Handler: func(_ context.Context, _, _ map[string]any, _ persistence.Persistence) (*StepResult, error) {
			*trace = append(*trace, "run:"+name)

			if fail != nil {
				return nil, fail
			}

			return &StepResult{
				Output:           map[string]any{"step": name},
				ContextUpdates:   contextUpdates,
				CompensationData: map[string]any{"undo": name},
			}, nil
		},
		Compensation: func(_ context.Context, compensationData, _ map[string]any, _ persistence.Persistence) error {
			*trace = append(*trace, "undo:"+name)

			if undo, _ := compensationData["undo"].(string); undo != name {
				return errors.New("compensation data mismatch")
			}

			return nil
		},
	}
}

func TestExecutor_AllStepsSucceed(t *testing.T) {
	store := newTestStore(t)
	executor := NewExecutor(store, slog.Default())

	var trace []string

	def := &Definition{
		Type: models.WorkflowTypeProvisionSubscriber,
		Steps: []StepDefinition{
			recordingStep("allocate_ip", &trace, map[string]any{"ipv4_address": "100.64.0.1"}, nil),
			recordingStep("create_radius_account", &trace, map[string]any{"radius_account_id": "rad-1"}, nil),
			recordingStep("provision_onu", &trace, map[string]any{"onu_id": "onu-1"}, nil),
		},
	}

	workflow := newTestWorkflow(t, store, models.WorkflowTypeProvisionSubscriber)

	result, err := executor.Execute(t.Context(), def, workflow)
	require.NoError(t, err)

	assert.Equal(t, models.WorkflowStatusCompleted, result.Status)
	assert.Equal(t, "100.64.0.1", result.OutputData["ipv4_address"])
	assert.Equal(t, "onu-1", result.OutputData["onu_id"])
	assert.NotNil(t, result.StartedAt)
	assert.NotNil(t, result.CompletedAt)
	assert.Equal(t, []string{"run:allocate_ip", "run:create_radius_account", "run:provision_onu"}, trace)

	persisted, err := store.WorkflowByID(t.Context(), "tenant-a", workflow.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusCompleted, persisted.Status)

	steps, err := store.WorkflowSteps(t.Context(), "tenant-a", workflow.WorkflowID)
	require.NoError(t, err)
	require.Len(t, steps, 3)

	for i, step := range steps {
		assert.Equal(t, i+1, step.SequenceNumber)
		assert.Equal(t, models.StepStatusCompleted, step.Status)
		assert.NotNil(t, step.StartedAt)
		assert.NotNil(t, step.CompletedAt)
	}
}

func TestExecutor_FailureCompensatesInReverseOrder(t *testing.T) {
	store := newTestStore(t)
	executor := NewExecutor(store, slog.Default())

	var trace []string

	stepErr := errors.New("OLT unreachable")
	def := &Definition{
		Type: models.WorkflowTypeProvisionSubscriber,
		Steps: []StepDefinition{
			recordingStep("allocate_ip", &trace, map[string]any{"ipv4_address": "100.64.0.1"}, nil),
			recordingStep("create_radius_account", &trace, nil, nil),
			recordingStep("provision_onu", &trace, nil, stepErr),
		},
	}

	workflow := newTestWorkflow(t, store, models.WorkflowTypeProvisionSubscriber)

	result, err := executor.Execute(t.Context(), def, workflow)
	require.Error(t, err)
	assert.True(t, IsHandlerError(err))
	assert.ErrorIs(t, err, stepErr)

	assert.Equal(t, []string{
		"run:allocate_ip",
		"run:create_radius_account",
		"run:provision_onu",
		"undo:create_radius_account",
		"undo:allocate_ip",
	}, trace)

	assert.Equal(t, models.WorkflowStatusRolledBack, result.Status)
	assert.Contains(t, result.ErrorMessage, "OLT unreachable")
	assert.Equal(t, "provision_onu", result.ErrorDetails["failed_step"])
	assert.NotNil(t, result.CompletedAt)

	steps, err := store.WorkflowSteps(t.Context(), "tenant-a", workflow.WorkflowID)
	require.NoError(t, err)
	require.Len(t, steps, 3)

	byName := make(map[string]models.StepStatus, len(steps))
	for _, step := range steps {
		byName[step.StepName] = step.Status
	}

	assert.Equal(t, models.StepStatusCompensated, byName["allocate_ip"])
	assert.Equal(t, models.StepStatusCompensated, byName["create_radius_account"])
	assert.Equal(t, models.StepStatusFailed, byName["provision_onu"])
}

func TestExecutor_ContextPropagation(t *testing.T) {
	store := newTestStore(t)
	executor := NewExecutor(store, slog.Default())

	def := &Definition{
		Type: models.WorkflowTypeProvisionSubscriber,
		Steps: []StepDefinition{
			{
				Name: "first",
				Handler: func(_ context.Context, _, wfContext map[string]any, _ persistence.Persistence) (*StepResult, error) {
					// No later step's contribution is visible yet.
					assert.NotContains(t, wfContext, "second_ran")

					return &StepResult{ContextUpdates: map[string]any{"first_ran": true}}, nil
				},
			},
			{
				Name: "second",
				Handler: func(_ context.Context, _, wfContext map[string]any, _ persistence.Persistence) (*StepResult, error) {
					assert.Equal(t, true, wfContext["first_ran"])

					return &StepResult{ContextUpdates: map[string]any{"second_ran": true}}, nil
				},
			},
		},
	}

	workflow := newTestWorkflow(t, store, models.WorkflowTypeProvisionSubscriber)

	result, err := executor.Execute(t.Context(), def, workflow)
	require.NoError(t, err)
	assert.Equal(t, true, result.OutputData["first_ran"])
	assert.Equal(t, true, result.OutputData["second_ran"])
}

func TestExecutor_StepWithoutCompensationLeftCompleted(t *testing.T) {
	store := newTestStore(t)
	executor := NewExecutor(store, slog.Default())

	var trace []string

	def := &Definition{
		Type: models.WorkflowTypeProvisionSubscriber,
		Steps: []StepDefinition{
			{
				Name: "local_computation",
				Handler: func(_ context.Context, _, _ map[string]any, _ persistence.Persistence) (*StepResult, error) {
					return &StepResult{ContextUpdates: map[string]any{"derived": "value"}}, nil
				},
				// No externally visible side effect, so no compensation.
			},
			recordingStep("failing", &trace, nil, errors.New("boom")),
		},
	}

	workflow := newTestWorkflow(t, store, models.WorkflowTypeProvisionSubscriber)

	result, err := executor.Execute(t.Context(), def, workflow)
	require.Error(t, err)

	// Partial compensation: the uncompensatable step stays completed.
	assert.Equal(t, models.WorkflowStatusCompensated, result.Status)

	steps, err := store.WorkflowSteps(t.Context(), "tenant-a", workflow.WorkflowID)
	require.NoError(t, err)

	byName := make(map[string]models.StepStatus, len(steps))
	for _, step := range steps {
		byName[step.StepName] = step.Status
	}

	assert.Equal(t, models.StepStatusCompleted, byName["local_computation"])
	assert.Equal(t, models.StepStatusFailed, byName["failing"])
}

func TestExecutor_CompensationFailureMarksWorkflowFailed(t *testing.T) {
	store := newTestStore(t)
	executor := NewExecutor(store, slog.Default())

	compErr := errors.New("release rejected")
	def := &Definition{
		Type: models.WorkflowTypeProvisionSubscriber,
		Steps: []StepDefinition{
			{
				Name: "allocate_ip",
				Handler: func(_ context.Context, _, _ map[string]any, _ persistence.Persistence) (*StepResult, error) {
					return &StepResult{CompensationData: map[string]any{"ip": "100.64.0.1"}}, nil
				},
				Compensation: func(_ context.Context, _, _ map[string]any, _ persistence.Persistence) error {
					return compErr
				},
			},
			{
				Name: "provision_onu",
				Handler: func(_ context.Context, _, _ map[string]any, _ persistence.Persistence) (*StepResult, error) {
					return nil, errors.New("ONU not found")
				},
			},
		},
	}

	workflow := newTestWorkflow(t, store, models.WorkflowTypeProvisionSubscriber)

	result, err := executor.Execute(t.Context(), def, workflow)
	require.Error(t, err)

	assert.Equal(t, models.WorkflowStatusFailed, result.Status)
	assert.Contains(t, result.ErrorMessage, "ONU not found")

	compensationErrors, ok := result.ErrorDetails["compensation_errors"].([]string)
	require.True(t, ok)
	require.Len(t, compensationErrors, 1)
	assert.Contains(t, compensationErrors[0], "release rejected")

	steps, err := store.WorkflowSteps(t.Context(), "tenant-a", workflow.WorkflowID)
	require.NoError(t, err)

	byName := make(map[string]models.StepStatus, len(steps))
	for _, step := range steps {
		byName[step.StepName] = step.Status
	}

	assert.Equal(t, models.StepStatusCompensationFailed, byName["allocate_ip"])
}

func TestExecutor_FirstStepFailureRollsBackWithoutCompensation(t *testing.T) {
	store := newTestStore(t)
	executor := NewExecutor(store, slog.Default())

	var trace []string

	def := &Definition{
		Type: models.WorkflowTypeProvisionSubscriber,
		Steps: []StepDefinition{
			recordingStep("allocate_ip", &trace, nil, errors.New("pool exhausted")),
			recordingStep("never_runs", &trace, nil, nil),
		},
	}

	workflow := newTestWorkflow(t, store, models.WorkflowTypeProvisionSubscriber)

	result, err := executor.Execute(t.Context(), def, workflow)
	require.Error(t, err)

	assert.Equal(t, models.WorkflowStatusRolledBack, result.Status)
	assert.Equal(t, []string{"run:allocate_ip"}, trace)

	steps, err := store.WorkflowSteps(t.Context(), "tenant-a", workflow.WorkflowID)
	require.NoError(t, err)
	require.Len(t, steps, 1, "no step row for steps that never ran")
}

func TestExecutor_RejectsNonPendingWorkflow(t *testing.T) {
	store := newTestStore(t)
	executor := NewExecutor(store, slog.Default())

	def := &Definition{
		Type: models.WorkflowTypeProvisionSubscriber,
		Steps: []StepDefinition{
			{
				Name: "noop",
				Handler: func(_ context.Context, _, _ map[string]any, _ persistence.Persistence) (*StepResult, error) {
					return &StepResult{}, nil
				},
			},
		},
	}

	workflow := newTestWorkflow(t, store, models.WorkflowTypeProvisionSubscriber)

	_, err := executor.Execute(t.Context(), def, workflow)
	require.NoError(t, err)

	// Re-running a terminal workflow is refused, not silently overwritten.
	_, err = executor.Execute(t.Context(), def, workflow)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWorkflowNotPending)
}

func TestExecutor_RejectsMismatchedDefinition(t *testing.T) {
	store := newTestStore(t)
	executor := NewExecutor(store, slog.Default())

	def := &Definition{Type: models.WorkflowTypeSuspendService}
	workflow := newTestWorkflow(t, store, models.WorkflowTypeProvisionSubscriber)

	_, err := executor.Execute(t.Context(), def, workflow)
	require.Error(t, err)
}

type rejectingLock struct{}

func (l *rejectingLock) Acquire(_ context.Context, _, _ string, _ time.Duration) (string, error) {
	return "", ErrWorkflowLocked
}

func (l *rejectingLock) Release(_ context.Context, _, _, _ string) error {
	return nil
}

func TestExecutor_LockedWorkflowIsRejected(t *testing.T) {
	store := newTestStore(t)
	executor := NewExecutor(store, slog.Default(), WithRunLock(&rejectingLock{}))

	def := &Definition{
		Type: models.WorkflowTypeProvisionSubscriber,
		Steps: []StepDefinition{
			{
				Name: "noop",
				Handler: func(_ context.Context, _, _ map[string]any, _ persistence.Persistence) (*StepResult, error) {
					return &StepResult{}, nil
				},
			},
		},
	}

	workflow := newTestWorkflow(t, store, models.WorkflowTypeProvisionSubscriber)

	_, err := executor.Execute(t.Context(), def, workflow)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrWorkflowLocked)

	// The workflow was not started.
	persisted, err := store.WorkflowByID(t.Context(), "tenant-a", workflow.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusPending, persisted.Status)
}

// flakyStore fails the Nth workflow update and delegates everything else.
type flakyStore struct {
	persistence.Persistence

	updates int
	failOn  int
}

func (s *flakyStore) UpdateWorkflow(ctx context.Context, workflow *models.Workflow) error {
	s.updates++
	if s.updates == s.failOn {
		return errors.New("connection reset")
	}

	return s.Persistence.UpdateWorkflow(ctx, workflow)
}

func TestExecutor_UnpersistableCompletionStillCompensatesTheStep(t *testing.T) {
	// Workflow updates: 1 marks the run started, 2 commits step one's
	// context, 3 commits step two's context.
	store := &flakyStore{Persistence: newTestStore(t), failOn: 3}
	executor := NewExecutor(store, slog.Default())

	var trace []string

	def := &Definition{
		Type: models.WorkflowTypeProvisionSubscriber,
		Steps: []StepDefinition{
			recordingStep("allocate_ip", &trace, map[string]any{"ipv4_address": "100.64.0.1"}, nil),
			recordingStep("create_radius_account", &trace, nil, nil),
		},
	}

	workflow := newTestWorkflow(t, store, models.WorkflowTypeProvisionSubscriber)

	result, err := executor.Execute(t.Context(), def, workflow)
	require.Error(t, err)
	assert.True(t, IsHandlerError(err))
	assert.Contains(t, err.Error(), "failed to persist workflow context")

	// The second step's handler succeeded, so its external side effect is
	// undone along with its predecessor's.
	assert.Equal(t, []string{
		"run:allocate_ip",
		"run:create_radius_account",
		"undo:create_radius_account",
		"undo:allocate_ip",
	}, trace)

	assert.Equal(t, models.WorkflowStatusRolledBack, result.Status)

	steps, err := store.WorkflowSteps(t.Context(), "tenant-a", workflow.WorkflowID)
	require.NoError(t, err)
	require.Len(t, steps, 2)

	for _, step := range steps {
		assert.Equal(t, models.StepStatusCompensated, step.Status)
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func (p *recordingPublisher) list() []eventbus.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]eventbus.Event(nil), p.events...)
}

func TestExecutor_LifecycleEventsCarryIdentifiers(t *testing.T) {
	store := newTestStore(t)
	publisher := &recordingPublisher{}
	executor := NewExecutor(store, slog.Default(), WithEventPublisher(publisher))

	var trace []string

	def := &Definition{
		Type: models.WorkflowTypeProvisionSubscriber,
		Steps: []StepDefinition{
			recordingStep("allocate_ip", &trace, nil, nil),
		},
	}

	workflow := newTestWorkflow(t, store, models.WorkflowTypeProvisionSubscriber)

	_, err := executor.Execute(t.Context(), def, workflow)
	require.NoError(t, err)

	published := publisher.list()
	require.Len(t, published, 3)

	seen := make(map[events.EventType]bool, len(published))

	for _, event := range published {
		var base events.BaseEvent

		switch e := event.(type) {
		case events.WorkflowExecutionStarted:
			base = e.BaseEvent
		case events.StepCompleted:
			base = e.BaseEvent
		case events.WorkflowExecutionCompleted:
			base = e.BaseEvent
		default:
			t.Fatalf("unexpected event type %T", event)
		}

		assert.NotEmpty(t, base.ID, "%s event id", event.GetType())
		assert.Equal(t, workflow.WorkflowID, base.WorkflowID)
		assert.Equal(t, "tenant-a", base.TenantID)
		seen[event.GetType()] = true
	}

	assert.True(t, seen[events.WorkflowExecutionStartedEvent])
	assert.True(t, seen[events.StepCompletedEvent])
	assert.True(t, seen[events.WorkflowExecutionCompletedEvent])
}

func TestExecutor_CancelledHandlerEntersCompensation(t *testing.T) {
	store := newTestStore(t)
	executor := NewExecutor(store, slog.Default())

	var trace []string

	def := &Definition{
		Type: models.WorkflowTypeProvisionSubscriber,
		Steps: []StepDefinition{
			recordingStep("allocate_ip", &trace, nil, nil),
			{
				Name: "slow_call",
				Handler: func(ctx context.Context, _, _ map[string]any, _ persistence.Persistence) (*StepResult, error) {
					return nil, ctx.Err()
				},
			},
		},
	}

	workflow := newTestWorkflow(t, store, models.WorkflowTypeProvisionSubscriber)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	// The cancelled context surfaces through the handler as a step failure
	// and enters normal compensation.
	result, err := executor.Execute(ctx, def, workflow)
	require.Error(t, err)
	assert.True(t, IsHandlerError(err))
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, models.WorkflowStatusRolledBack, result.Status)
	assert.Equal(t, []string{"run:allocate_ip", "undo:allocate_ip"}, trace)
}
