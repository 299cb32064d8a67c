package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/ispforge/sagaflow/pkg/models"
	"github.com/ispforge/sagaflow/pkg/persistence"
	"github.com/ispforge/sagaflow/pkg/persistence/postgresql"
)

var postgresContainer *postgres.PostgresContainer

func dropDB(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Children first, parents last.
	for _, table := range []string{"workflow_steps", "workflows", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("sagaflow_test"),
			postgres.WithUsername("sagaflow"),
			postgres.WithPassword("sagaflow"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDB(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	store, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDB(ctx, t, databaseURL)

		err = store.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return store, ctx, databaseURL
}

func testWorkflow(tenantID string) *models.Workflow {
	return &models.Workflow{
		WorkflowID: "wf-" + uuid.New().String(),
		TenantID:   tenantID,
		Type:       models.WorkflowTypeProvisionSubscriber,
		Status:     models.WorkflowStatusPending,
		InputData:  map[string]any{"subscriber_id": "sub-1", "service_plan": "fiber-300"},
		Context:    map[string]any{},
		MaxRetries: 3,
		CreatedAt:  time.Now().UTC(),
	}
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	for _, table := range []string{"workflows", "workflow_steps", "schema_migrations"} {
		var exists bool

		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}
}

func TestNewPersistence_HealthCheck(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	assert.NoError(t, store.HealthCheck(ctx))
}

func TestPersistence_WorkflowRoundtrip(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	workflow := testWorkflow("tenant-a")
	require.NoError(t, store.CreateWorkflow(ctx, workflow))

	found, err := store.WorkflowByID(ctx, "tenant-a", workflow.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, workflow.WorkflowID, found.WorkflowID)
	assert.Equal(t, models.WorkflowStatusPending, found.Status)
	assert.Equal(t, "sub-1", found.InputData["subscriber_id"])

	// Duplicate id is a conflict.
	err = store.CreateWorkflow(ctx, workflow)
	assert.ErrorIs(t, err, persistence.ErrWorkflowExists)

	// Tenant isolation.
	_, err = store.WorkflowByID(ctx, "tenant-b", workflow.WorkflowID)
	assert.True(t, persistence.IsWorkflowNotFound(err))
}

func TestPersistence_UpdateEnforcesTransitions(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	workflow := testWorkflow("tenant-a")
	require.NoError(t, store.CreateWorkflow(ctx, workflow))

	started := time.Now().UTC()
	workflow.Status = models.WorkflowStatusRunning
	workflow.StartedAt = &started
	require.NoError(t, store.UpdateWorkflow(ctx, workflow))

	workflow.Status = models.WorkflowStatusCompleted
	workflow.Context = map[string]any{"ipv4_address": "100.64.0.1"}
	require.NoError(t, store.UpdateWorkflow(ctx, workflow))

	found, err := store.WorkflowByID(ctx, "tenant-a", workflow.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, "100.64.0.1", found.ContextValue("ipv4_address"))

	// Terminal workflows are immutable.
	workflow.Status = models.WorkflowStatusRunning
	err = store.UpdateWorkflow(ctx, workflow)
	assert.ErrorIs(t, err, persistence.ErrWorkflowTerminal)
}

func TestPersistence_StepRoundtrip(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	workflow := testWorkflow("tenant-a")
	require.NoError(t, store.CreateWorkflow(ctx, workflow))

	started := time.Now().UTC()

	for i, name := range []string{"allocate_ip", "create_radius_account"} {
		stepStart := started.Add(time.Duration(i) * time.Second)
		require.NoError(t, store.CreateWorkflowStep(ctx, &models.WorkflowStep{
			ID:             uuid.New().String(),
			WorkflowID:     workflow.WorkflowID,
			TenantID:       "tenant-a",
			StepName:       name,
			SequenceNumber: i + 1,
			Status:         models.StepStatusRunning,
			InputData:      workflow.InputData,
			StartedAt:      &stepStart,
		}))
	}

	steps, err := store.WorkflowSteps(ctx, "tenant-a", workflow.WorkflowID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "allocate_ip", steps[0].StepName)
	assert.Equal(t, 1, steps[0].SequenceNumber)

	completed := time.Now().UTC()
	steps[0].Status = models.StepStatusCompleted
	steps[0].CompletedAt = &completed
	steps[0].OutputData = map[string]any{"ipv4_address": "100.64.0.1"}
	require.NoError(t, store.UpdateWorkflowStep(ctx, steps[0]))

	steps, err = store.WorkflowSteps(ctx, "tenant-a", workflow.WorkflowID)
	require.NoError(t, err)
	assert.Equal(t, models.StepStatusCompleted, steps[0].Status)
	assert.Equal(t, "100.64.0.1", steps[0].OutputData["ipv4_address"])

	// Steps are invisible to other tenants.
	steps, err = store.WorkflowSteps(ctx, "tenant-b", workflow.WorkflowID)
	require.NoError(t, err)
	assert.Empty(t, steps)
}

func TestPersistence_StepUpdateEnforcesTransitions(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	workflow := testWorkflow("tenant-a")
	require.NoError(t, store.CreateWorkflow(ctx, workflow))

	step := &models.WorkflowStep{
		ID:             uuid.New().String(),
		WorkflowID:     workflow.WorkflowID,
		TenantID:       "tenant-a",
		StepName:       "allocate_ip",
		SequenceNumber: 1,
		Status:         models.StepStatusPending,
	}
	require.NoError(t, store.CreateWorkflowStep(ctx, step))

	for _, status := range []models.StepStatus{
		models.StepStatusRunning,
		models.StepStatusCompleted,
		models.StepStatusCompensating,
		models.StepStatusCompensated,
	} {
		step.Status = status
		require.NoError(t, store.UpdateWorkflowStep(ctx, step))
	}

	// A compensated step is never silently overwritten.
	step.Status = models.StepStatusRunning
	err := store.UpdateWorkflowStep(ctx, step)
	assert.ErrorIs(t, err, persistence.ErrInvalidTransition)

	steps, err := store.WorkflowSteps(ctx, "tenant-a", workflow.WorkflowID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, models.StepStatusCompensated, steps[0].Status)
}

func TestPersistence_ListAndStatistics(t *testing.T) {
	store, ctx, _ := setupTestDB(t)

	started := time.Now().UTC().Add(-time.Minute)
	finished := started.Add(20 * time.Second)

	completed := testWorkflow("tenant-a")
	completed.Status = models.WorkflowStatusCompleted
	completed.StartedAt = &started
	completed.CompletedAt = &finished
	require.NoError(t, store.CreateWorkflow(ctx, completed))

	pending := testWorkflow("tenant-a")
	require.NoError(t, store.CreateWorkflow(ctx, pending))

	statusFilter := models.WorkflowStatusCompleted

	workflows, total, err := store.ListWorkflows(ctx, "tenant-a", persistence.WorkflowFilter{Status: &statusFilter})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, workflows, 1)
	assert.Equal(t, completed.WorkflowID, workflows[0].WorkflowID)

	stats, err := store.WorkflowStatistics(ctx, "tenant-a")
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.TotalCount)
	assert.EqualValues(t, 1, stats.ByStatus[models.WorkflowStatusCompleted])
	assert.EqualValues(t, 2, stats.ByType[models.WorkflowTypeProvisionSubscriber])
}
