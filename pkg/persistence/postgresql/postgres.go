// Package postgresql provides PostgreSQL persistence for workflows and steps.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/ispforge/sagaflow/pkg/models"
	"github.com/ispforge/sagaflow/pkg/persistence"
	"github.com/ispforge/sagaflow/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db           *sql.DB
	logger       *slog.Logger
	workflowRepo *WorkflowRepository
	stepRepo     *StepRepository
}

// NewPersistence creates a new PostgreSQL persistence layer and runs migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:           database,
		logger:       logger,
		workflowRepo: NewWorkflowRepository(database, logger),
		stepRepo:     NewStepRepository(database, logger),
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) CreateWorkflow(ctx context.Context, workflow *models.Workflow) error {
	return p.workflowRepo.Create(ctx, workflow)
}

func (p *Persistence) UpdateWorkflow(ctx context.Context, workflow *models.Workflow) error {
	return p.workflowRepo.Update(ctx, workflow)
}

func (p *Persistence) WorkflowByID(ctx context.Context, tenantID, workflowID string) (*models.Workflow, error) {
	return p.workflowRepo.GetByID(ctx, tenantID, workflowID)
}

func (p *Persistence) ListWorkflows(ctx context.Context, tenantID string, filter persistence.WorkflowFilter) ([]*models.Workflow, int64, error) {
	return p.workflowRepo.List(ctx, tenantID, filter)
}

func (p *Persistence) WorkflowStatistics(ctx context.Context, tenantID string) (*persistence.WorkflowStatistics, error) {
	return p.workflowRepo.Statistics(ctx, tenantID)
}

func (p *Persistence) CreateWorkflowStep(ctx context.Context, step *models.WorkflowStep) error {
	return p.stepRepo.Create(ctx, step)
}

func (p *Persistence) UpdateWorkflowStep(ctx context.Context, step *models.WorkflowStep) error {
	return p.stepRepo.Update(ctx, step)
}

func (p *Persistence) WorkflowSteps(ctx context.Context, tenantID, workflowID string) ([]*models.WorkflowStep, error) {
	return p.stepRepo.ListByWorkflow(ctx, tenantID, workflowID)
}

var _ persistence.Persistence = (*Persistence)(nil)
