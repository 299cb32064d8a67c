// Package file provides file-based persistence for workflows and steps. It is
// meant for development and tests; production deployments use PostgreSQL.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/ispforge/sagaflow/pkg/models"
	"github.com/ispforge/sagaflow/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface on the file system.
// Each workflow and step is one JSON document under the tenant's directory.
type Persistence struct {
	root         string
	workflowRepo *WorkflowRepository
	stepRepo     *StepRepository
}

// NewPersistence creates a new instance rooted at the given directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:         cleanRoot,
		workflowRepo: NewWorkflowRepository(cleanRoot),
		stepRepo:     NewStepRepository(cleanRoot),
	}
}

// Close performs any necessary cleanup. For file persistence there is nothing to do.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) CreateWorkflow(ctx context.Context, workflow *models.Workflow) error {
	return fp.workflowRepo.Create(ctx, workflow)
}

func (fp *Persistence) UpdateWorkflow(ctx context.Context, workflow *models.Workflow) error {
	return fp.workflowRepo.Update(ctx, workflow)
}

func (fp *Persistence) WorkflowByID(ctx context.Context, tenantID, workflowID string) (*models.Workflow, error) {
	return fp.workflowRepo.GetByID(ctx, tenantID, workflowID)
}

func (fp *Persistence) ListWorkflows(ctx context.Context, tenantID string, filter persistence.WorkflowFilter) ([]*models.Workflow, int64, error) {
	return fp.workflowRepo.List(ctx, tenantID, filter)
}

func (fp *Persistence) WorkflowStatistics(ctx context.Context, tenantID string) (*persistence.WorkflowStatistics, error) {
	return fp.workflowRepo.Statistics(ctx, tenantID)
}

func (fp *Persistence) CreateWorkflowStep(ctx context.Context, step *models.WorkflowStep) error {
	return fp.stepRepo.Create(ctx, step)
}

func (fp *Persistence) UpdateWorkflowStep(ctx context.Context, step *models.WorkflowStep) error {
	return fp.stepRepo.Update(ctx, step)
}

func (fp *Persistence) WorkflowSteps(ctx context.Context, tenantID, workflowID string) ([]*models.WorkflowStep, error) {
	return fp.stepRepo.ListByWorkflow(ctx, tenantID, workflowID)
}

var _ persistence.Persistence = (*Persistence)(nil)
